package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"omen-fan/internal/curve"
	"omen-fan/internal/ecio"
)

// DefaultPath is where the service looks for its configuration.
const DefaultPath = "/etc/omen-fan/config.yaml"

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Service ServiceConfig `yaml:"service"`
	Fans    FansConfig    `yaml:"fans"`
	Module  ModuleConfig  `yaml:"module"`
}

type DeviceConfig struct {
	Path string `yaml:"path" env:"OMEN_FAN_EC_PATH"`
}

type ServiceConfig struct {
	// TempCurve is an ordered list of [low, high] bands in degrees C.
	TempCurve [][2]byte `yaml:"temp_curve"`
	// SpeedCurve is one duty percentage (0-100) per band.
	SpeedCurve []float64 `yaml:"speed_curve"`
	// PollIntervalMs is the sampling period in milliseconds.
	PollIntervalMs int `yaml:"poll_interval" env:"OMEN_FAN_POLL_INTERVAL_MS"`
	// Window is the number of samples smoothed over.
	Window int `yaml:"window"`
}

type FansConfig struct {
	Fan1Max byte `yaml:"fan1_max"`
	Fan2Max byte `yaml:"fan2_max"`
}

type ModuleConfig struct {
	Load        *bool    `yaml:"load" env:"OMEN_FAN_MODULE_LOAD"`
	Name        string   `yaml:"name"`
	Params      string   `yaml:"params"`
	SearchRoots []string `yaml:"search_roots"`
}

// LoadEnabled reports whether the service should (re)load the EC module.
func (m ModuleConfig) LoadEnabled() bool {
	return m.Load == nil || *m.Load
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies environment overrides and defaults, and
// validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Device.Path == "" {
		cfg.Device.Path = ecio.DefaultPath
	}
	if cfg.Service.PollIntervalMs == 0 {
		cfg.Service.PollIntervalMs = 1000
	}
	if cfg.Service.PollIntervalMs < 0 {
		return Config{}, fmt.Errorf("service.poll_interval must be > 0")
	}
	if cfg.Service.Window <= 0 {
		cfg.Service.Window = curve.DefaultDepth
	}
	if cfg.Fans.Fan1Max == 0 {
		cfg.Fans.Fan1Max = ecio.Fan1Max
	}
	if cfg.Fans.Fan2Max == 0 {
		cfg.Fans.Fan2Max = ecio.Fan2Max
	}
	if cfg.Module.Name == "" {
		cfg.Module.Name = "ec_sys"
	}
	if cfg.Module.Params == "" {
		cfg.Module.Params = "write_support=1"
	}
	if len(cfg.Module.SearchRoots) == 0 {
		cfg.Module.SearchRoots = []string{"/run/booted-system/kernel-modules", "/"}
	}

	if len(cfg.Service.TempCurve) == 0 {
		return Config{}, fmt.Errorf("service.temp_curve is required")
	}
	if len(cfg.Service.SpeedCurve) != len(cfg.Service.TempCurve) {
		return Config{}, fmt.Errorf("service.speed_curve must have one entry per service.temp_curve band (got %d, want %d)",
			len(cfg.Service.SpeedCurve), len(cfg.Service.TempCurve))
	}
	for i, p := range cfg.Service.SpeedCurve {
		if p < 0 || p > 100 {
			return Config{}, fmt.Errorf("service.speed_curve[%d] must be within 0-100", i)
		}
	}
	if _, err := cfg.Table(); err != nil {
		return Config{}, fmt.Errorf("service.temp_curve: %w", err)
	}

	return cfg, nil
}

// Table builds the scaled curve table.
func (c Config) Table() (*curve.Table, error) {
	return curve.Build(c.Service.TempCurve, c.Service.SpeedCurve, c.Fans.Fan1Max, c.Fans.Fan2Max)
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalMs) * time.Millisecond
}
