// omen-fan drives the fans of an HP Omen laptop from a temperature curve,
// taking over from the BIOS while it runs and handing control back on exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"omen-fan/internal/config"
	"omen-fan/internal/ecio"
	"omen-fan/internal/governor"
	"omen-fan/internal/kmod"
	"omen-fan/internal/logging"
)

var requireRootFn = kmod.RequireRoot

func main() {
	var (
		configPath string
		logLevel   string
		noModule   bool
	)
	flags := pflag.NewFlagSet("omen-fan", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "path to YAML config")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&noModule, "no-module", false, "do not (re)load the ec_sys kernel module")
	_ = flags.Parse(os.Args[1:])

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(os.Stderr, level)
	slog.SetDefault(log)

	os.Exit(run(configPath, noModule, log))
}

func run(configPath string, noModule bool, log *slog.Logger) int {
	if err := requireRootFn(); err != nil {
		log.Error("precheck failed", "err", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("config load failed", "path", configPath, "err", err)
		return 1
	}
	table, err := cfg.Table()
	if err != nil {
		log.Error("config load failed", "path", configPath, "err", err)
		return 1
	}

	if cfg.Module.LoadEnabled() && !noModule {
		loader := &kmod.Loader{
			Name:   cfg.Module.Name,
			Params: cfg.Module.Params,
			Roots:  cfg.Module.SearchRoots,
			Logger: log,
		}
		if err := loader.Load(); err != nil {
			log.Error("kernel module load failed", "module", cfg.Module.Name, "err", err)
			return 1
		}
	}

	port, err := ecio.Open(cfg.Device.Path)
	if err != nil {
		log.Error("EC register file unavailable", "err", err)
		return 1
	}
	defer port.Close()

	guard := governor.NewGuard(port, log)
	defer guard.ReleaseOnPanic()

	// Subscribe to signals before the governor can take BIOS control.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := governor.NewWatcher(guard.Release, log)
	go watcher.Watch(ctx)

	gov := governor.New(port, guard, governor.Config{
		Table:        table,
		PollInterval: cfg.PollInterval(),
		WindowDepth:  cfg.Service.Window,
		Logger:       log,
	})
	log.Info("omen-fan starting", "device", port.Path(), "config", configPath)
	err = gov.Run(ctx)
	snap := gov.Snapshot()
	if err != nil {
		log.Error("omen-fan stopped", "err", err, "state", snap.State, "index", snap.Index, "bios_owned", guard.Owned())
		return 1
	}
	log.Info("omen-fan stopping",
		"state", snap.State,
		"index", snap.Index,
		"fan1", snap.Fan1Duty,
		"fan2", snap.Fan2Duty,
		"ticks", snap.Ticks)
	return 0
}
