// Package kmod makes sure the kernel module that exposes the EC register
// file is loaded with write support.
package kmod

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	ErrNotRoot  = errors.New("kmod: must be run as root")
	ErrNotFound = errors.New("kmod: module file not found")
)

var procModulesPath = "/proc/modules"

// moduleSuffixes lists the on-disk forms tried by Find, in order.
var moduleSuffixes = []string{".ko", ".ko.xz", ".ko.zst", ".ko.gz"}

// RequireRoot fails unless the effective UID is 0.
func RequireRoot() error {
	if geteuidFn() != 0 {
		return ErrNotRoot
	}
	return nil
}

// IsLoaded reports whether name appears in /proc/modules.
func IsLoaded(name string) (bool, error) {
	f, err := os.Open(procModulesPath)
	if err != nil {
		return false, fmt.Errorf("kmod: read module list: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("kmod: read module list: %w", err)
	}
	return false, nil
}

// Unload removes a module without waiting for its users to drop it.
func Unload(name string) error {
	if err := deleteModuleFn(name); err != nil {
		return fmt.Errorf("kmod: unload %s: %w", name, err)
	}
	return nil
}

// Find returns the first module file for name under any of roots, looking in
// lib/modules/<release>/kernel/drivers/acpi.
func Find(name, release string, roots []string) (string, error) {
	for _, root := range roots {
		dir := filepath.Join(root, "lib", "modules", release, "kernel", "drivers", "acpi")
		for _, suffix := range moduleSuffixes {
			p := filepath.Join(dir, name+suffix)
			if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s for kernel %s", ErrNotFound, name, release)
}

// Decompress reads a module file and returns the raw ELF image, picking the
// codec from the file suffix.
func Decompress(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("kmod: xz %s: %w", path, err)
		}
		r = xr
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("kmod: zstd %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("kmod: gzip %s: %w", path, err)
		}
		defer gr.Close()
		r = gr
	default:
		r = f
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("kmod: decompress %s: %w", path, err)
	}
	return b, nil
}

// Loader (re)loads one kernel module from disk.
type Loader struct {
	Name   string
	Params string
	Roots  []string
	Logger *slog.Logger
}

// Load unloads the module if present, so it can come back with Params, then
// loads it from the first matching file for the running kernel.
func (l *Loader) Load() error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	loaded, err := IsLoaded(l.Name)
	if err != nil {
		return err
	}
	if loaded {
		if err := Unload(l.Name); err != nil {
			return err
		}
		log.Info("unloaded kernel module", "module", l.Name)
	}

	release, err := kernelReleaseFn()
	if err != nil {
		return fmt.Errorf("kmod: kernel release: %w", err)
	}
	path, err := Find(l.Name, release, l.Roots)
	if err != nil {
		return err
	}
	image, err := Decompress(path)
	if err != nil {
		return err
	}
	if err := initModuleFn(image, l.Params); err != nil {
		return fmt.Errorf("kmod: load %s: %w", path, err)
	}
	log.Info("loaded kernel module", "module", l.Name, "path", path, "params", l.Params)
	return nil
}
