//go:build !linux

package kmod

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("kmod: unsupported OS (need linux)")

var (
	geteuidFn       = os.Geteuid
	initModuleFn    = func(image []byte, params string) error { return errUnsupported }
	deleteModuleFn  = func(name string) error { return errUnsupported }
	kernelReleaseFn = func() (string, error) { return "", errUnsupported }
)
