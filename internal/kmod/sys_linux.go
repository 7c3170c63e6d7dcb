//go:build linux

package kmod

import "golang.org/x/sys/unix"

var (
	geteuidFn       = unix.Geteuid
	initModuleFn    = unix.InitModule
	deleteModuleFn  = deleteModule
	kernelReleaseFn = kernelRelease
)

func deleteModule(name string) error {
	return unix.DeleteModule(name, unix.O_NONBLOCK)
}

func kernelRelease() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Release[:]), nil
}
