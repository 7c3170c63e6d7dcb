//go:build !linux

package ecio

import "fmt"

type File struct{}

var _ Port = (*File)(nil)

func Open(path string) (*File, error) {
	return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("unsupported OS (need linux)")}
}

func (p *File) Path() string                     { return "" }
func (p *File) Close() error                     { return nil }
func (p *File) ReadReg(off int64) (byte, error)  { return 0, fmt.Errorf("ecio: unsupported OS") }
func (p *File) WriteReg(off int64, v byte) error { return fmt.Errorf("ecio: unsupported OS") }
