package ecio

import "fmt"

// Port is byte-addressable access to EC registers.
//
// Every call is one absolute-offset single-byte transfer. Implementations
// must not buffer writes: the EC has to observe each write immediately.
type Port interface {
	ReadReg(off int64) (byte, error)
	WriteReg(off int64, v byte) error
}

// IOError records which register transfer failed.
type IOError struct {
	Op     string // "open", "read", "write"
	Path   string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	if e.Op == "open" {
		return fmt.Sprintf("ecio: open %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("ecio: %s %s at offset 0x%02X: %v", e.Op, e.Path, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
