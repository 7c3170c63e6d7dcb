// Package ectest provides an in-memory EC register file for tests.
package ectest

import (
	"fmt"
	"sync"

	"omen-fan/internal/ecio"
)

// Size of the EC register space exposed by ec_sys.
const Size = 256

// Write is one recorded register write.
type Write struct {
	Offset int64
	Value  byte
}

// Port is a fake ecio.Port backed by a byte array. It records every write
// and can be told to fail transfers at a given offset.
type Port struct {
	mu     sync.Mutex
	regs   [Size]byte
	writes []Write

	failRead  map[int64]error
	failWrite map[int64]error

	// OnRead, when set, is called before every read with the offset. Tests use
	// it to move temperatures between poll iterations.
	OnRead func(off int64)
}

var _ ecio.Port = (*Port)(nil)

func New() *Port {
	return &Port{failRead: map[int64]error{}, failWrite: map[int64]error{}}
}

func (p *Port) ReadReg(off int64) (byte, error) {
	if p.OnRead != nil {
		p.OnRead(off)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(off); err != nil {
		return 0, err
	}
	if err := p.failRead[off]; err != nil {
		return 0, &ecio.IOError{Op: "read", Path: "ectest", Offset: off, Err: err}
	}
	return p.regs[off], nil
}

func (p *Port) WriteReg(off int64, v byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(off); err != nil {
		return err
	}
	if err := p.failWrite[off]; err != nil {
		return &ecio.IOError{Op: "write", Path: "ectest", Offset: off, Err: err}
	}
	p.regs[off] = v
	p.writes = append(p.writes, Write{Offset: off, Value: v})
	return nil
}

func (p *Port) check(off int64) error {
	if off < 0 || off >= Size {
		return fmt.Errorf("ectest: offset %d out of range", off)
	}
	return nil
}

// Set stores a register value without recording it as a write.
func (p *Port) Set(off int64, v byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[off] = v
}

// Get returns the current register value.
func (p *Port) Get(off int64) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[off]
}

// SetTemps sets both temperature sensors.
func (p *Port) SetTemps(cpu, gpu byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[ecio.CPUTemp] = cpu
	p.regs[ecio.GPUTemp] = gpu
}

// Writes returns a copy of all recorded writes in order.
func (p *Port) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Write, len(p.writes))
	copy(out, p.writes)
	return out
}

// WritesTo returns recorded writes to a single offset.
func (p *Port) WritesTo(off int64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		if w.Offset == off {
			out = append(out, w.Value)
		}
	}
	return out
}

func (p *Port) FailRead(off int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRead[off] = err
}

func (p *Port) FailWrite(off int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrite[off] = err
}
