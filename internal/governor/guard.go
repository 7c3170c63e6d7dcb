package governor

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"omen-fan/internal/ecio"
)

// Guard hands EC thermal control between the BIOS and the governor.
//
// Release only rewrites a fixed value at a fixed offset, so it can be called
// any number of times from any goroutine, including before Acquire.
type Guard struct {
	port  ecio.Port
	log   *slog.Logger
	owned atomic.Bool
}

func NewGuard(port ecio.Port, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{port: port, log: log}
}

// Acquire disables BIOS thermal control and clears its watchdog timer.
func (g *Guard) Acquire() error {
	if err := g.port.WriteReg(ecio.BIOSControl, ecio.BIOSDisabled); err != nil {
		return fmt.Errorf("write bios control: %w", err)
	}
	g.owned.Store(true)
	if err := g.port.WriteReg(ecio.BIOSTimer, ecio.TimerReset); err != nil {
		return fmt.Errorf("reset bios timer: %w", err)
	}
	g.log.Warn("BIOS thermal control is disabled; fans are driven by omen-fan")
	return nil
}

// Release re-enables BIOS thermal control. The timer register is not
// touched.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	if err := g.port.WriteReg(ecio.BIOSControl, ecio.BIOSEnabled); err != nil {
		g.log.Error("failed to re-enable BIOS thermal control", "err", err)
		return fmt.Errorf("write bios control: %w", err)
	}
	if g.owned.Swap(false) {
		g.log.Warn("BIOS thermal control forced back on")
	} else {
		g.log.Info("BIOS thermal control is enabled")
	}
	return nil
}

// Owned reports whether Acquire succeeded and Release has not run since.
func (g *Guard) Owned() bool {
	if g == nil {
		return false
	}
	return g.owned.Load()
}

// ReleaseOnPanic is meant to be deferred directly. If the goroutine is
// panicking it hands control back to the BIOS and re-panics.
func (g *Guard) ReleaseOnPanic() {
	r := recover()
	if r == nil {
		return
	}
	g.log.Error("panic, restoring BIOS thermal control", "panic", r)
	_ = g.Release()
	panic(r)
}
