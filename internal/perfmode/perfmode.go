// Package perfmode switches the EC between its performance and powersave
// thermal policies.
package perfmode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"omen-fan/internal/ecio"
)

// TimerResetDelay is how long Apply waits after switching mode before it
// clears the BIOS watchdog timer.
var TimerResetDelay = 2 * time.Second

var afterFn = time.After

var ErrInvalidMode = errors.New("perfmode: invalid mode")

type Mode string

const (
	Performance Mode = "performance"
	Powersave   Mode = "powersave"
)

// ParseMode accepts exactly "performance" or "powersave".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Performance, Powersave:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q (valid modes are: performance, powersave)", ErrInvalidMode, s)
	}
}

// Value is the register byte for the mode.
func (m Mode) Value() byte {
	if m == Performance {
		return ecio.ModePerformance
	}
	return ecio.ModePowersave
}

// Apply writes the mode register, waits TimerResetDelay and then resets the
// BIOS watchdog timer. If ctx is canceled during the wait the timer is left
// alone and ctx.Err() is returned.
func Apply(ctx context.Context, port ecio.Port, m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if err := port.WriteReg(ecio.PerformanceMode, m.Value()); err != nil {
		return fmt.Errorf("perfmode: write mode: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-afterFn(TimerResetDelay):
	}
	if err := port.WriteReg(ecio.BIOSTimer, ecio.TimerReset); err != nil {
		return fmt.Errorf("perfmode: reset bios timer: %w", err)
	}
	return nil
}
