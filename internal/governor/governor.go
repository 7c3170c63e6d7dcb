// Package governor runs the EC fan control loop and owns the handoff of
// thermal control between the BIOS and this process.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"omen-fan/internal/curve"
	"omen-fan/internal/ecio"
)

var afterFn = time.After

var ErrAlreadyStarted = errors.New("governor: already started")

type Config struct {
	// Table maps smoothed temperatures to duty pairs. Required.
	Table *curve.Table
	// PollInterval is the delay between samples.
	PollInterval time.Duration
	// WindowDepth is how many samples are smoothed over.
	WindowDepth int

	Logger *slog.Logger
}

// RunState is the lifecycle of a Governor.
type RunState int32

const (
	StateIdle RunState = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Snapshot struct {
	State string

	CPUTemp   byte
	GPUTemp   byte
	WindowMin byte
	WindowMax byte

	Index    int
	Fan1Duty byte
	Fan2Duty byte

	BIOSOwned bool

	Ticks        uint64
	LastUpdateAt time.Time
	LastError    string
}

// Governor samples the EC temperatures, runs the curve lookup and writes
// the fan duty registers. Run is the only method that touches the
// hysteresis state.
type Governor struct {
	cfg   Config
	port  ecio.Port
	guard *Guard
	log   *slog.Logger

	state atomic.Int32

	mu   sync.RWMutex
	snap Snapshot
}

// loop is the state carried between ticks. Owned by Run.
type loop struct {
	win     *curve.Window
	hyst    curve.State
	applied bool
}

func New(port ecio.Port, guard *Guard, cfg Config) *Governor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WindowDepth <= 0 {
		cfg.WindowDepth = curve.DefaultDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if guard == nil {
		guard = NewGuard(port, cfg.Logger)
	}
	g := &Governor{cfg: cfg, port: port, guard: guard, log: cfg.Logger}
	g.snap.State = StateIdle.String()
	return g
}

func (g *Governor) State() RunState {
	return RunState(g.state.Load())
}

func (g *Governor) Snapshot() Snapshot {
	if g == nil {
		return Snapshot{}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}

func (g *Governor) setRunState(s RunState) {
	g.state.Store(int32(s))
	g.setState(func(sn *Snapshot) {
		sn.State = s.String()
		sn.BIOSOwned = g.guard.Owned()
	})
}

func (g *Governor) setErr(err error) {
	g.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
}

func (g *Governor) setState(update func(*Snapshot)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	update(&g.snap)
	g.snap.LastUpdateAt = time.Now().UTC()
}

// Run takes thermal control from the BIOS and drives the fans until ctx is
// canceled or a register transfer fails. BIOS control is handed back before
// Run returns on every path. A register failure is returned as an error and
// is not retried.
func (g *Governor) Run(ctx context.Context) error {
	if g == nil {
		return fmt.Errorf("governor: governor is nil")
	}
	if g.cfg.Table == nil {
		return fmt.Errorf("governor: curve table is required")
	}
	if !g.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	g.setRunState(StateRunning)

	first, err := g.sample()
	if err != nil {
		err = fmt.Errorf("governor: initial sample: %w", err)
		g.setErr(err)
		g.setRunState(StateTerminated)
		return err
	}

	if err := g.guard.Acquire(); err != nil {
		err = fmt.Errorf("governor: disable bios control: %w", err)
		g.setErr(err)
		g.shutdown()
		return err
	}
	defer g.shutdown()
	g.setState(func(sn *Snapshot) { sn.BIOSOwned = true })

	l := &loop{
		win:  curve.NewWindow(g.cfg.WindowDepth, first),
		hyst: curve.NewState(),
	}
	g.log.Info("governor running",
		"poll_interval", g.cfg.PollInterval,
		"bands", g.cfg.Table.Len(),
		"window", l.win.Depth(),
		"first_sample", first)

	for {
		if err := g.tick(l); err != nil {
			g.setErr(err)
			g.log.Error("register transfer failed", "err", err)
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-afterFn(g.cfg.PollInterval):
		}
	}
}

func (g *Governor) shutdown() {
	g.setRunState(StateShuttingDown)
	if err := g.guard.Release(); err != nil {
		g.setErr(err)
	}
	g.setRunState(StateTerminated)
}

func (g *Governor) tick(l *loop) error {
	cpu, gpu, err := g.readTemps()
	if err != nil {
		return err
	}
	l.win.Push(max(cpu, gpu))
	minT, maxT := l.win.Min(), l.win.Max()

	prev := l.hyst.Index
	idx := g.cfg.Table.Lookup(minT, maxT, &l.hyst)
	e := g.cfg.Table.Entry(idx)

	if idx != prev || !l.applied {
		if err := g.writeDuty(e.DutyA, e.DutyB); err != nil {
			return err
		}
		if !l.applied {
			// The startup index may match the first band, in which case
			// Lookup left the inverted startup thresholds in place.
			l.hyst.Low, l.hyst.High = e.Low, e.High
			l.applied = true
		}
		g.log.Info("fan band changed",
			"temperature", minT,
			"index", idx,
			"fan1", e.DutyA,
			"fan2", e.DutyB)
	}

	g.setState(func(sn *Snapshot) {
		sn.CPUTemp = cpu
		sn.GPUTemp = gpu
		sn.WindowMin = minT
		sn.WindowMax = maxT
		sn.Index = idx
		sn.Fan1Duty = e.DutyA
		sn.Fan2Duty = e.DutyB
		sn.Ticks++
		sn.LastError = ""
	})
	return nil
}

func (g *Governor) readTemps() (cpu, gpu byte, err error) {
	cpu, err = g.port.ReadReg(ecio.CPUTemp)
	if err != nil {
		return 0, 0, fmt.Errorf("read cpu temperature: %w", err)
	}
	gpu, err = g.port.ReadReg(ecio.GPUTemp)
	if err != nil {
		return 0, 0, fmt.Errorf("read gpu temperature: %w", err)
	}
	return cpu, gpu, nil
}

func (g *Governor) sample() (byte, error) {
	cpu, gpu, err := g.readTemps()
	if err != nil {
		return 0, err
	}
	return max(cpu, gpu), nil
}

func (g *Governor) writeDuty(fan1, fan2 byte) error {
	if err := g.port.WriteReg(ecio.Fan1Duty, fan1); err != nil {
		return fmt.Errorf("write fan1 duty: %w", err)
	}
	if err := g.port.WriteReg(ecio.Fan2Duty, fan2); err != nil {
		return fmt.Errorf("write fan2 duty: %w", err)
	}
	return nil
}
