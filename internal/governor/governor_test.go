package governor

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"omen-fan/internal/curve"
	"omen-fan/internal/ecio"
	"omen-fan/internal/ecio/ectest"
)

func runUntilTicks(t *testing.T, g *Governor, ticks uint64) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	waitFor(t, "ticks", func() bool { return g.Snapshot().Ticks >= ticks })
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
		return nil
	}
}

func TestGovernorRun_SteadyCoolWritesLowestBand(t *testing.T) {
	port := ectest.New()
	port.SetTemps(30, 25)
	g, _ := newTestGovernor(t, port)

	if err := runUntilTicks(t, g, 3); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := g.Snapshot()
	if snap.Index != 0 {
		t.Fatalf("index=%d want 0", snap.Index)
	}
	if port.Get(ecio.Fan1Duty) != 5 || port.Get(ecio.Fan2Duty) != 5 {
		t.Fatalf("duty=(%d,%d) want (5,5)", port.Get(ecio.Fan1Duty), port.Get(ecio.Fan2Duty))
	}
	// Steady input: exactly one duty write.
	if n := len(port.WritesTo(ecio.Fan1Duty)); n != 1 {
		t.Fatalf("fan1 writes=%d want 1", n)
	}
}

func TestGovernorRun_SteadyHotWritesTopBand(t *testing.T) {
	port := ectest.New()
	port.SetTemps(62, 80)
	g, _ := newTestGovernor(t, port)

	if err := runUntilTicks(t, g, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := g.Snapshot().Index; got != 5 {
		t.Fatalf("index=%d want 5", got)
	}
	if port.Get(ecio.Fan1Duty) != 55 || port.Get(ecio.Fan2Duty) != 57 {
		t.Fatalf("duty=(%d,%d) want (55,57)", port.Get(ecio.Fan1Duty), port.Get(ecio.Fan2Duty))
	}
}

func TestGovernorRun_BracketsBIOSControl(t *testing.T) {
	port := ectest.New()
	port.SetTemps(48, 48)
	g, guard := newTestGovernor(t, port)

	if err := runUntilTicks(t, g, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bios := port.WritesTo(ecio.BIOSControl)
	if len(bios) != 2 || bios[0] != ecio.BIOSDisabled || bios[1] != ecio.BIOSEnabled {
		t.Fatalf("bios writes=%v want [6 0]", bios)
	}
	if timer := port.WritesTo(ecio.BIOSTimer); len(timer) != 1 || timer[0] != ecio.TimerReset {
		t.Fatalf("timer writes=%v want [0]", timer)
	}
	if guard.Owned() {
		t.Fatalf("guard still owned after Run")
	}
	if g.State() != StateTerminated {
		t.Fatalf("state=%s want terminated", g.State())
	}
	if snap := g.Snapshot(); snap.State != "terminated" || snap.BIOSOwned {
		t.Fatalf("snapshot state=%q bios_owned=%v", snap.State, snap.BIOSOwned)
	}

	// Duty must be written only after BIOS control was disabled.
	writes := port.Writes()
	if writes[0].Offset != ecio.BIOSControl {
		t.Fatalf("first write offset=0x%X want bios control", writes[0].Offset)
	}
}

func TestGovernorRun_RejectsSecondRun(t *testing.T) {
	port := ectest.New()
	port.SetTemps(30, 30)
	g, _ := newTestGovernor(t, port)

	if err := runUntilTicks(t, g, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := g.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("err=%v want ErrAlreadyStarted", err)
	}
}

func TestGovernorRun_RequiresTable(t *testing.T) {
	g := New(ectest.New(), nil, Config{Logger: quietLogger()})
	if err := g.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGovernorRun_InitialReadFailureNeverDisablesBIOS(t *testing.T) {
	port := ectest.New()
	port.FailRead(ecio.CPUTemp, syscall.EIO)
	g, _ := newTestGovernor(t, port)

	err := g.Run(context.Background())
	if !errors.Is(err, syscall.EIO) {
		t.Fatalf("err=%v want EIO", err)
	}
	if n := len(port.Writes()); n != 0 {
		t.Fatalf("writes=%v want none", port.Writes())
	}
	if g.State() != StateTerminated {
		t.Fatalf("state=%s want terminated", g.State())
	}
}

func TestGovernorRun_SteadyStateReadFailureIsFatalAndReleases(t *testing.T) {
	port := ectest.New()
	port.SetTemps(50, 50)
	var cpuReads int
	port.OnRead = func(off int64) {
		if off != ecio.CPUTemp {
			return
		}
		cpuReads++
		if cpuReads == 4 {
			port.FailRead(ecio.GPUTemp, syscall.EIO)
		}
	}
	g, guard := newTestGovernor(t, port)

	err := g.Run(context.Background())
	var ioErr *ecio.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err=%v want *ecio.IOError", err)
	}
	if ioErr.Offset != ecio.GPUTemp {
		t.Fatalf("offset=0x%X want gpu temp", ioErr.Offset)
	}
	if port.Get(ecio.BIOSControl) != ecio.BIOSEnabled {
		t.Fatalf("bios=%d want enabled", port.Get(ecio.BIOSControl))
	}
	if guard.Owned() {
		t.Fatalf("guard still owned")
	}
	if g.Snapshot().LastError == "" {
		t.Fatalf("expected last error in snapshot")
	}
}

func TestGovernorRun_DutyWriteFailureIsFatalAndReleases(t *testing.T) {
	port := ectest.New()
	port.SetTemps(58, 40)
	port.FailWrite(ecio.Fan2Duty, syscall.EIO)
	g, _ := newTestGovernor(t, port)

	err := g.Run(context.Background())
	if !errors.Is(err, syscall.EIO) {
		t.Fatalf("err=%v want EIO", err)
	}
	bios := port.WritesTo(ecio.BIOSControl)
	if len(bios) != 2 || bios[1] != ecio.BIOSEnabled {
		t.Fatalf("bios writes=%v want release last", bios)
	}
}

func TestGovernorRun_AcquireFailureReleases(t *testing.T) {
	port := ectest.New()
	port.SetTemps(50, 50)
	port.FailWrite(ecio.BIOSTimer, syscall.EIO)
	g, guard := newTestGovernor(t, port)

	if err := g.Run(context.Background()); !errors.Is(err, syscall.EIO) {
		t.Fatalf("err=%v want EIO", err)
	}
	if port.Get(ecio.BIOSControl) != ecio.BIOSEnabled {
		t.Fatalf("bios=%d want enabled", port.Get(ecio.BIOSControl))
	}
	if guard.Owned() {
		t.Fatalf("guard still owned")
	}
	if n := len(port.WritesTo(ecio.Fan1Duty)); n != 0 {
		t.Fatalf("fan1 writes=%d want 0", n)
	}
}

func newLoop(first byte) *loop {
	return &loop{win: curve.NewWindow(curve.DefaultDepth, first), hyst: curve.NewState()}
}

func TestGovernorTick_WritesOnlyOnBandChange(t *testing.T) {
	port := ectest.New()
	g, _ := newTestGovernor(t, port)
	l := newLoop(44)

	steps := []struct {
		temp  byte
		index int
	}{
		{44, 0}, {44, 0}, {44, 0},
		{46, 0}, // single sample above 45: held by the window
		{46, 0}, {46, 0},
		{46, 1}, // every sample above 45
		{47, 1}, {49, 1}, {50, 1},
	}
	for i, s := range steps {
		port.SetTemps(s.temp, 0)
		if err := g.tick(l); err != nil {
			t.Fatalf("step %d tick: %v", i, err)
		}
		if got := g.Snapshot().Index; got != s.index {
			t.Fatalf("step %d temp=%d index=%d want %d", i, s.temp, got, s.index)
		}
	}

	fan1 := port.WritesTo(ecio.Fan1Duty)
	fan2 := port.WritesTo(ecio.Fan2Duty)
	if len(fan1) != 2 || fan1[0] != 5 || fan1[1] != 11 {
		t.Fatalf("fan1 writes=%v want [5 11]", fan1)
	}
	if len(fan2) != 2 || fan2[0] != 5 || fan2[1] != 11 {
		t.Fatalf("fan2 writes=%v want [5 11]", fan2)
	}
}

func TestGovernorTick_FirstTickSyncsStartupBand(t *testing.T) {
	port := ectest.New()
	g, _ := newTestGovernor(t, port)
	l := newLoop(48)

	port.SetTemps(48, 47)
	if err := g.tick(l); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if l.hyst.Index != 1 || l.hyst.Low != 46 || l.hyst.High != 50 {
		t.Fatalf("state=%+v want index 1 thresholds (46,50)", l.hyst)
	}
	if fan1 := port.WritesTo(ecio.Fan1Duty); len(fan1) != 1 || fan1[0] != 11 {
		t.Fatalf("fan1 writes=%v want [11]", fan1)
	}
}

func TestGovernorTick_SingleBandTable(t *testing.T) {
	tbl, err := curve.Build([][2]byte{{40, 100}}, []float64{50}, 55, 57)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	port := ectest.New()
	g := New(port, nil, Config{Table: tbl, Logger: quietLogger()})
	l := newLoop(0)

	port.SetTemps(120, 0)
	if err := g.tick(l); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := g.Snapshot().Index; got != 0 {
		t.Fatalf("index=%d want 0", got)
	}
	if port.Get(ecio.Fan1Duty) != 27 || port.Get(ecio.Fan2Duty) != 28 {
		t.Fatalf("duty=(%d,%d) want (27,28)", port.Get(ecio.Fan1Duty), port.Get(ecio.Fan2Duty))
	}
}

func TestGovernorTick_UsesHotterSensor(t *testing.T) {
	port := ectest.New()
	g, _ := newTestGovernor(t, port)
	l := newLoop(85)

	port.SetTemps(35, 85)
	if err := g.tick(l); err != nil {
		t.Fatalf("tick: %v", err)
	}
	snap := g.Snapshot()
	if snap.Index != 5 || snap.WindowMax != 85 || snap.CPUTemp != 35 || snap.GPUTemp != 85 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestRunState_String(t *testing.T) {
	cases := map[RunState]string{
		StateIdle:         "idle",
		StateRunning:      "running",
		StateShuttingDown: "shutting_down",
		StateTerminated:   "terminated",
		RunState(42):      "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("%d: got=%q want %q", s, got, want)
		}
	}
}
