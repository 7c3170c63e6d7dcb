package governor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"omen-fan/internal/curve"
	"omen-fan/internal/ecio/ectest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func refTable(t *testing.T) *curve.Table {
	t.Helper()
	tbl, err := curve.Build(
		[][2]byte{{40, 45}, {46, 50}, {51, 55}, {56, 60}, {61, 70}, {71, 100}},
		[]float64{10, 20, 40, 60, 80, 100},
		55, 57,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tbl
}

func newTestGovernor(t *testing.T, port *ectest.Port) (*Governor, *Guard) {
	t.Helper()
	log := quietLogger()
	guard := NewGuard(port, log)
	g := New(port, guard, Config{
		Table:        refTable(t),
		PollInterval: time.Millisecond,
		Logger:       log,
	})
	return g, guard
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
