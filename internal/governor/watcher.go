package governor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var (
	notifyFn = signal.Notify
	stopFn   = signal.Stop
	exitFn   = os.Exit
)

// Watcher waits for SIGINT/SIGTERM, hands control back to the BIOS and
// exits the process. It does not wait for the poll loop.
type Watcher struct {
	release func() error
	log     *slog.Logger
	ch      chan os.Signal
}

// NewWatcher subscribes to termination signals before returning, so it must
// be called before BIOS control is taken. Signals that arrive before Watch
// runs are buffered.
func NewWatcher(release func() error, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{release: release, log: log, ch: make(chan os.Signal, 1)}
	notifyFn(w.ch, os.Interrupt, syscall.SIGTERM)
	return w
}

// Watch blocks until a termination signal arrives or ctx is canceled. On a
// signal it never returns: the process exits with status 0, or 1 when the
// BIOS could not be re-enabled.
func (w *Watcher) Watch(ctx context.Context) {
	defer stopFn(w.ch)

	select {
	case <-ctx.Done():
		return
	case sig := <-w.ch:
		w.log.Info("received signal, stopping", "signal", sig.String())
		if err := w.release(); err != nil {
			w.log.Error("BIOS thermal control may still be disabled", "err", err)
			exitFn(1)
			return
		}
		exitFn(0)
	}
}
