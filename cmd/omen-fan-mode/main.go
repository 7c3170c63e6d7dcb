// omen-fan-mode switches the EC thermal policy between performance and
// powersave.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"omen-fan/internal/ecio"
	"omen-fan/internal/kmod"
	"omen-fan/internal/logging"
	"omen-fan/internal/perfmode"
)

func main() {
	var device string
	flags := pflag.NewFlagSet("omen-fan-mode", pflag.ExitOnError)
	flags.StringVar(&device, "device", ecio.DefaultPath, "EC register file")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: omen-fan-mode [--device path] performance|powersave\n")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	log := logging.New(os.Stderr, slog.LevelInfo)
	os.Exit(run(flags.Args(), device, log))
}

func run(args []string, device string, log *slog.Logger) int {
	if len(args) != 1 {
		log.Error("expected exactly one mode argument", "valid", "performance, powersave")
		return 2
	}
	mode, err := perfmode.ParseMode(args[0])
	if err != nil {
		log.Error("invalid mode", "err", err)
		return 2
	}
	if err := kmod.RequireRoot(); err != nil {
		log.Error("precheck failed", "err", err)
		return 1
	}

	port, err := ecio.Open(device)
	if err != nil {
		log.Error("EC register file unavailable", "err", err)
		return 1
	}
	defer port.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := perfmode.Apply(ctx, port, mode); err != nil {
		log.Error("set mode failed", "mode", mode, "err", err)
		return 1
	}
	log.Info("set to " + string(mode) + " mode")
	return 0
}
