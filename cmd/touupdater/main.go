package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/ess"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/metrics"
	"github.com/raterudder/powerwall-tou/pkg/storage"
	"github.com/raterudder/powerwall-tou/pkg/updater"
	"github.com/raterudder/powerwall-tou/pkg/utility"
)

func main() {
	// init packages
	u := utility.Configured()
	s := storage.Configured()
	e := ess.Configured(s)
	m := metrics.Configured()

	up := updater.Configured(u, e, m)

	// parse flags
	lflag.Configure()

	level, err := log.ConfigureFromFlags()
	if err != nil {
		panic(err)
	}
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if err := up.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "tariff update failed", slog.Any("error", err))
		// deferred calls don't run on os.Exit
		cancel()
		_ = s.Close()
		os.Exit(1)
	}
}
