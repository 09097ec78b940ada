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
	"github.com/raterudder/powerwall-tou/pkg/server"
	"github.com/raterudder/powerwall-tou/pkg/storage"
)

func main() {
	// init packages
	s := storage.Configured()
	oc := ess.ConfiguredOAuth()

	// init server
	srv := server.Configured(s, oc)

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

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
