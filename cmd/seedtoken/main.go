package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/storage"
)

// seedtoken writes a Tesla refresh token obtained elsewhere into the
// configured credential store. The token is read from stdin so it doesn't end
// up in shell history.
func main() {
	s := storage.Configured()
	lflag.Configure()

	if _, err := log.ConfigureFromFlags(); err != nil {
		panic(err)
	}

	ctx := context.Background()
	defer s.Close()

	if existing, err := s.ReadRefreshToken(ctx); err == nil {
		log.Ctx(ctx).InfoContext(ctx, "replacing existing refresh token", slog.Int("length", len(existing)))
	}

	fmt.Fprint(os.Stderr, "refresh token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read refresh token", slog.Any("error", err))
		os.Exit(1)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		log.Ctx(ctx).ErrorContext(ctx, "refresh token cannot be empty")
		os.Exit(1)
	}

	if err := s.WriteRefreshToken(ctx, token); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store refresh token", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "stored refresh token", slog.Int("length", len(token)))
}
