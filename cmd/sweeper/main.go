package main

// Remove expired Postgres-backed sessions once and exit, for cron:
//   go run ./cmd/sweeper

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendorsec-backend/internal/bootstrap"
	"vendorsec-backend/internal/shared/config"
	"vendorsec-backend/internal/shared/telemetry"
)

type sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Shutdown()

	if app.DB == nil {
		log.Printf("sweeper: no database configured; in-memory sessions belong to the API process")
		return
	}

	if _, err := run(ctx, app.Sessions, time.Now().UTC()); err != nil {
		log.Printf("sweep failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s sweeper, now time.Time) (int, error) {
	start := time.Now()
	removed, err := s.SweepExpired(ctx, now)
	if err != nil {
		telemetry.Error("sweeper.failed", map[string]any{"err": err, "removed": removed})
		return removed, err
	}
	telemetry.Info("sweeper.done", map[string]any{
		"removed":     removed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return removed, nil
}
