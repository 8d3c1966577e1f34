package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bountybot/internal/app"
	"bountybot/internal/config"
	"bountybot/internal/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, closeStore, err := app.OpenStore(ctx, cfg.StoreConfig, logger)
	if err != nil {
		logger.Error("open store failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	l := ledger.New(store, logger)
	prune := func() error {
		cutoff := l.Now().Add(-cfg.CooldownRetention)
		n, err := l.PruneCooldowns(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("cooldowns pruned", "removed", n, "older_than", cutoff)
		return nil
	}

	if cfg.RunOnce {
		if err := prune(); err != nil {
			logger.Error("prune failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.PruneEvery)
	defer ticker.Stop()

	logger.Info("worker started", "prune_every", cfg.PruneEvery.String(), "retention", cfg.CooldownRetention.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := prune(); err != nil {
				logger.Error("prune failed", "err", err)
			}
		}
	}
}
