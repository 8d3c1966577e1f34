// Package app wires configuration into the stores and services each process
// runs.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"bountybot/internal/catalog"
	"bountybot/internal/config"
	"bountybot/internal/crafting"
	"bountybot/internal/db"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/ledger/memstore"
	"bountybot/internal/ledger/pgstore"
	"bountybot/internal/ledger/sqlitestore"
	"bountybot/internal/token"
)

// OpenStore opens the configured ledger backend. The returned close func is
// never nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ledger.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, func() {}, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		logger.Info("ledger store ready", "store", cfg.Store, "max_conns", cfg.DBMaxConns)
		return pgstore.New(pool), pool.Close, nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("ledger store ready", "store", cfg.Store, "path", cfg.SQLitePath)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("close sqlite store", "err", err)
			}
		}, nil
	case config.StoreMemory:
		logger.Warn("ledger store is in-memory; balances are lost on exit")
		return memstore.New(), func() {}, nil
	}
	return nil, func() {}, fmt.Errorf("unknown store %q", cfg.Store)
}

// LoadCatalogs builds the activity and recipe catalogs. Extra scenes are
// merged into the embedded set and a clashing id fails startup; a recipes
// file replaces the embedded list.
func LoadCatalogs(cfg config.CatalogConfig) (*catalog.Catalog, *crafting.Catalog, error) {
	acts, err := catalog.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("default scenes: %w", err)
	}
	if cfg.ScenesPath != "" {
		extra, err := catalog.LoadFile(cfg.ScenesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("scenes %s: %w", cfg.ScenesPath, err)
		}
		if acts, err = catalog.Merge(acts, extra); err != nil {
			return nil, nil, err
		}
	}

	recipes, err := crafting.DefaultCatalog()
	if cfg.RecipesPath != "" {
		recipes, err = crafting.LoadCatalog(cfg.RecipesPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("recipes: %w", err)
	}
	return acts, recipes, nil
}

// NewService assembles the game service over an already-open store.
func NewService(store ledger.Store, cfg config.CatalogConfig, logger *slog.Logger) (*game.Service, error) {
	acts, recipes, err := LoadCatalogs(cfg)
	if err != nil {
		return nil, err
	}
	l := ledger.New(store, logger)
	engine := crafting.NewEngine(l, recipes, logger)
	codec := token.NewCodec(cfg.TokenSecret)
	if !codec.Signed() {
		logger.Warn("action tokens are unsigned; set BOUNTYBOT_TOKEN_SECRET to reject forged tokens")
	}
	logger.Info("catalogs loaded", "activities", acts.Len(), "recipes", len(recipes.List()))
	return game.NewService(l, acts, engine, codec, logger), nil
}
