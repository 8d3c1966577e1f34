package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bountybot/internal/catalog"
	"bountybot/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStoreSQLiteAndMemory(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()

	store, closeFn, err := OpenStore(ctx, config.StoreConfig{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "b.db")}, logger)
	require.NoError(t, err)
	defer closeFn()
	svc, err := NewService(store, config.CatalogConfig{TokenSecret: "x"}, logger)
	require.NoError(t, err)
	p, err := svc.Present(ctx, "u1", "alley-t1")
	require.NoError(t, err)
	require.NotEmpty(t, p.Choices)

	mem, closeMem, err := OpenStore(ctx, config.StoreConfig{Store: config.StoreMemory}, logger)
	require.NoError(t, err)
	closeMem()
	require.NotNil(t, mem)

	_, closeBad, err := OpenStore(ctx, config.StoreConfig{Store: "redis"}, logger)
	require.Error(t, err)
	closeBad()
}

func TestLoadCatalogsMergesExtraScenes(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(extra, []byte(`
tiers: {count: 2, stake_growth: 0.5, risk_step: 0.1}
scenes:
  - id: bank
    title: Bank Job
    kind: weighted
    prompt: Pick a way in.
    cooldown_key: crime
    cooldown: 5m
    options:
      - {id: vent, label: Vent, p: 0.4, reward: [50, 90], penalty: [20, 40]}
      - {id: door, label: Front door, p: 0.1, reward: [200, 400], penalty: [80, 120]}
`), 0o600))

	acts, recipes, err := LoadCatalogs(config.CatalogConfig{ScenesPath: extra})
	require.NoError(t, err)
	_, ok := acts.Crime("bank-t2")
	require.True(t, ok)
	require.Len(t, acts.ListKind(catalog.KindWeighted), 4*5+2)
	require.NotEmpty(t, recipes.List())

	clash := filepath.Join(dir, "clash.yaml")
	require.NoError(t, os.WriteFile(clash, []byte(`
tiers: {count: 1}
scenes:
  - id: alley
    title: Alley again
    kind: weighted
    cooldown_key: crime
    options:
      - {id: a, label: A, p: 0.5, reward: [1, 2], penalty: [1, 2]}
      - {id: b, label: B, p: 0.5, reward: [1, 2], penalty: [1, 2]}
`), 0o600))
	_, _, err = LoadCatalogs(config.CatalogConfig{ScenesPath: clash})
	require.ErrorIs(t, err, catalog.ErrDuplicateActivity)

	_, _, err = LoadCatalogs(config.CatalogConfig{RecipesPath: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}
