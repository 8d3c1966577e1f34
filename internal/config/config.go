package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// StoreConfig selects the ledger backend. Every process that touches
// accounts embeds it.
type StoreConfig struct {
	Store       string `env:"BOUNTYBOT_STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"BOUNTYBOT_DB_MAX_CONNS" envDefault:"10"`
	SQLitePath  string `env:"BOUNTYBOT_SQLITE_PATH" envDefault:"bountybot.db"`
}

// CatalogConfig points at optional YAML overrides of the embedded catalogs.
type CatalogConfig struct {
	ScenesPath  string `env:"BOUNTYBOT_SCENES_FILE"`
	RecipesPath string `env:"BOUNTYBOT_RECIPES_FILE"`
	TokenSecret string `env:"BOUNTYBOT_TOKEN_SECRET"`
}

type APIConfig struct {
	StoreConfig
	CatalogConfig
	Addr         string `env:"BOUNTYBOT_API_ADDR" envDefault:":8080"`
	APIKey       string `env:"BOUNTYBOT_API_KEY"`
	OtelEndpoint string `env:"BOUNTYBOT_OTEL_ENDPOINT"`
}

type BotConfig struct {
	StoreConfig
	CatalogConfig
	DiscordToken     string        `env:"DISCORD_BOT_TOKEN"`
	GuildID          string        `env:"DISCORD_GUILD_ID"`
	AnnounceEvery    time.Duration `env:"BOUNTYBOT_ANNOUNCE_EVERY" envDefault:"30s"`
	AnnounceChannels int           `env:"BOUNTYBOT_ANNOUNCE_CHANNELS" envDefault:"1024"`
	OtelEndpoint     string        `env:"BOUNTYBOT_OTEL_ENDPOINT"`
}

type WorkerConfig struct {
	StoreConfig
	PruneEvery        time.Duration `env:"BOUNTYBOT_PRUNE_EVERY" envDefault:"1h"`
	CooldownRetention time.Duration `env:"BOUNTYBOT_COOLDOWN_RETENTION" envDefault:"168h"`
	RunOnce           bool          `env:"BOUNTYBOT_WORKER_RUN_ONCE"`
}

type CLIConfig struct {
	APIBaseURL string `env:"BBCTL_API_BASE_URL" envDefault:"http://localhost:8080"`
	APIKey     string `env:"BBCTL_API_KEY"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	// PORT wins so the API runs unchanged on hosts that inject it.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("BOUNTYBOT_API_KEY is required")
	}
	return cfg, cfg.StoreConfig.validate()
}

func LoadBotFromEnv() (BotConfig, error) {
	var cfg BotConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.AnnounceChannels < 1 {
		return cfg, fmt.Errorf("BOUNTYBOT_ANNOUNCE_CHANNELS must be >= 1")
	}
	return cfg, cfg.StoreConfig.validate()
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.PruneEvery <= 0 {
		return cfg, fmt.Errorf("BOUNTYBOT_PRUNE_EVERY must be positive")
	}
	if cfg.CooldownRetention <= 0 {
		return cfg, fmt.Errorf("BOUNTYBOT_COOLDOWN_RETENTION must be positive")
	}
	return cfg, cfg.StoreConfig.validate()
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg
}

func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	s.Store = strings.ToLower(strings.TrimSpace(s.Store))
	s.DatabaseURL = strings.TrimSpace(s.DatabaseURL)
	switch s.Store {
	case StorePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when BOUNTYBOT_STORE=postgres")
		}
		if s.DBMaxConns < 1 {
			return fmt.Errorf("BOUNTYBOT_DB_MAX_CONNS must be >= 1")
		}
	case StoreSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("BOUNTYBOT_SQLITE_PATH is required when BOUNTYBOT_STORE=sqlite")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown BOUNTYBOT_STORE %q", s.Store)
	}
	return nil
}
