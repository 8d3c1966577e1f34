package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"bountybot/internal/app"
	"bountybot/internal/config"
	"bountybot/internal/discord"
	"bountybot/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	shutdownTracing, err := telemetry.Setup(ctx, "bountybot-discord", cfg.OtelEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := app.OpenStore(ctx, cfg.StoreConfig, logger)
	if err != nil {
		logger.Error("open store failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	gameSvc, err := app.NewService(store, cfg.CatalogConfig, logger)
	if err != nil {
		logger.Error("game init failed", "err", err)
		os.Exit(1)
	}
	bot := discord.New(gameSvc, discord.NewThrottle(cfg.AnnounceChannels, cfg.AnnounceEvery), logger)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Error("discord session failed", "err", err)
		os.Exit(1)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		bot.Handle(ctx, s, i)
	})
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("discord connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := dg.Open(); err != nil {
		logger.Error("discord open failed", "err", err)
		os.Exit(1)
	}
	defer dg.Close()

	if _, err := dg.ApplicationCommandBulkOverwrite(dg.State.User.ID, cfg.GuildID, bot.Commands()); err != nil {
		logger.Error("register commands failed", "err", err)
		os.Exit(1)
	}

	logger.Info("bountybot discord running", "guild_id", cfg.GuildID, "store", cfg.Store)
	<-ctx.Done()
	logger.Info("discord shutdown")
}
