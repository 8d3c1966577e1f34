// Package discord is the chat front-end: slash commands start activities and
// button clicks carry action tokens back into the game service.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"bountybot/internal/catalog"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
)

// Announce wins at or above this amount to the channel.
const announceMin = 100

// Session is the subset of *discordgo.Session the bot talks to.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	game     *game.Service
	throttle *Throttle
	log      *slog.Logger
	now      func() time.Time
}

func New(svc *game.Service, throttle *Throttle, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if throttle == nil {
		throttle = NewThrottle(1024, 30*time.Second)
	}
	return &Bot{game: svc, throttle: throttle, log: logger, now: time.Now}
}

func (b *Bot) Commands() []*discordgo.ApplicationCommand {
	minTier := float64(1)
	tierOpt := func() *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "tier",
			Description: "Difficulty tier; higher pays more and fails more",
			MinValue:    &minTier,
			MaxValue:    9,
		}
	}
	acts := b.game.Activities()
	return []*discordgo.ApplicationCommand{
		{
			Name:        "crime",
			Description: "Commit a crime for coins",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "scene", Description: "Where to strike", Choices: sceneChoices(acts, catalog.KindWeighted)},
				tierOpt(),
			},
		},
		{
			Name:        "puzzle",
			Description: "Crack a puzzle for coins",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "scene", Description: "Which puzzle", Choices: sceneChoices(acts, catalog.KindPuzzle)},
				tierOpt(),
			},
		},
		{Name: "balance", Description: "Show your coins and inventory"},
		{Name: "recipes", Description: "List crafting recipes"},
		{
			Name:        "craft",
			Description: "Craft an item",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "recipe", Description: "Recipe number, id or name", Required: true},
			},
		},
	}
}

// Handle answers one interaction. Each interaction is independent; nothing
// about it is remembered once the response is sent.
func (b *Bot) Handle(ctx context.Context, s Session, i *discordgo.InteractionCreate) {
	resp, announce := b.Respond(ctx, i.Interaction)
	if resp == nil {
		return
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		b.log.Error("interaction respond failed", "interaction_id", i.ID, "err", err)
		return
	}
	if announce != "" {
		if _, err := s.ChannelMessageSend(i.ChannelID, announce); err != nil {
			b.log.Warn("announcement failed", "channel_id", i.ChannelID, "err", err)
		}
	}
}

// Respond builds the response for i and an optional channel announcement.
func (b *Bot) Respond(ctx context.Context, i *discordgo.Interaction) (*discordgo.InteractionResponse, string) {
	userID := interactionUser(i)
	if userID == "" {
		return nil, ""
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return b.command(ctx, userID, i.ApplicationCommandData()), ""
	case discordgo.InteractionMessageComponent:
		return b.click(ctx, userID, i.ChannelID, i.MessageComponentData().CustomID)
	}
	return nil, ""
}

func (b *Bot) command(ctx context.Context, userID string, data discordgo.ApplicationCommandInteractionData) *discordgo.InteractionResponse {
	opts := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, o := range data.Options {
		opts[o.Name] = o
	}
	switch data.Name {
	case "crime":
		return b.present(ctx, userID, catalog.KindWeighted, opts)
	case "puzzle":
		return b.present(ctx, userID, catalog.KindPuzzle, opts)
	case "balance":
		acct, err := b.game.Ledger().GetOrCreateAccount(ctx, userID)
		if err != nil {
			return b.failure(userID, err)
		}
		return renderBalance(acct)
	case "recipes":
		return renderRecipes(b.game.Recipes().List())
	case "craft":
		query := ""
		if o, ok := opts["recipe"]; ok {
			query = o.StringValue()
		}
		out, candidates, err := b.game.Craft(ctx, userID, query)
		if err != nil {
			return b.failure(userID, err)
		}
		return renderCraft(out, candidates)
	}
	return notice("Unknown command", "I don't know that one.", colorWarn)
}

func (b *Bot) present(ctx context.Context, userID string, kind catalog.Kind, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionResponse {
	var (
		p   game.Prompt
		err error
	)
	scene, ok := opts["scene"]
	if !ok {
		p, err = b.game.PresentRandom(ctx, userID, kind)
	} else {
		tier := int64(1)
		if t, ok := opts["tier"]; ok {
			tier = t.IntValue()
		}
		p, err = b.game.Present(ctx, userID, fmt.Sprintf("%s-t%d", scene.StringValue(), tier))
	}
	if err != nil {
		return b.failure(userID, err)
	}
	if p.Kind != kind {
		return notice("Unknown game", failureText(outcome.UnknownActivity, 0), colorWarn)
	}
	return renderPrompt(p)
}

func (b *Bot) click(ctx context.Context, userID, channelID, customID string) (*discordgo.InteractionResponse, string) {
	p, err := b.game.Rerender(customID)
	if err != nil {
		return notice("Expired", failureText(outcome.Of(err), 0), colorWarn), ""
	}
	out, err := b.game.BuildOutcome(ctx, userID, customID)
	if err != nil {
		return b.failure(userID, err), ""
	}
	if out.Failure == outcome.NotOwner {
		return notice(p.Activity.Title, failureText(out.Failure, 0), colorWarn), ""
	}

	announce := ""
	if out.Success && out.Amount >= announceMin && channelID != "" && b.throttle.Allow(channelID, b.now()) {
		announce = announcement(userID, out, p.Activity.Title)
	}
	return renderOutcome(p, out), announce
}

func (b *Bot) failure(userID string, err error) *discordgo.InteractionResponse {
	f := outcome.Of(err)
	switch {
	case errors.Is(err, ledger.ErrUnavailable):
		b.log.Error("datastore unavailable", "user_id", userID, "err", err)
	case f == outcome.None:
		b.log.Error("interaction failed", "user_id", userID, "err", err)
	}
	return notice("Oops", failureText(f, 0), colorLoss)
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return strings.TrimSpace(i.Member.User.ID)
	}
	if i.User != nil {
		return strings.TrimSpace(i.User.ID)
	}
	return ""
}
