package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"bountybot/internal/catalog"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
)

const (
	colorNeutral = 0x5865F2
	colorWin     = 0x57F287
	colorLoss    = 0xED4245
	colorWarn    = 0xFEE75C
)

func embedResponse(e *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{e},
		Components: components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data}
}

func notice(title, msg string, color int) *discordgo.InteractionResponse {
	return embedResponse(&discordgo.MessageEmbed{Title: title, Description: msg, Color: color}, nil, true)
}

// buttons renders one button per choice; the custom id is the action token.
// Disabled rows mark the chosen and correct alternatives.
func buttons(p game.Prompt, disabled bool, chosen, correct string) []discordgo.MessageComponent {
	row := discordgo.ActionsRow{}
	for _, c := range p.Choices {
		style := discordgo.PrimaryButton
		if disabled {
			style = discordgo.SecondaryButton
			switch c.ID {
			case correct:
				style = discordgo.SuccessButton
			case chosen:
				style = discordgo.DangerButton
			}
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    c.Label,
			Style:    style,
			CustomID: c.Token,
			Disabled: disabled,
		})
	}
	return []discordgo.MessageComponent{row}
}

func promptEmbed(p game.Prompt) *discordgo.MessageEmbed {
	title := p.Activity.Title
	if p.Activity.Tier > 1 {
		title = fmt.Sprintf("%s (tier %d)", title, p.Activity.Tier)
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: p.Activity.Prompt,
		Color:       colorNeutral,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Only the player who started this can choose."},
	}
}

func renderPrompt(p game.Prompt) *discordgo.InteractionResponse {
	if p.CooldownRemaining > 0 {
		return notice("Lay low", fmt.Sprintf("You can try again in %s.", humanDuration(p.CooldownRemaining)), colorWarn)
	}
	return embedResponse(promptEmbed(p), buttons(p, false, "", ""), false)
}

// renderOutcome edits the original message in place. Controls stay visible but
// disabled so the same token cannot be clicked twice.
func renderOutcome(p game.Prompt, out game.Outcome) *discordgo.InteractionResponse {
	e := promptEmbed(p)
	e.Footer = nil
	switch {
	case out.Success:
		e.Color = colorWin
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Result", Value: fmt.Sprintf("Success! You earned **%d**.", out.Amount)})
	case out.Resolved:
		e.Color = colorLoss
		msg := fmt.Sprintf("Busted. You lost **%d**.", out.Debited)
		if out.Debited < out.Amount {
			msg = fmt.Sprintf("Busted. The fine was %d but you only had **%d**.", out.Amount, out.Debited)
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Result", Value: msg})
	default:
		e.Color = colorWarn
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Result", Value: failureText(out.Failure, out.CooldownRemaining)})
	}
	if out.Resolved {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Balance", Value: fmt.Sprintf("%d", out.NewBalance), Inline: true})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{e},
			Components: buttons(p, true, out.ChoiceID, out.CorrectChoiceID),
		},
	}
}

func failureText(f outcome.Failure, remaining time.Duration) string {
	switch f {
	case outcome.CooldownActive:
		return fmt.Sprintf("Too soon. Try again in %s.", humanDuration(remaining))
	case outcome.NotOwner:
		return "This isn't your game."
	case outcome.UnknownActivity:
		return "That game no longer exists."
	case outcome.InvalidChoice:
		return "That choice is not valid anymore."
	case outcome.UnknownRecipe:
		return "No recipe matches that."
	case outcome.AmbiguousRecipe:
		return "Several recipes match; be more specific."
	case outcome.InsufficientFunds:
		return "You can't afford that."
	case outcome.InsufficientMaterials:
		return "You are missing materials."
	case outcome.RaceLost:
		return "Something else spent your resources first. Check your inventory and try again."
	case outcome.DatastoreUnavailable:
		return "The vault is unreachable right now. Try again shortly."
	default:
		return "Something went wrong."
	}
}

func renderBalance(acct ledger.Account) *discordgo.InteractionResponse {
	e := &discordgo.MessageEmbed{
		Title: "Balance",
		Color: colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Coins", Value: fmt.Sprintf("%d", acct.Balance), Inline: true},
		},
	}
	items := acct.Items()
	if len(items) == 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Inventory", Value: "empty"})
	} else {
		lines := make([]string, 0, len(items))
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("%s × %d", it.ItemID, it.Amount))
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Inventory", Value: strings.Join(lines, "\n")})
	}
	return embedResponse(e, nil, true)
}

func recipeLine(i int, r crafting.Recipe) string {
	ins := make([]string, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		ins = append(ins, fmt.Sprintf("%d %s", in.Amount, in.ItemID))
	}
	inputs := "nothing"
	if len(ins) > 0 {
		inputs = strings.Join(ins, ", ")
	}
	return fmt.Sprintf("`%d` **%s** (%d coins): %s → %d %s", i+1, r.Name, r.Cost, inputs, r.Output.Amount, r.Output.ItemID)
}

func renderRecipes(list []crafting.Recipe) *discordgo.InteractionResponse {
	lines := make([]string, 0, len(list))
	for i, r := range list {
		lines = append(lines, recipeLine(i, r))
	}
	return embedResponse(&discordgo.MessageEmbed{
		Title:       "Recipes",
		Description: strings.Join(lines, "\n"),
		Color:       colorNeutral,
	}, nil, true)
}

func renderCraft(out crafting.Outcome, candidates []crafting.Recipe) *discordgo.InteractionResponse {
	if out.Success {
		return embedResponse(&discordgo.MessageEmbed{
			Title:       "Crafted " + out.Recipe.Name,
			Description: fmt.Sprintf("You now have %d %s. Balance: %d.", out.NewQuantity, out.Produced.ItemID, out.Balance),
			Color:       colorWin,
		}, nil, false)
	}
	msg := failureText(out.Failure, 0)
	switch out.Failure {
	case outcome.InsufficientFunds:
		msg = fmt.Sprintf("%s costs %d; you have %d.", out.Recipe.Name, out.Recipe.Cost, out.Balance)
	case outcome.InsufficientMaterials:
		lines := []string{"Missing materials:"}
		for _, d := range out.Missing {
			lines = append(lines, fmt.Sprintf("- %s: have %d, need %d", d.ItemID, d.Owned, d.Required))
		}
		msg = strings.Join(lines, "\n")
	case outcome.AmbiguousRecipe:
		lines := []string{"Did you mean:"}
		for _, c := range candidates {
			lines = append(lines, "- "+c.Name)
		}
		msg = strings.Join(lines, "\n")
	}
	return notice("Crafting", msg, colorWarn)
}

func announcement(userID string, out game.Outcome, title string) string {
	return fmt.Sprintf("<@%s> pulled off **%s** and walked away with %d coins!", userID, title, out.Amount)
}

func humanDuration(d time.Duration) string {
	if d < time.Second {
		return "a moment"
	}
	return d.Round(time.Second).String()
}

func sceneChoices(c *catalog.Catalog, kind catalog.Kind) []*discordgo.ApplicationCommandOptionChoice {
	seen := map[string]bool{}
	var out []*discordgo.ApplicationCommandOptionChoice
	for _, a := range c.ListKind(kind) {
		h := a.Meta()
		if seen[h.Scene] {
			continue
		}
		seen[h.Scene] = true
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: h.Title, Value: h.Scene})
	}
	return out
}
