package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"bountybot/internal/catalog"
	cl "bountybot/internal/cli"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/outcome"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	// Swapped in tests.
	stdinFD      = int(os.Stdin.Fd())
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptSecret(label string) (string, error) {
	if !isTerminal(stdinFD) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := readPassword(stdinFD)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderAccount(acct cl.Account) {
	accent.Printf("Account %s\n", acct.UserID)
	fmt.Printf("  Balance: %s\n", success.Sprint(comma(acct.Balance)))
	if len(acct.Items) == 0 {
		printInfo("  Inventory: empty")
	} else {
		fmt.Println("  Inventory:")
		for _, it := range acct.Items {
			fmt.Printf("    %-14s %6d\n", it.ItemID, it.Amount)
		}
	}
	if len(acct.Cooldowns) > 0 {
		keys := make([]string, 0, len(acct.Cooldowns))
		for k := range acct.Cooldowns {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("  Last claimed:")
		for _, k := range keys {
			fmt.Printf("    %-14s %s ago\n", k, time.Since(acct.Cooldowns[k]).Round(time.Second))
		}
	}
}

func renderRecipes(list []crafting.Recipe) {
	accent.Println("Recipes")
	for i, r := range list {
		ins := make([]string, 0, len(r.Inputs))
		for _, in := range r.Inputs {
			ins = append(ins, fmt.Sprintf("%d %s", in.Amount, in.ItemID))
		}
		inputs := "nothing"
		if len(ins) > 0 {
			inputs = strings.Join(ins, ", ")
		}
		fmt.Printf("  %2d  %-16s %6s coins  %s -> %d %s\n", i+1, truncate(r.Name, 16), comma(r.Cost), inputs, r.Output.Amount, r.Output.ItemID)
	}
}

func renderCraft(res cl.CraftResult) {
	out := res.Outcome
	if out.Success {
		printSuccess(fmt.Sprintf("Crafted %s. You now have %d %s. Balance %s.", out.Recipe.Name, out.NewQuantity, out.Produced.ItemID, comma(out.Balance)))
		return
	}
	switch out.Failure {
	case outcome.InsufficientFunds:
		printError(fmt.Sprintf("%s costs %s; balance is %s.", out.Recipe.Name, comma(out.Recipe.Cost), comma(out.Balance)))
	case outcome.InsufficientMaterials:
		printError("Missing materials:")
		for _, d := range out.Missing {
			fmt.Printf("  %-14s have %d, need %d\n", d.ItemID, d.Owned, d.Required)
		}
	case outcome.AmbiguousRecipe:
		printWarn("Several recipes match:")
		for _, c := range res.Candidates {
			fmt.Printf("  %s (%s)\n", c.Name, c.ID)
		}
	case outcome.RaceLost:
		printError("Lost a race with another spend. Consumed inputs were not refunded.")
	default:
		printError(string(out.Failure))
	}
}

func renderActivities(list []catalog.Header) {
	accent.Println("Activities")
	for _, h := range list {
		fmt.Printf("  %-14s %-16s tier %d  cooldown %-6s %s\n", h.ID, truncate(h.Title, 16), h.Tier, h.Cooldown, h.CooldownKey)
	}
}

func renderPrompt(p game.Prompt) {
	accent.Printf("%s (tier %d)\n", p.Activity.Title, p.Activity.Tier)
	if p.Activity.Prompt != "" {
		printInfo(p.Activity.Prompt)
	}
	for i, c := range p.Choices {
		fmt.Printf("  %d) %s\n", i+1, c.Label)
	}
}

func renderOutcome(p game.Prompt, out game.Outcome) {
	switch {
	case out.Success:
		printSuccess(fmt.Sprintf("Success! +%s. Balance %s.", comma(out.Amount), comma(out.NewBalance)))
	case out.Resolved:
		printError(fmt.Sprintf("Failed. -%s (fine %s). Balance %s.", comma(out.Debited), comma(out.Amount), comma(out.NewBalance)))
	case out.Failure == outcome.CooldownActive:
		printWarn(fmt.Sprintf("On cooldown for %s.", out.CooldownRemaining.Round(time.Second)))
	default:
		printError(string(out.Failure))
	}
	if out.CorrectChoiceID != "" {
		for _, c := range p.Choices {
			if c.ID == out.CorrectChoiceID {
				printInfo("The answer was: " + c.Label)
			}
		}
	}
}

func renderToken(raw map[string]any) {
	keys := []string{"verb", "owner_id", "activity_id", "choice_id", "seed", "signed"}
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			fmt.Printf("  %-12s %v\n", k, v)
		}
	}
	if _, ok := raw["prompt"]; ok {
		printSuccess("Token belongs to a live activity.")
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
