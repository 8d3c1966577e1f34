package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bountybot/internal/catalog"
	cl "bountybot/internal/cli"
	"bountybot/internal/config"
	"bountybot/internal/game"

	"github.com/spf13/cobra"
)

type settings struct {
	apiBase string
	apiKey  string
	user    string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	s := &settings{apiBase: cfg.APIBaseURL, apiKey: cfg.APIKey}
	if p, err := cl.LoadProfile(); err == nil {
		if p.APIBaseURL != "" && os.Getenv("BBCTL_API_BASE_URL") == "" {
			s.apiBase = p.APIBaseURL
		}
		if p.APIKey != "" && s.apiKey == "" {
			s.apiKey = p.APIKey
		}
		s.user = p.UserID
	}

	root := &cobra.Command{
		Use:          "bbctl",
		Short:        "Operate the bountybot economy over its HTTP API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&s.apiBase, "api", s.apiBase, "API base URL")
	root.PersistentFlags().StringVar(&s.user, "user", s.user, "user id to act as")

	root.AddCommand(
		newUseCmd(s),
		newAccountCmd(s),
		newGrantCmd(s),
		newRecipesCmd(s),
		newCraftCmd(s),
		newActivitiesCmd(s),
		newPlayCmd(s),
		newTokenCmd(s),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(s *settings) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(s.apiBase), "/"), s.apiKey)
}

func requireUser(s *settings, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if s.user == "" {
		return "", fmt.Errorf("no user: pass one or run `bbctl use --user <id>`")
	}
	return s.user, nil
}

var requestTimeout = 30 * time.Second

func timeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func newUseCmd(s *settings) *cobra.Command {
	var key string
	var forget bool
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Save the API URL, key and default user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if forget {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				printSuccess("Profile cleared.")
				return nil
			}
			if key == "" {
				key = s.apiKey
			}
			if key == "" {
				var err error
				if key, err = promptSecret("API key"); err != nil {
					return err
				}
			}
			if err := cl.SaveProfile(cl.Profile{APIBaseURL: s.apiBase, APIKey: key, UserID: s.user}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Using %s as %s.", s.apiBase, orNone(s.user)))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key")
	cmd.Flags().BoolVar(&forget, "clear", false, "forget the saved profile")
	return cmd
}

func newAccountCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "account [user]",
		Short: "Show balance, inventory and cooldowns",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(s, args)
			if err != nil {
				return err
			}
			ctx, cancel := timeout(cmd)
			defer cancel()
			acct, err := newClient(s).Account(ctx, user)
			if err != nil {
				return err
			}
			renderAccount(acct)
			return nil
		},
	}
}

func newGrantCmd(s *settings) *cobra.Command {
	var coins, fine, amount int64
	var item, reason string
	cmd := &cobra.Command{
		Use:   "grant [user]",
		Short: "Award or fine coins, or grant items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(s, args)
			if err != nil {
				return err
			}
			if coins == 0 && fine == 0 && item == "" {
				return fmt.Errorf("nothing to do: pass --coins, --fine or --item")
			}
			ctx, cancel := timeout(cmd)
			defer cancel()
			client := newClient(s)
			if coins > 0 {
				res, err := client.Award(ctx, user, coins, reason)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Awarded %s. Balance %s.", comma(coins), comma(res.NewBalance)))
			}
			if fine > 0 {
				res, err := client.Debit(ctx, user, fine, reason)
				if err != nil {
					return err
				}
				if res.Debited < fine {
					printWarn(fmt.Sprintf("Fined %s of %s (floor reached). Balance %s.", comma(res.Debited), comma(fine), comma(res.NewBalance)))
				} else {
					printSuccess(fmt.Sprintf("Fined %s. Balance %s.", comma(res.Debited), comma(res.NewBalance)))
				}
			}
			if item != "" {
				qty, err := client.AddItem(ctx, user, item, amount)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Granted %d %s. Now %d.", amount, item, qty))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&coins, "coins", 0, "coins to award")
	cmd.Flags().Int64Var(&fine, "fine", 0, "coins to debit, down to zero")
	cmd.Flags().StringVar(&item, "item", "", "item id to grant")
	cmd.Flags().Int64Var(&amount, "amount", 1, "item amount")
	cmd.Flags().StringVar(&reason, "reason", "bbctl", "audit reason")
	return cmd
}

func newRecipesCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List crafting recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout(cmd)
			defer cancel()
			list, err := newClient(s).Recipes(ctx)
			if err != nil {
				return err
			}
			renderRecipes(list)
			return nil
		},
	}
}

func newCraftCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "craft <recipe>",
		Short: "Craft a recipe by number, id or name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(s, nil)
			if err != nil {
				return err
			}
			ctx, cancel := timeout(cmd)
			defer cancel()
			res, err := newClient(s).Craft(ctx, user, strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderCraft(res)
			return nil
		},
	}
}

func newActivitiesCmd(s *settings) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout(cmd)
			defer cancel()
			list, err := newClient(s).Activities(ctx, catalog.Kind(kind))
			if err != nil {
				return err
			}
			renderActivities(list)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "weighted or puzzle")
	return cmd
}

func newPlayCmd(s *settings) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "play [activity-id]",
		Short: "Present an activity and pick a choice",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(s, nil)
			if err != nil {
				return err
			}
			client := newClient(s)
			p, err := present(cmd, client, user, args, catalog.Kind(kind))
			if err != nil {
				return err
			}
			if p.CooldownRemaining > 0 {
				printWarn(fmt.Sprintf("On cooldown for %s.", p.CooldownRemaining.Round(time.Second)))
				return nil
			}
			renderPrompt(p)

			labels := make([]string, 0, len(p.Choices))
			for i := range p.Choices {
				labels = append(labels, strconv.Itoa(i+1))
			}
			pick, err := promptChoice("Choice", labels, "1")
			if err != nil {
				return err
			}
			idx, _ := strconv.Atoi(pick)

			// The deadline starts after the choice; time at the prompt is not a request.
			ctx, cancel := timeout(cmd)
			defer cancel()
			out, err := client.Act(ctx, user, p.Choices[idx-1].Token)
			if err != nil {
				return err
			}
			renderOutcome(p, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "weighted or puzzle, when no activity id is given")
	return cmd
}

func present(cmd *cobra.Command, client *cl.Client, user string, args []string, kind catalog.Kind) (game.Prompt, error) {
	ctx, cancel := timeout(cmd)
	defer cancel()
	if len(args) == 1 {
		return client.Present(ctx, user, args[0])
	}
	return client.PresentRandom(ctx, user, kind)
}

func newTokenCmd(s *settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "token",
		Short: "Inspect action tokens",
	}
	root.AddCommand(&cobra.Command{
		Use:   "decode <token>",
		Short: "Decode and verify an action token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout(cmd)
			defer cancel()
			out, err := newClient(s).DecodeToken(ctx, args[0])
			if err != nil {
				return err
			}
			renderToken(out)
			return nil
		},
	})
	return root
}

func orNone(s string) string {
	if s == "" {
		return "(no user)"
	}
	return s
}
