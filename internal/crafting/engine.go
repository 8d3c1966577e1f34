package crafting

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
)

var tracer = otel.Tracer("bountybot/crafting")

type Deficit struct {
	ItemID   string `json:"item_id"`
	Owned    int64  `json:"owned"`
	Required int64  `json:"required"`
}

type Outcome struct {
	Recipe      Recipe              `json:"recipe"`
	Success     bool                `json:"success"`
	Failure     outcome.Failure     `json:"failure,omitempty"`
	Balance     int64               `json:"balance"`
	Missing     []Deficit           `json:"missing,omitempty"`
	Consumed    []ledger.ItemAmount `json:"consumed,omitempty"`
	Produced    ledger.ItemAmount   `json:"produced"`
	NewQuantity int64               `json:"new_quantity,omitempty"`
}

// Engine crafts against the Ledger: pre-validate on a snapshot, then take the
// cost and inputs in one atomic spend and grant the output. Stores without
// Spender fall back to removal, debit and grant as separate atomic steps.
type Engine struct {
	ledger  *ledger.Ledger
	recipes *Catalog
	log     *slog.Logger
}

func NewEngine(l *ledger.Ledger, recipes *Catalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ledger: l, recipes: recipes, log: logger}
}

func (e *Engine) Recipes() *Catalog {
	return e.recipes
}

// Craft returns a Go error only when the datastore is unavailable; every
// other failure is reported in the Outcome.
func (e *Engine) Craft(ctx context.Context, userID string, r Recipe) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "crafting.Craft")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("recipe", r.ID))

	out, err := e.craft(ctx, userID, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "craft failed")
		if !errors.Is(err, ledger.ErrUnavailable) {
			return out, err
		}
		out.Failure = outcome.DatastoreUnavailable
		return out, err
	}
	span.SetAttributes(attribute.String("failure", string(out.Failure)))
	return out, nil
}

func (e *Engine) craft(ctx context.Context, userID string, r Recipe) (Outcome, error) {
	out := Outcome{Recipe: r}
	acct, err := e.ledger.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Balance = acct.Balance

	if acct.Balance < r.Cost {
		out.Failure = outcome.InsufficientFunds
		return out, nil
	}
	for _, in := range r.Inputs {
		if owned := acct.Quantity(in.ItemID); owned < in.Amount {
			out.Missing = append(out.Missing, Deficit{ItemID: in.ItemID, Owned: owned, Required: in.Amount})
		}
	}
	if len(out.Missing) > 0 {
		out.Failure = outcome.InsufficientMaterials
		return out, nil
	}

	if e.ledger.SupportsSpend() {
		res, err := e.ledger.Spend(ctx, userID, r.Cost, r.Inputs)
		if err != nil {
			return out, err
		}
		if !res.OK {
			e.log.Warn("craft lost race on spend", "user_id", userID, "recipe", r.ID)
			out.Failure = outcome.RaceLost
			return out, nil
		}
		out.Balance = res.NewBalance
		out.Consumed = append(out.Consumed, r.Inputs...)
		return e.grant(ctx, userID, r, out)
	}

	ok, err := e.consume(ctx, userID, r.Inputs, &out)
	if err != nil {
		return out, err
	}
	if !ok {
		e.log.Warn("craft lost race consuming inputs", "user_id", userID, "recipe", r.ID, "consumed", len(out.Consumed))
		out.Failure = outcome.RaceLost
		return out, nil
	}

	if r.Cost > 0 {
		res, err := e.ledger.DebitBalance(ctx, userID, r.Cost)
		if err != nil {
			return out, err
		}
		out.Balance = res.NewBalance
		if res.Debited < r.Cost {
			e.log.Warn("craft lost race on cost debit", "user_id", userID, "recipe", r.ID, "debited", res.Debited, "cost", r.Cost)
			out.Failure = outcome.RaceLost
			return out, nil
		}
	}
	return e.grant(ctx, userID, r, out)
}

func (e *Engine) grant(ctx context.Context, userID string, r Recipe, out Outcome) (Outcome, error) {
	qty, err := e.ledger.AddInventory(ctx, userID, r.Output.ItemID, r.Output.Amount)
	if err != nil {
		return out, err
	}
	out.Success = true
	out.Produced = r.Output
	out.NewQuantity = qty
	e.log.Info("crafted", "user_id", userID, "recipe", r.ID, "item", r.Output.ItemID, "amount", r.Output.Amount)
	return out, nil
}

// consume removes all inputs in one atomic step when the store supports it,
// otherwise one input at a time. Inputs already taken before a failed step
// are not refunded.
func (e *Engine) consume(ctx context.Context, userID string, inputs []ledger.ItemAmount, out *Outcome) (bool, error) {
	if len(inputs) == 0 {
		return true, nil
	}
	if e.ledger.SupportsBatchRemove() {
		ok, err := e.ledger.RemoveInventoryAll(ctx, userID, inputs)
		if err != nil || !ok {
			return false, err
		}
		out.Consumed = append(out.Consumed, inputs...)
		return true, nil
	}
	for _, in := range inputs {
		ok, err := e.ledger.RemoveInventory(ctx, userID, in.ItemID, in.Amount)
		if err != nil || !ok {
			return false, err
		}
		out.Consumed = append(out.Consumed, in)
	}
	return true, nil
}
