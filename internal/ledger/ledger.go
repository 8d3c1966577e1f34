package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"bountybot/internal/token"
)

// Ledger validates arguments and delegates each primitive to one atomic
// store operation. It holds no per-user state of its own.
type Ledger struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, log: logger, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

func (l *Ledger) GetOrCreateAccount(ctx context.Context, userID string) (Account, error) {
	if err := validateUser(userID); err != nil {
		return Account{}, err
	}
	acct, err := l.store.Ensure(ctx, userID)
	if err != nil {
		return Account{}, l.unavailable("ensure account", userID, err)
	}
	return acct, nil
}

func (l *Ledger) ClaimCooldown(ctx context.Context, userID, key string, d time.Duration) (CooldownResult, error) {
	var out CooldownResult
	if err := validateUser(userID); err != nil {
		return out, err
	}
	if err := validateID("cooldown key", key); err != nil {
		return out, err
	}
	if d < 0 {
		return out, fmt.Errorf("%w: negative cooldown", ErrInvalidArgument)
	}
	now := l.now().UTC().Truncate(time.Microsecond)
	claimed, last, err := l.store.ClaimCooldown(ctx, userID, key, now, now.Add(-d))
	if err != nil {
		return out, l.unavailable("claim cooldown", userID, err)
	}
	out.OK = claimed
	out.ClaimedAt = last
	if !claimed {
		out.Remaining = last.Add(d).Sub(now)
		if out.Remaining < 0 {
			out.Remaining = 0
		}
	}
	return out, nil
}

func (l *Ledger) AwardBalance(ctx context.Context, userID string, amount int64) (AwardResult, error) {
	var out AwardResult
	if err := validateUser(userID); err != nil {
		return out, err
	}
	if amount <= 0 {
		return out, ErrInvalidAmount
	}
	bal, err := l.store.Award(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, ErrOverflow) {
			return out, err
		}
		return out, l.unavailable("award", userID, err)
	}
	out.OK = true
	out.NewBalance = bal
	return out, nil
}

func (l *Ledger) DebitBalance(ctx context.Context, userID string, amount int64) (DebitResult, error) {
	var out DebitResult
	if err := validateUser(userID); err != nil {
		return out, err
	}
	if amount <= 0 {
		return out, ErrInvalidAmount
	}
	debited, bal, err := l.store.DebitFloor(ctx, userID, amount)
	if err != nil {
		return out, l.unavailable("debit", userID, err)
	}
	out.OK = true
	out.Debited = debited
	out.NewBalance = bal
	return out, nil
}

func (l *Ledger) AddInventory(ctx context.Context, userID, itemID string, amount int64) (int64, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	if err := validateID("item id", itemID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	n, err := l.store.AddItem(ctx, userID, itemID, amount)
	if err != nil {
		if errors.Is(err, ErrOverflow) {
			return 0, err
		}
		return 0, l.unavailable("add inventory", userID, err)
	}
	return n, nil
}

func (l *Ledger) RemoveInventory(ctx context.Context, userID, itemID string, amount int64) (bool, error) {
	if err := validateUser(userID); err != nil {
		return false, err
	}
	if err := validateID("item id", itemID); err != nil {
		return false, err
	}
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	ok, err := l.store.RemoveItem(ctx, userID, itemID, amount)
	if err != nil {
		return false, l.unavailable("remove inventory", userID, err)
	}
	return ok, nil
}

// SupportsBatchRemove reports whether RemoveInventoryAll is a single atomic
// operation on the configured store.
func (l *Ledger) SupportsBatchRemove() bool {
	_, ok := l.store.(BatchRemover)
	return ok
}

// RemoveInventoryAll subtracts every item or none. Stores without batch
// support return an error; callers check SupportsBatchRemove first.
func (l *Ledger) RemoveInventoryAll(ctx context.Context, userID string, items []ItemAmount) (bool, error) {
	if err := validateUser(userID); err != nil {
		return false, err
	}
	merged, err := mergeItems(items)
	if err != nil {
		return false, err
	}
	br, ok := l.store.(BatchRemover)
	if !ok {
		return false, fmt.Errorf("%w: store has no batch removal", ErrInvalidArgument)
	}
	removed, err := br.RemoveItems(ctx, userID, merged)
	if err != nil {
		return false, l.unavailable("remove inventory batch", userID, err)
	}
	return removed, nil
}

// SupportsSpend reports whether Spend is a single atomic operation on the
// configured store.
func (l *Ledger) SupportsSpend() bool {
	_, ok := l.store.(Spender)
	return ok
}

// Spend debits exactly cost and removes every item in one atomic step, or
// changes nothing and reports OK false.
func (l *Ledger) Spend(ctx context.Context, userID string, cost int64, items []ItemAmount) (SpendResult, error) {
	var out SpendResult
	if err := validateUser(userID); err != nil {
		return out, err
	}
	if cost < 0 {
		return out, ErrInvalidAmount
	}
	var merged []ItemAmount
	if len(items) > 0 {
		var err error
		if merged, err = mergeItems(items); err != nil {
			return out, err
		}
	}
	sp, ok := l.store.(Spender)
	if !ok {
		return out, fmt.Errorf("%w: store has no atomic spend", ErrInvalidArgument)
	}
	spent, bal, err := sp.Spend(ctx, userID, cost, merged)
	if err != nil {
		return out, l.unavailable("spend", userID, err)
	}
	out.OK = spent
	if spent {
		out.NewBalance = bal
	}
	return out, nil
}

func (l *Ledger) PruneCooldowns(ctx context.Context, olderThan time.Time) (int64, error) {
	p, ok := l.store.(CooldownPruner)
	if !ok {
		return 0, nil
	}
	n, err := p.PruneCooldowns(ctx, olderThan)
	if err != nil {
		return 0, l.unavailable("prune cooldowns", "", err)
	}
	return n, nil
}

func (l *Ledger) unavailable(op, userID string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	l.log.Error("ledger operation failed", "op", op, "user_id", userID, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// validateUser applies the same shape action tokens carry, so every account
// the ledger accepts can also own a prompt.
func validateUser(userID string) error {
	if !token.ValidOwner(userID) {
		return fmt.Errorf("%w: user id", ErrInvalidArgument)
	}
	return nil
}

func validateID(what, v string) error {
	if strings.TrimSpace(v) == "" || len(v) > 64 {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, what)
	}
	return nil
}

// mergeItems folds duplicate item ids so a batch never checks the same row
// twice against a stale quantity.
func mergeItems(items []ItemAmount) ([]ItemAmount, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty item list", ErrInvalidArgument)
	}
	idx := make(map[string]int, len(items))
	out := make([]ItemAmount, 0, len(items))
	for _, it := range items {
		if err := validateID("item id", it.ItemID); err != nil {
			return nil, err
		}
		if it.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		if i, ok := idx[it.ItemID]; ok {
			if out[i].Amount > math.MaxInt64-it.Amount {
				return nil, ErrOverflow
			}
			out[i].Amount += it.Amount
			continue
		}
		idx[it.ItemID] = len(out)
		out = append(out, it)
	}
	return out, nil
}
