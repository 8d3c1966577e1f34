package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"bountybot/internal/outcome"
)

var (
	ErrInvalidAmount   = errors.New("amount must be > 0")
	ErrInvalidArgument = errors.New("invalid ledger argument")
	ErrOverflow        = errors.New("balance overflow")
	// ErrUnavailable is the one failure that leaves the core as a Go error.
	ErrUnavailable = outcome.ErrDatastoreUnavailable
)

type ItemAmount struct {
	ItemID string `json:"item_id" yaml:"item"`
	Amount int64  `json:"amount" yaml:"amount"`
}

// Account is a point-in-time snapshot. It is never written back; all
// mutations go through the Ledger primitives.
type Account struct {
	UserID    string               `json:"user_id"`
	Balance   int64                `json:"balance"`
	Inventory map[string]int64     `json:"inventory"`
	Cooldowns map[string]time.Time `json:"cooldowns"`
}

func (a Account) Quantity(itemID string) int64 {
	return a.Inventory[itemID]
}

// Items returns the inventory sorted by item id.
func (a Account) Items() []ItemAmount {
	out := make([]ItemAmount, 0, len(a.Inventory))
	for id, n := range a.Inventory {
		if n > 0 {
			out = append(out, ItemAmount{ItemID: id, Amount: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

type CooldownResult struct {
	OK        bool          `json:"ok"`
	Remaining time.Duration `json:"remaining"`
	ClaimedAt time.Time     `json:"claimed_at"`
}

type AwardResult struct {
	OK         bool  `json:"ok"`
	NewBalance int64 `json:"new_balance"`
}

type SpendResult struct {
	OK         bool  `json:"ok"`
	NewBalance int64 `json:"new_balance"`
}

type DebitResult struct {
	OK         bool  `json:"ok"`
	Debited    int64 `json:"debited"`
	NewBalance int64 `json:"new_balance"`
}

// Store is the datastore contract. Every method must be a single atomic
// operation: it either applies completely or not at all.
type Store interface {
	// Ensure inserts a zero account if absent and returns the current snapshot.
	Ensure(ctx context.Context, userID string) (Account, error)
	// ClaimCooldown sets the key to now iff it is unset or at or before cutoff.
	// It returns the stored timestamp after the call and whether it claimed.
	ClaimCooldown(ctx context.Context, userID, key string, now, cutoff time.Time) (claimed bool, last time.Time, err error)
	Award(ctx context.Context, userID string, amount int64) (newBalance int64, err error)
	// DebitFloor subtracts min(balance, amount).
	DebitFloor(ctx context.Context, userID string, amount int64) (debited, newBalance int64, err error)
	AddItem(ctx context.Context, userID, itemID string, amount int64) (newQty int64, err error)
	// RemoveItem returns false without mutating when fewer than amount are held.
	RemoveItem(ctx context.Context, userID, itemID string, amount int64) (bool, error)
}

// BatchRemover subtracts every item or none.
type BatchRemover interface {
	RemoveItems(ctx context.Context, userID string, items []ItemAmount) (bool, error)
}

// Spender debits an exact cost and removes every item in one atomic step,
// or changes nothing. It returns the balance after a successful spend.
type Spender interface {
	Spend(ctx context.Context, userID string, cost int64, items []ItemAmount) (bool, int64, error)
}

type CooldownPruner interface {
	PruneCooldowns(ctx context.Context, olderThan time.Time) (int64, error)
}
