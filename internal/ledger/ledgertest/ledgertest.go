// Package ledgertest is a conformance suite every ledger.Store must pass.
package ledgertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bountybot/internal/ledger"
)

// Run exercises the store through a Ledger. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()

	newLedger := func(t *testing.T, now *time.Time) *ledger.Ledger {
		l := ledger.New(newStore(t), nil)
		if now != nil {
			l.WithClock(func() time.Time { return *now })
		}
		return l
	}

	t.Run("GetOrCreateIsLazyAndZero", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "u1", acct.UserID)
		require.Zero(t, acct.Balance)
		require.Empty(t, acct.Inventory)
		require.Empty(t, acct.Cooldowns)

		again, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, acct.Balance, again.Balance)
	})

	t.Run("CooldownScenario", func(t *testing.T) {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		l := newLedger(t, &now)

		res, err := l.ClaimCooldown(ctx, "u1", "crime", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, res.OK)

		now = now.Add(time.Minute)
		res, err = l.ClaimCooldown(ctx, "u1", "crime", 5*time.Minute)
		require.NoError(t, err)
		require.False(t, res.OK)
		require.Equal(t, 4*time.Minute, res.Remaining)

		res, err = l.ClaimCooldown(ctx, "u1", "puzzle", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, res.OK, "keys are independent")

		now = now.Add(4 * time.Minute)
		res, err = l.ClaimCooldown(ctx, "u1", "crime", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, res.OK, "claim at exactly the duration succeeds")

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.True(t, acct.Cooldowns["crime"].Equal(now))
	})

	t.Run("CooldownExclusivity", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		const n = 32
		var wins, waits atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.ClaimCooldown(ctx, "racer", "crime", time.Hour)
				if err != nil {
					errs <- err
					return
				}
				if res.OK {
					wins.Add(1)
				} else if res.Remaining > 0 {
					waits.Add(1)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, int32(1), wins.Load())
		require.Equal(t, int32(n-1), waits.Load())
	})

	t.Run("DebitFloor", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		_, err := l.AwardBalance(ctx, "u1", 30)
		require.NoError(t, err)

		res, err := l.DebitBalance(ctx, "u1", 50)
		require.NoError(t, err)
		require.True(t, res.OK)
		require.Equal(t, int64(30), res.Debited)
		require.Zero(t, res.NewBalance)

		res, err = l.DebitBalance(ctx, "nobody", 10)
		require.NoError(t, err)
		require.Zero(t, res.Debited)
		require.Zero(t, res.NewBalance)
	})

	t.Run("AwardAndDebitExact", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		a, err := l.AwardBalance(ctx, "u1", 100)
		require.NoError(t, err)
		require.Equal(t, int64(100), a.NewBalance)

		d, err := l.DebitBalance(ctx, "u1", 40)
		require.NoError(t, err)
		require.Equal(t, int64(40), d.Debited)
		require.Equal(t, int64(60), d.NewBalance)

		_, err = l.AwardBalance(ctx, "u1", 0)
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = l.DebitBalance(ctx, "u1", -1)
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})

	t.Run("AwardOverflowRejected", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		_, err := l.AwardBalance(ctx, "rich", 1<<62)
		require.NoError(t, err)
		_, err = l.AwardBalance(ctx, "rich", 1<<62)
		require.ErrorIs(t, err, ledger.ErrOverflow)

		acct, err := l.GetOrCreateAccount(ctx, "rich")
		require.NoError(t, err)
		require.Equal(t, int64(1<<62), acct.Balance)
	})

	t.Run("Inventory", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		n, err := l.AddInventory(ctx, "u1", "ore", 3)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
		n, err = l.AddInventory(ctx, "u1", "ore", 2)
		require.NoError(t, err)
		require.Equal(t, int64(5), n)

		ok, err := l.RemoveInventory(ctx, "u1", "ore", 6)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = l.RemoveInventory(ctx, "u1", "ore", 5)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.RemoveInventory(ctx, "u1", "ore", 1)
		require.NoError(t, err)
		require.False(t, ok)

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Zero(t, acct.Quantity("ore"))
		require.Empty(t, acct.Items())
	})

	t.Run("RemoveAllIsAllOrNothing", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		require.True(t, l.SupportsBatchRemove())
		_, err := l.AddInventory(ctx, "u1", "ore", 5)
		require.NoError(t, err)
		_, err = l.AddInventory(ctx, "u1", "wood", 1)
		require.NoError(t, err)

		ok, err := l.RemoveInventoryAll(ctx, "u1", []ledger.ItemAmount{{ItemID: "ore", Amount: 2}, {ItemID: "wood", Amount: 2}})
		require.NoError(t, err)
		require.False(t, ok)

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int64(5), acct.Quantity("ore"))
		require.Equal(t, int64(1), acct.Quantity("wood"))

		ok, err = l.RemoveInventoryAll(ctx, "u1", []ledger.ItemAmount{{ItemID: "ore", Amount: 2}, {ItemID: "ore", Amount: 3}, {ItemID: "wood", Amount: 1}})
		require.NoError(t, err)
		require.True(t, ok)

		acct, err = l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, acct.Items())
	})

	t.Run("SpendIsExactAndAtomic", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		require.True(t, l.SupportsSpend())
		_, err := l.AwardBalance(ctx, "u1", 30)
		require.NoError(t, err)
		_, err = l.AddInventory(ctx, "u1", "ore", 2)
		require.NoError(t, err)

		// Short on coins: nothing moves, not even the items that were there.
		res, err := l.Spend(ctx, "u1", 31, []ledger.ItemAmount{{ItemID: "ore", Amount: 2}})
		require.NoError(t, err)
		require.False(t, res.OK)
		// Short on items: the cost is not taken either.
		res, err = l.Spend(ctx, "u1", 10, []ledger.ItemAmount{{ItemID: "ore", Amount: 3}})
		require.NoError(t, err)
		require.False(t, res.OK)

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int64(30), acct.Balance)
		require.Equal(t, int64(2), acct.Quantity("ore"))

		res, err = l.Spend(ctx, "u1", 30, []ledger.ItemAmount{{ItemID: "ore", Amount: 2}})
		require.NoError(t, err)
		require.True(t, res.OK)
		require.Zero(t, res.NewBalance)

		acct, err = l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Zero(t, acct.Balance)
		require.Empty(t, acct.Items())

		_, err = l.AwardBalance(ctx, "u1", 5)
		require.NoError(t, err)
		res, err = l.Spend(ctx, "u1", 5, nil)
		require.NoError(t, err)
		require.True(t, res.OK)
		require.Zero(t, res.NewBalance)
	})

	t.Run("ConcurrentSpendsNeverOverdraw", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		_, err := l.AwardBalance(ctx, "u1", 50)
		require.NoError(t, err)
		_, err = l.AddInventory(ctx, "u1", "ore", 10)
		require.NoError(t, err)

		var wins atomic.Int64
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.Spend(ctx, "u1", 20, []ledger.ItemAmount{{ItemID: "ore", Amount: 1}})
				if err == nil && res.OK {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int64(2), wins.Load())

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int64(10), acct.Balance)
		require.Equal(t, int64(8), acct.Quantity("ore"))
	})

	t.Run("ConcurrentDebitsNeverGoNegative", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, nil)
		_, err := l.AwardBalance(ctx, "u1", 100)
		require.NoError(t, err)

		var total atomic.Int64
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.DebitBalance(ctx, "u1", 7)
				if err == nil {
					total.Add(res.Debited)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int64(100), total.Load())

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Zero(t, acct.Balance)
	})

	t.Run("PruneCooldowns", func(t *testing.T) {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		l := newLedger(t, &now)
		_, err := l.ClaimCooldown(ctx, "u1", "old", time.Minute)
		require.NoError(t, err)
		now = now.Add(48 * time.Hour)
		_, err = l.ClaimCooldown(ctx, "u1", "new", time.Minute)
		require.NoError(t, err)

		n, err := l.PruneCooldowns(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		acct, err := l.GetOrCreateAccount(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, acct.Cooldowns, 1)
		require.Contains(t, acct.Cooldowns, "new")
	})
}
