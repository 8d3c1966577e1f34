// Package memstore is an in-process ledger.Store for tests and local runs.
// It is not shared across processes.
package memstore

import (
	"context"
	"math"
	"sync"
	"time"

	"bountybot/internal/ledger"
)

type account struct {
	balance   int64
	inventory map[string]int64
	cooldowns map[string]time.Time
}

type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
}

func New() *Store {
	return &Store{accounts: make(map[string]*account)}
}

func (s *Store) ensureLocked(userID string) *account {
	a, ok := s.accounts[userID]
	if !ok {
		a = &account{inventory: map[string]int64{}, cooldowns: map[string]time.Time{}}
		s.accounts[userID] = a
	}
	return a
}

func (s *Store) Ensure(ctx context.Context, userID string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	out := ledger.Account{
		UserID:    userID,
		Balance:   a.balance,
		Inventory: make(map[string]int64, len(a.inventory)),
		Cooldowns: make(map[string]time.Time, len(a.cooldowns)),
	}
	for k, v := range a.inventory {
		out.Inventory[k] = v
	}
	for k, v := range a.cooldowns {
		out.Cooldowns[k] = v
	}
	return out, nil
}

func (s *Store) ClaimCooldown(ctx context.Context, userID, key string, now, cutoff time.Time) (bool, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return false, time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	last, ok := a.cooldowns[key]
	if ok && last.After(cutoff) {
		return false, last, nil
	}
	a.cooldowns[key] = now
	return true, now, nil
}

func (s *Store) Award(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	if a.balance > math.MaxInt64-amount {
		return 0, ledger.ErrOverflow
	}
	a.balance += amount
	return a.balance, nil
}

func (s *Store) DebitFloor(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	debited := min(a.balance, amount)
	a.balance -= debited
	return debited, a.balance, nil
}

func (s *Store) AddItem(ctx context.Context, userID, itemID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	if a.inventory[itemID] > math.MaxInt64-amount {
		return 0, ledger.ErrOverflow
	}
	a.inventory[itemID] += amount
	return a.inventory[itemID], nil
}

func (s *Store) RemoveItem(ctx context.Context, userID, itemID string, amount int64) (bool, error) {
	return s.RemoveItems(ctx, userID, []ledger.ItemAmount{{ItemID: itemID, Amount: amount}})
}

func (s *Store) RemoveItems(ctx context.Context, userID string, items []ledger.ItemAmount) (bool, error) {
	ok, _, err := s.Spend(ctx, userID, 0, items)
	return ok, err
}

func (s *Store) Spend(ctx context.Context, userID string, cost int64, items []ledger.ItemAmount) (bool, int64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensureLocked(userID)
	if a.balance < cost {
		return false, a.balance, nil
	}
	for _, it := range items {
		if a.inventory[it.ItemID] < it.Amount {
			return false, a.balance, nil
		}
	}
	a.balance -= cost
	for _, it := range items {
		a.inventory[it.ItemID] -= it.Amount
		if a.inventory[it.ItemID] == 0 {
			delete(a.inventory, it.ItemID)
		}
	}
	return true, a.balance, nil
}

func (s *Store) PruneCooldowns(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.accounts {
		for k, t := range a.cooldowns {
			if t.Before(olderThan) {
				delete(a.cooldowns, k)
				n++
			}
		}
	}
	return n, nil
}
