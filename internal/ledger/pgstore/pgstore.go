// Package pgstore implements ledger.Store on PostgreSQL. Every primitive is a
// single conditional statement (or one transaction for batch removal), so it
// is safe with any number of bot processes sharing the database.
package pgstore

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bountybot/internal/ledger"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ensure(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO game.accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (s *Store) Ensure(ctx context.Context, userID string) (ledger.Account, error) {
	out := ledger.Account{
		UserID:    userID,
		Inventory: map[string]int64{},
		Cooldowns: map[string]time.Time{},
	}
	if err := s.ensure(ctx, userID); err != nil {
		return out, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `
		SELECT balance
		FROM game.accounts
		WHERE user_id = $1
	`, userID).Scan(&out.Balance); err != nil {
		return out, err
	}

	rows, err := tx.Query(ctx, `
		SELECT item_id, amount
		FROM game.inventory
		WHERE user_id = $1 AND amount > 0
		ORDER BY item_id
	`, userID)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var item string
		var amount int64
		if err := rows.Scan(&item, &amount); err != nil {
			rows.Close()
			return out, err
		}
		out.Inventory[item] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	cRows, err := tx.Query(ctx, `
		SELECT cooldown_key, claimed_at
		FROM game.cooldowns
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return out, err
	}
	defer cRows.Close()
	for cRows.Next() {
		var key string
		var at time.Time
		if err := cRows.Scan(&key, &at); err != nil {
			return out, err
		}
		out.Cooldowns[key] = at.UTC()
	}
	if err := cRows.Err(); err != nil {
		return out, err
	}
	return out, tx.Commit(ctx)
}

func (s *Store) ClaimCooldown(ctx context.Context, userID, key string, now, cutoff time.Time) (bool, time.Time, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return false, time.Time{}, err
	}
	var last time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO game.cooldowns (user_id, cooldown_key, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, cooldown_key) DO UPDATE
		SET claimed_at = EXCLUDED.claimed_at
		WHERE game.cooldowns.claimed_at <= $4
		RETURNING claimed_at
	`, userID, key, now, cutoff).Scan(&last)
	if err == nil {
		return true, last.UTC(), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, time.Time{}, err
	}
	if err := s.db.QueryRow(ctx, `
		SELECT claimed_at
		FROM game.cooldowns
		WHERE user_id = $1 AND cooldown_key = $2
	`, userID, key).Scan(&last); err != nil {
		return false, time.Time{}, err
	}
	return false, last.UTC(), nil
}

func (s *Store) Award(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO game.accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = game.accounts.balance + EXCLUDED.balance,
		    updated_at = now()
		WHERE game.accounts.balance <= $3
		RETURNING balance
	`, userID, amount, math.MaxInt64-amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrOverflow
	}
	return balance, err
}

func (s *Store) DebitFloor(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, 0, err
	}
	var debited, balance int64
	err := s.db.QueryRow(ctx, `
		WITH cur AS (
			SELECT user_id, balance
			FROM game.accounts
			WHERE user_id = $1
			FOR UPDATE
		)
		UPDATE game.accounts a
		SET balance = a.balance - LEAST(cur.balance, $2),
		    updated_at = now()
		FROM cur
		WHERE a.user_id = cur.user_id
		RETURNING LEAST(cur.balance, $2), a.balance
	`, userID, amount).Scan(&debited, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	return debited, balance, err
}

func (s *Store) AddItem(ctx context.Context, userID, itemID string, amount int64) (int64, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	var qty int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO game.inventory (user_id, item_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET amount = game.inventory.amount + EXCLUDED.amount
		WHERE game.inventory.amount <= $4
		RETURNING amount
	`, userID, itemID, amount, math.MaxInt64-amount).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrOverflow
	}
	return qty, err
}

func (s *Store) RemoveItem(ctx context.Context, userID, itemID string, amount int64) (bool, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.inventory
		SET amount = amount - $3
		WHERE user_id = $1 AND item_id = $2 AND amount >= $3
	`, userID, itemID, amount)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	s.dropEmpty(ctx, userID)
	return true, nil
}

func (s *Store) RemoveItems(ctx context.Context, userID string, items []ledger.ItemAmount) (bool, error) {
	ok, _, err := s.Spend(ctx, userID, 0, items)
	return ok, err
}

// Spend takes the exact cost and every item in one transaction. A short
// balance or any short item rolls the whole thing back.
func (s *Store) Spend(ctx context.Context, userID string, cost int64, items []ledger.ItemAmount) (bool, int64, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return false, 0, err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE game.accounts
		SET balance = balance - $2,
		    updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`, userID, cost).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	for _, it := range items {
		cmd, err := tx.Exec(ctx, `
			UPDATE game.inventory
			SET amount = amount - $3
			WHERE user_id = $1 AND item_id = $2 AND amount >= $3
		`, userID, it.ItemID, it.Amount)
		if err != nil {
			return false, 0, err
		}
		if cmd.RowsAffected() == 0 {
			return false, 0, nil
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	s.dropEmpty(ctx, userID)
	return true, balance, nil
}

func (s *Store) PruneCooldowns(ctx context.Context, olderThan time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		DELETE FROM game.cooldowns
		WHERE claimed_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// dropEmpty removes zero-quantity rows. Snapshots already skip them, so a
// failure here is harmless.
func (s *Store) dropEmpty(ctx context.Context, userID string) {
	_, _ = s.db.Exec(ctx, `
		DELETE FROM game.inventory
		WHERE user_id = $1 AND amount = 0
	`, userID)
}
