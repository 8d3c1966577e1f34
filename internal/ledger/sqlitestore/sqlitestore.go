// Package sqlitestore implements ledger.Store on an embedded SQLite database
// for single-process deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bountybot/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS inventory (
	user_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	amount  INTEGER NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (user_id, item_id)
);
CREATE TABLE IF NOT EXISTS cooldowns (
	user_id      TEXT NOT NULL,
	cooldown_key TEXT NOT NULL,
	claimed_at   INTEGER NOT NULL,
	PRIMARY KEY (user_id, cooldown_key)
);
CREATE INDEX IF NOT EXISTS cooldowns_claimed_at_idx ON cooldowns (claimed_at);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" keeps
// everything in the single pooled connection.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection serializes every primitive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensure(ctx context.Context, db execer, userID string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO accounts (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

func (s *Store) Ensure(ctx context.Context, userID string) (ledger.Account, error) {
	out := ledger.Account{
		UserID:    userID,
		Inventory: map[string]int64{},
		Cooldowns: map[string]time.Time{},
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	if err := ensure(ctx, tx, userID); err != nil {
		return out, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&out.Balance); err != nil {
		return out, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT item_id, amount FROM inventory WHERE user_id = ? AND amount > 0`, userID)
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

	cRows, err := tx.QueryContext(ctx, `SELECT cooldown_key, claimed_at FROM cooldowns WHERE user_id = ?`, userID)
	if err != nil {
		return out, err
	}
	defer cRows.Close()
	for cRows.Next() {
		var key string
		var at int64
		if err := cRows.Scan(&key, &at); err != nil {
			return out, err
		}
		out.Cooldowns[key] = fromMicros(at)
	}
	if err := cRows.Err(); err != nil {
		return out, err
	}
	return out, tx.Commit()
}

func (s *Store) ClaimCooldown(ctx context.Context, userID, key string, now, cutoff time.Time) (bool, time.Time, error) {
	if err := ensure(ctx, s.db, userID); err != nil {
		return false, time.Time{}, err
	}
	var last int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cooldowns (user_id, cooldown_key, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, cooldown_key) DO UPDATE
		SET claimed_at = excluded.claimed_at
		WHERE cooldowns.claimed_at <= ?
		RETURNING claimed_at
	`, userID, key, toMicros(now), toMicros(cutoff)).Scan(&last)
	if err == nil {
		return true, fromMicros(last), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT claimed_at FROM cooldowns WHERE user_id = ? AND cooldown_key = ?
	`, userID, key).Scan(&last); err != nil {
		return false, time.Time{}, err
	}
	return false, fromMicros(last), nil
}

func (s *Store) Award(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + excluded.balance,
		    updated_at = excluded.updated_at
		WHERE accounts.balance <= ?
		RETURNING balance
	`, userID, amount, toMicros(time.Now()), math.MaxInt64-amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrOverflow
	}
	return balance, err
}

func (s *Store) DebitFloor(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if err := ensure(ctx, tx, userID); err != nil {
		return 0, 0, err
	}
	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, 0, err
	}
	debited := min(balance, amount)
	if debited > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE user_id = ?
		`, debited, toMicros(time.Now()), userID); err != nil {
			return 0, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return debited, balance - debited, nil
}

func (s *Store) AddItem(ctx context.Context, userID, itemID string, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := ensure(ctx, tx, userID); err != nil {
		return 0, err
	}
	var qty int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO inventory (user_id, item_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET amount = inventory.amount + excluded.amount
		WHERE inventory.amount <= ?
		RETURNING amount
	`, userID, itemID, amount, math.MaxInt64-amount).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrOverflow
	}
	if err != nil {
		return 0, err
	}
	return qty, tx.Commit()
}

func (s *Store) RemoveItem(ctx context.Context, userID, itemID string, amount int64) (bool, error) {
	return s.RemoveItems(ctx, userID, []ledger.ItemAmount{{ItemID: itemID, Amount: amount}})
}

func (s *Store) RemoveItems(ctx context.Context, userID string, items []ledger.ItemAmount) (bool, error) {
	ok, _, err := s.Spend(ctx, userID, 0, items)
	return ok, err
}

func (s *Store) Spend(ctx context.Context, userID string, cost int64, items []ledger.ItemAmount) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	if err := ensure(ctx, tx, userID); err != nil {
		return false, 0, err
	}
	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance - ?, updated_at = ?
		WHERE user_id = ? AND balance >= ?
		RETURNING balance
	`, cost, toMicros(time.Now()), userID, cost).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	for _, it := range items {
		res, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET amount = amount - ?
			WHERE user_id = ? AND item_id = ? AND amount >= ?
		`, it.Amount, userID, it.ItemID, it.Amount)
		if err != nil {
			return false, 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, 0, err
		}
		if n == 0 {
			return false, 0, nil
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory WHERE user_id = ? AND amount = 0`, userID); err != nil {
		return false, 0, err
	}
	return true, balance, tx.Commit()
}

func (s *Store) PruneCooldowns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE claimed_at < ?`, toMicros(olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
