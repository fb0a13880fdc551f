/*
Package sqlite provides a SQLite-backed implementation of sale.TxStore.

PURPOSE:
  Persists everything the engine owns - balances, allowances, tier
  configurations, the global counters, per-account contributions and the
  purchase log - so counters survive restarts. The same patterns apply to
  PostgreSQL; only minor SQL dialect differences.

ATOMICITY:
  WithTx opens a database transaction and hands the callback a view whose
  reads and writes run inside it. The engine performs every purchase through
  WithTx, so a failed purchase rolls back both balance moves and all counter
  updates in one step.

PURCHASE LOG:
  Append-only. No UPDATE or DELETE statements exist for the purchases table;
  the log is the audit trail for off-engine indexing.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/sale.db")
  if err != nil {
      ...
  }
  defer st.Close()

SEE ALSO:
  - sale/store.go: interface definitions and contracts
  - sale/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/sale-engine/sale"
)

// Store implements sale.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex // serializes WithTx against sqlite's single writer
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{queries: queries{db: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		asset   TEXT NOT NULL,
		account TEXT NOT NULL,
		amount  TEXT NOT NULL,
		PRIMARY KEY (asset, account)
	);

	CREATE TABLE IF NOT EXISTS allowances (
		asset   TEXT NOT NULL,
		owner   TEXT NOT NULL,
		spender TEXT NOT NULL,
		amount  TEXT NOT NULL,
		PRIMARY KEY (asset, owner, spender)
	);

	CREATE TABLE IF NOT EXISTS tier_configs (
		tier             INTEGER PRIMARY KEY,
		start_at         TEXT NOT NULL,
		deadline         TEXT NOT NULL,
		fee              INTEGER NOT NULL,
		quota            TEXT NOT NULL,
		sold             TEXT NOT NULL,
		payment_received TEXT NOT NULL
	);

	-- Singleton row, id always 1
	CREATE TABLE IF NOT EXISTS global_state (
		id               INTEGER PRIMARY KEY CHECK (id = 1),
		quota            TEXT NOT NULL,
		sold             TEXT NOT NULL,
		payment_received TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contributions (
		account TEXT PRIMARY KEY,
		amount  TEXT NOT NULL
	);

	-- Purchase log (append-only audit trail)
	CREATE TABLE IF NOT EXISTS purchases (
		id                  TEXT PRIMARY KEY,
		account             TEXT NOT NULL,
		tier                INTEGER NOT NULL,
		sale_amount         TEXT NOT NULL,
		payment             TEXT NOT NULL,
		payment_without_fee TEXT NOT NULL,
		at                  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_account ON purchases(account);
	CREATE INDEX IF NOT EXISTS idx_purchases_at ON purchases(at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(sale.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	view := &txView{queries: queries{db: tx}}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// txView is the transactional sale.Store handed to WithTx callbacks.
type txView struct {
	queries
}

// =============================================================================
// QUERIES - shared between the root connection and transaction views
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func (q queries) Balance(ctx context.Context, asset sale.AssetID, account sale.Account) (sale.Amount, error) {
	return q.amountRow(ctx,
		`SELECT amount FROM balances WHERE asset = ? AND account = ?`, asset, account)
}

func (q queries) SetBalance(ctx context.Context, asset sale.AssetID, account sale.Account, amount sale.Amount) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO balances (asset, account, amount) VALUES (?, ?, ?)
		 ON CONFLICT (asset, account) DO UPDATE SET amount = excluded.amount`,
		asset, account, amount.String())
	return err
}

func (q queries) Allowance(ctx context.Context, asset sale.AssetID, owner, spender sale.Account) (sale.Amount, error) {
	return q.amountRow(ctx,
		`SELECT amount FROM allowances WHERE asset = ? AND owner = ? AND spender = ?`,
		asset, owner, spender)
}

func (q queries) SetAllowance(ctx context.Context, asset sale.AssetID, owner, spender sale.Account, amount sale.Amount) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO allowances (asset, owner, spender, amount) VALUES (?, ?, ?, ?)
		 ON CONFLICT (asset, owner, spender) DO UPDATE SET amount = excluded.amount`,
		asset, owner, spender, amount.String())
	return err
}

func (q queries) TierConfig(ctx context.Context, tier sale.TierNumber) (sale.TierConfig, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT tier, start_at, deadline, fee, quota, sold, payment_received
		   FROM tier_configs WHERE tier = ?`, tier)
	cfg, err := scanTierConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sale.TierConfig{}, fmt.Errorf("tier %d: %w", tier, sale.ErrTierNotFound)
	}
	return cfg, err
}

func (q queries) PutTierConfig(ctx context.Context, cfg sale.TierConfig) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO tier_configs (tier, start_at, deadline, fee, quota, sold, payment_received)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tier) DO UPDATE SET
			start_at = excluded.start_at,
			deadline = excluded.deadline,
			fee = excluded.fee,
			quota = excluded.quota,
			sold = excluded.sold,
			payment_received = excluded.payment_received`,
		cfg.Tier, formatTime(cfg.Start), formatTime(cfg.Deadline),
		cfg.Fee, cfg.Quota.String(), cfg.Sold.String(), cfg.PaymentReceived.String())
	return err
}

func (q queries) ListTierConfigs(ctx context.Context) ([]sale.TierConfig, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT tier, start_at, deadline, fee, quota, sold, payment_received
		   FROM tier_configs ORDER BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sale.TierConfig
	for rows.Next() {
		cfg, err := scanTierConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (q queries) GlobalState(ctx context.Context) (sale.GlobalState, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT quota, sold, payment_received FROM global_state WHERE id = 1`)

	var quota, sold, received string
	if err := row.Scan(&quota, &sold, &received); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sale.GlobalState{
				Quota:           sale.ZeroAmount(),
				Sold:            sale.ZeroAmount(),
				PaymentReceived: sale.ZeroAmount(),
			}, nil
		}
		return sale.GlobalState{}, err
	}
	return scanGlobalState(quota, sold, received)
}

func (q queries) PutGlobalState(ctx context.Context, st sale.GlobalState) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO global_state (id, quota, sold, payment_received) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			quota = excluded.quota,
			sold = excluded.sold,
			payment_received = excluded.payment_received`,
		st.Quota.String(), st.Sold.String(), st.PaymentReceived.String())
	return err
}

func (q queries) Contributed(ctx context.Context, account sale.Account) (sale.Amount, error) {
	return q.amountRow(ctx,
		`SELECT amount FROM contributions WHERE account = ?`, account)
}

func (q queries) SetContributed(ctx context.Context, account sale.Account, amount sale.Amount) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO contributions (account, amount) VALUES (?, ?)
		 ON CONFLICT (account) DO UPDATE SET amount = excluded.amount`,
		account, amount.String())
	return err
}

func (q queries) AppendPurchase(ctx context.Context, rec sale.PurchaseRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO purchases (id, account, tier, sale_amount, payment, payment_without_fee, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Account, rec.Tier, rec.SaleAmount.String(),
		rec.Payment.String(), rec.PaymentWithoutFee.String(), formatTime(rec.At))
	return err
}

func (q queries) Purchases(ctx context.Context, account sale.Account) ([]sale.PurchaseRecord, error) {
	query := `SELECT id, account, tier, sale_amount, payment, payment_without_fee, at
	            FROM purchases`
	args := []any{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	// Insertion order. RFC3339Nano text has variable-width fractional
	// seconds, so sorting on the at column is not chronologically stable.
	query += ` ORDER BY rowid`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sale.PurchaseRecord
	for rows.Next() {
		var rec sale.PurchaseRecord
		var saleAmt, payment, withoutFee, at string
		if err := rows.Scan(&rec.ID, &rec.Account, &rec.Tier, &saleAmt, &payment, &withoutFee, &at); err != nil {
			return nil, err
		}
		if rec.SaleAmount, err = sale.ParseAmount(saleAmt); err != nil {
			return nil, err
		}
		if rec.Payment, err = sale.ParseAmount(payment); err != nil {
			return nil, err
		}
		if rec.PaymentWithoutFee, err = sale.ParseAmount(withoutFee); err != nil {
			return nil, err
		}
		if rec.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func (q queries) amountRow(ctx context.Context, query string, args ...any) (sale.Amount, error) {
	var raw string
	err := q.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return sale.ZeroAmount(), nil
	}
	if err != nil {
		return sale.Amount{}, err
	}
	return sale.ParseAmount(raw)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTierConfig(row rowScanner) (sale.TierConfig, error) {
	var cfg sale.TierConfig
	var start, deadline, quota, sold, received string
	if err := row.Scan(&cfg.Tier, &start, &deadline, &cfg.Fee, &quota, &sold, &received); err != nil {
		return sale.TierConfig{}, err
	}
	var err error
	if cfg.Start, err = parseTime(start); err != nil {
		return sale.TierConfig{}, err
	}
	if cfg.Deadline, err = parseTime(deadline); err != nil {
		return sale.TierConfig{}, err
	}
	if cfg.Quota, err = sale.ParseAmount(quota); err != nil {
		return sale.TierConfig{}, err
	}
	if cfg.Sold, err = sale.ParseAmount(sold); err != nil {
		return sale.TierConfig{}, err
	}
	if cfg.PaymentReceived, err = sale.ParseAmount(received); err != nil {
		return sale.TierConfig{}, err
	}
	return cfg, nil
}

func scanGlobalState(quota, sold, received string) (sale.GlobalState, error) {
	var st sale.GlobalState
	var err error
	if st.Quota, err = sale.ParseAmount(quota); err != nil {
		return sale.GlobalState{}, err
	}
	if st.Sold, err = sale.ParseAmount(sold); err != nil {
		return sale.GlobalState{}, err
	}
	if st.PaymentReceived, err = sale.ParseAmount(received); err != nil {
		return sale.GlobalState{}, err
	}
	return st, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
