// Package postgres persists credit accounts in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/buzzcrawl/internal/credit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "credit_accounts"

// Config controls the Postgres connection pool used for credit accounts.
type Config struct {
	DSN             string
	Table           string
	InitialBalance  int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements credit.Store. Balance changes are single conditional
// UPDATE statements so concurrent charges never overdraw an account.
type Store struct {
	pool    querier
	table   string
	initial int
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("credit.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, cfg.InitialBalance)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string, initialBalance int) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, initial: initialBalance}, nil
}

// Migrate creates the accounts table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL CHECK (balance >= 0),
	role       TEXT NOT NULL DEFAULT 'user',
	trial_used BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) ensure(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, balance) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, userID, s.initial); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

// Get loads the account. A user without a row gets the defaults of a new
// account and no row is written.
func (s *Store) Get(ctx context.Context, userID string) (credit.Account, error) {
	acct := credit.Account{UserID: userID}
	var role string
	query := fmt.Sprintf(`SELECT balance, role, trial_used FROM %s WHERE user_id = $1`, s.table)
	err := s.pool.QueryRow(ctx, query, userID).Scan(&acct.Balance, &role, &acct.TrialUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return credit.Account{UserID: userID, Balance: s.initial, Role: credit.RoleUser}, nil
	}
	if err != nil {
		return credit.Account{}, fmt.Errorf("select account: %w", err)
	}
	acct.Role = credit.Role(role)
	return acct, nil
}

// Deduct subtracts amount only when the balance covers it.
func (s *Store) Deduct(ctx context.Context, userID string, amount int) (int, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = balance - $2, updated_at = now() WHERE user_id = $1 AND balance >= $2 RETURNING balance`, s.table)
	var balance int
	err := s.pool.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		acct, getErr := s.Get(ctx, userID)
		if getErr != nil {
			return 0, getErr
		}
		return acct.Balance, credit.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("deduct balance: %w", err)
	}
	return balance, nil
}

// ClaimTrial flips trial_used from false to true.
func (s *Store) ClaimTrial(ctx context.Context, userID string) (bool, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET trial_used = TRUE, updated_at = now() WHERE user_id = $1 AND NOT trial_used`, s.table)
	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("claim trial: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Add increases the balance.
func (s *Store) Add(ctx context.Context, userID string, amount int) (int, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = balance + $2, updated_at = now() WHERE user_id = $1 RETURNING balance`, s.table)
	var balance int
	if err := s.pool.QueryRow(ctx, query, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("add balance: %w", err)
	}
	return balance, nil
}

// SetRole upserts the account role.
func (s *Store) SetRole(ctx context.Context, userID string, role credit.Role) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, balance, role) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, userID, s.initial, string(role)); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
