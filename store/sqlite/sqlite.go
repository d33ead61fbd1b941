/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists accounts and movements. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

SOFT-DELETE ENFORCEMENT:
  DELETE never runs against either table. Deletes flip the deleted flag and
  stamp deleted_at; every query filters `deleted = FALSE`. Deleting an
  account cascades the flag to its movements inside one SQL transaction.

KEY TABLES:
  accounts:   account rows, unique (client_id, account_type, account_number)
              among live rows
  movements:  the ledger, indexed by (account_id, date) for range queries

TIME ENCODING:
  Timestamps are stored as fixed-width UTC strings (nanosecond precision,
  zero-padded) so SQL string comparison equals chronological comparison.
  The statement's inclusive end-of-day boundary depends on this.

MONEY ENCODING:
  Decimals are stored as strings and re-parsed on read; no float columns.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions and the soft-delete contract
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sofka/account-ledger/ledger"
)

// timeLayout is fixed-width so lexicographic order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from silently splitting per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_number TEXT NOT NULL,
		account_type TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		client_id INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_client
		ON accounts(client_id) WHERE deleted = FALSE;

	-- Duplicate accounts are rejected in the engine; this index backs the
	-- lookup and catches writers that bypass it.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_unique
		ON accounts(client_id, account_type, account_number)
		WHERE deleted = FALSE;

	CREATE TABLE IF NOT EXISTS movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		date TEXT NOT NULL,
		movement_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TEXT
	);

	-- Hot path: balance folds and statement range queries.
	CREATE INDEX IF NOT EXISTS idx_movements_account_date
		ON movements(account_id, date) WHERE deleted = FALSE;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, account_number, account_type, initial_balance, is_active, client_id, created_at, updated_at`

func (s *Store) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND deleted = FALSE`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, err
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE deleted = FALSE ORDER BY id`)
}

func (s *Store) AccountsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE client_id = ? AND deleted = FALSE ORDER BY id`,
		clientID)
}

func (s *Store) FindAccounts(ctx context.Context, clientID ledger.ClientID, accType ledger.AccountType, number string) ([]ledger.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE client_id = ? AND account_type = ? AND account_number = ? AND deleted = FALSE
		 ORDER BY id`,
		clientID, accType, number)
}

func (s *Store) SaveAccount(ctx context.Context, account *ledger.Account) error {
	if account.ID == 0 {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO accounts
			 (account_number, account_type, initial_balance, is_active, client_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			account.Number, account.Type, account.InitialBalance.String(), account.Active,
			account.ClientID, formatTime(account.CreatedAt), formatTime(account.UpdatedAt))
		if err != nil {
			return wrapAccountErr(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted account id: %w", err)
		}
		account.ID = ledger.AccountID(id)
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts
		 SET account_number = ?, account_type = ?, is_active = ?, client_id = ?, updated_at = ?
		 WHERE id = ? AND deleted = FALSE`,
		account.Number, account.Type, account.Active, account.ClientID,
		formatTime(account.UpdatedAt), account.ID)
	return wrapAccountErr(err)
}

func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now().UTC())
	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET deleted = TRUE, deleted_at = ? WHERE id = ? AND deleted = FALSE`,
		now, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE movements SET deleted = TRUE, deleted_at = ? WHERE account_id = ? AND deleted = FALSE`,
		now, id)
	if err != nil {
		return fmt.Errorf("failed to cascade delete movements: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// MOVEMENTS
// =============================================================================

const movementColumns = `id, account_id, date, movement_type, amount, balance, created_at`

func (s *Store) Movement(ctx context.Context, id ledger.MovementID) (ledger.Movement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ? AND deleted = FALSE`, id)
	movement, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Movement{}, ledger.ErrMovementNotFound
	}
	return movement, err
}

func (s *Store) Movements(ctx context.Context) ([]ledger.Movement, error) {
	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE deleted = FALSE ORDER BY id`)
}

func (s *Store) MovementsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE account_id = ? AND deleted = FALSE ORDER BY date, id`,
		accountID)
}

func (s *Store) MovementsInRange(ctx context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Movement, error) {
	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE account_id = ? AND deleted = FALSE AND date >= ? AND date <= ?
		 ORDER BY date, id`,
		accountID, formatTime(from), formatTime(to))
}

func (s *Store) MovementsBefore(ctx context.Context, accountID ledger.AccountID, before time.Time) ([]ledger.Movement, error) {
	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM movements
		 WHERE account_id = ? AND deleted = FALSE AND date < ?
		 ORDER BY date, id`,
		accountID, formatTime(before))
}

func (s *Store) SaveMovement(ctx context.Context, movement *ledger.Movement) error {
	if movement.ID == 0 {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO movements (account_id, date, movement_type, amount, balance, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			movement.AccountID, formatTime(movement.Date), movement.Type,
			movement.Amount.String(), movement.Balance.String(), formatTime(movement.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert movement: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted movement id: %w", err)
		}
		movement.ID = ledger.MovementID(id)
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE movements
		 SET account_id = ?, date = ?, movement_type = ?, amount = ?, balance = ?
		 WHERE id = ? AND deleted = FALSE`,
		movement.AccountID, formatTime(movement.Date), movement.Type,
		movement.Amount.String(), movement.Balance.String(), movement.ID)
	if err != nil {
		return fmt.Errorf("failed to update movement: %w", err)
	}
	return nil
}

func (s *Store) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE movements SET deleted = TRUE, deleted_at = ? WHERE id = ? AND deleted = FALSE`,
		formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to delete movement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ledger.ErrMovementNotFound
	}
	return nil
}

// =============================================================================
// SCANNING / HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []ledger.Movement
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	return movements, rows.Err()
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		account            ledger.Account
		initialBalance     string
		createdAt, updated string
	)
	err := row.Scan(&account.ID, &account.Number, &account.Type, &initialBalance,
		&account.Active, &account.ClientID, &createdAt, &updated)
	if err != nil {
		return ledger.Account{}, err
	}
	if account.InitialBalance, err = decimal.NewFromString(initialBalance); err != nil {
		return ledger.Account{}, fmt.Errorf("corrupt initial balance %q: %w", initialBalance, err)
	}
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Account{}, err
	}
	if account.UpdatedAt, err = parseTime(updated); err != nil {
		return ledger.Account{}, err
	}
	return account, nil
}

func scanMovement(row rowScanner) (ledger.Movement, error) {
	var (
		movement        ledger.Movement
		date, createdAt string
		amount, balance string
	)
	err := row.Scan(&movement.ID, &movement.AccountID, &date, &movement.Type,
		&amount, &balance, &createdAt)
	if err != nil {
		return ledger.Movement{}, err
	}
	if movement.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Movement{}, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	if movement.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Movement{}, fmt.Errorf("corrupt balance %q: %w", balance, err)
	}
	if movement.Date, err = parseTime(date); err != nil {
		return ledger.Movement{}, err
	}
	if movement.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Movement{}, err
	}
	return movement, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

// wrapAccountErr maps the live-rows unique index to the domain error.
func wrapAccountErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ledger.ErrDuplicateAccount
	}
	return fmt.Errorf("failed to save account: %w", err)
}
