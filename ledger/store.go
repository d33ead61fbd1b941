/*
store.go - Persistence interfaces for accounts and movements

PURPOSE:
  Defines the boundary between the engine and the database. Implementations
  exist for SQLite (store/sqlite) and in-memory (ledger/store).

SOFT-DELETE CONTRACT:
  Delete operations flag rows instead of erasing them. Every query listed
  here excludes soft-deleted rows; there is no default way to read them
  back. Deleting an account cascades the soft delete to its movements
  (a movement cannot outlive its account).

ORDERING:
  MovementsByAccount and MovementsInRange return movements in ascending
  date order. Balance folds don't care about order, but statements and
  "last movement in range" do.

ID ASSIGNMENT:
  Save* inserts when the ID is zero and assigns the new ID on the passed
  struct; otherwise it updates in place.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - ledger/store/memory.go: in-memory implementation for tests/dev
*/
package ledger

import (
	"context"
	"time"
)

// AccountStore handles account persistence.
type AccountStore interface {
	// Account returns the account by id, or ErrAccountNotFound.
	Account(ctx context.Context, id AccountID) (Account, error)

	// Accounts returns all accounts in id order.
	Accounts(ctx context.Context) ([]Account, error)

	// AccountsByClient returns the client's accounts in id order.
	AccountsByClient(ctx context.Context, clientID ClientID) ([]Account, error)

	// FindAccounts returns accounts matching client+type+number exactly.
	// Used for duplicate detection.
	FindAccounts(ctx context.Context, clientID ClientID, accType AccountType, number string) ([]Account, error)

	// SaveAccount inserts (ID == 0) or updates an account.
	SaveAccount(ctx context.Context, account *Account) error

	// DeleteAccount soft-deletes the account and all its movements.
	DeleteAccount(ctx context.Context, id AccountID) error
}

// MovementStore handles movement persistence.
type MovementStore interface {
	// Movement returns the movement by id, or ErrMovementNotFound.
	Movement(ctx context.Context, id MovementID) (Movement, error)

	// Movements returns all movements in id order.
	Movements(ctx context.Context) ([]Movement, error)

	// MovementsByAccount returns the account's movements, date ascending.
	MovementsByAccount(ctx context.Context, accountID AccountID) ([]Movement, error)

	// MovementsInRange returns the account's movements with
	// from <= date <= to, date ascending.
	MovementsInRange(ctx context.Context, accountID AccountID, from, to time.Time) ([]Movement, error)

	// MovementsBefore returns the account's movements with date < before,
	// date ascending.
	MovementsBefore(ctx context.Context, accountID AccountID, before time.Time) ([]Movement, error)

	// SaveMovement inserts (ID == 0) or updates a movement.
	SaveMovement(ctx context.Context, movement *Movement) error

	// DeleteMovement soft-deletes the movement.
	DeleteMovement(ctx context.Context, id MovementID) error
}

// Store is the full persistence collaborator the engine needs.
type Store interface {
	AccountStore
	MovementStore
}
