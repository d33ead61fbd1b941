/*
engine.go - Movement orchestration

PURPOSE:
  Sequences every movement mutation through the same pipeline:

    resolve account -> status check -> funds check -> balance fold -> persist

  Sign validation runs before anything else - a sign mismatch fails before
  any account lookup is observable. Any validation failure is terminal and
  writes nothing.

CONCURRENCY:
  Each mutation holds the owning account's mutex for the whole
  load -> validate -> compute -> persist sequence (see locks.go). That is
  what turns two concurrent, individually-valid withdrawals into exactly
  one success and one ErrInsufficientFunds.

PERSISTENCE BOUNDS:
  Store writes are bounded by the caller's deadline, or SaveTimeout when the
  caller didn't set one. A write that times out surfaces ErrStoreUnavailable
  and releases the account lock; nothing the caller can rely on was written.

BALANCE SHAPES:
  - create:  append shape (MovementSum) - the opening balance is already a
    movement, so the fold starts from zero
  - replace: edit shape (RunningBalanceExcluding) - the movement's own
    historical contribution must not count against itself
  - date patch: balance-neutral, no recompute
  - delete:  removes the movement without touching later cached balances
    (known stale-snapshot limitation, see balance.go)

SEE ALSO:
  - accounts.go:  account CRUD and the initial-deposit side effect
  - statement.go: the independent read path
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultSaveTimeout = 5 * time.Second

// Engine orchestrates validation, balance computation and persistence.
type Engine struct {
	Store   Store
	Clients ClientResolver
	Events  Publisher // optional; nil disables the initial-deposit side effect
	Log     *logrus.Logger

	// SaveTimeout bounds store writes when the caller's context carries no
	// deadline of its own.
	SaveTimeout time.Duration

	locks *accountLocks
}

func NewEngine(store Store, clients ClientResolver, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		Store:       store,
		Clients:     clients,
		Log:         log,
		SaveTimeout: defaultSaveTimeout,
		locks:       newAccountLocks(),
	}
}

// MovementInput is a movement mutation request. Amount carries the caller's
// sign (negative for withdrawals); it is normalized to a magnitude at write
// time.
type MovementInput struct {
	AccountID AccountID
	Type      MovementType
	Amount    decimal.Decimal
	Date      time.Time
}

// =============================================================================
// MOVEMENT WRITES
// =============================================================================

// CreateMovement validates and appends a new movement, returning it with its
// cached running balance.
func (e *Engine) CreateMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := ValidateType(input.Type, input.Amount); err != nil {
		return Movement{}, err
	}

	unlock := e.locks.Lock(input.AccountID)
	defer unlock()

	account, err := e.Store.Account(ctx, input.AccountID)
	if err != nil {
		return Movement{}, err
	}
	if err := ValidateActive(account); err != nil {
		return Movement{}, err
	}

	movements, err := e.Store.MovementsByAccount(ctx, account.ID)
	if err != nil {
		return Movement{}, err
	}

	magnitude := input.Amount.Abs()
	available := MovementSum(movements)
	if input.Type == MovementWithdrawal {
		if err := ValidateFunds(account.ID, available, magnitude); err != nil {
			return Movement{}, err
		}
	}

	movement := Movement{
		AccountID: account.ID,
		Date:      movementDate(input.Date),
		Type:      input.Type,
		Amount:    magnitude,
		Balance:   applyContribution(available, input.Type, magnitude),
		CreatedAt: time.Now().UTC(),
	}

	if err := e.persist(ctx, &movement); err != nil {
		return Movement{}, err
	}

	e.Log.WithFields(logrus.Fields{
		"movement_id": movement.ID,
		"account_id":  account.ID,
		"type":        movement.Type,
		"balance":     movement.Balance,
	}).Info("movement created")
	return movement, nil
}

// ReplaceMovement fully replaces the movement, optionally re-parenting it to
// a different account. Funds are re-validated against whichever account owns
// the movement afterwards, excluding the movement's own old contribution.
func (e *Engine) ReplaceMovement(ctx context.Context, id MovementID, input MovementInput) (Movement, error) {
	current, err := e.Store.Movement(ctx, id)
	if err != nil {
		return Movement{}, err
	}

	owner := current.AccountID
	var (
		movement Movement
		target   AccountID
		unlock   func()
	)
	for {
		target = owner
		if input.AccountID != 0 {
			target = input.AccountID
		}
		unlock = e.locks.LockBoth(owner, target)

		// Re-read under the lock; a concurrent replace may have re-parented
		// the movement while we waited, leaving us holding the wrong lock.
		movement, err = e.Store.Movement(ctx, id)
		if err != nil {
			unlock()
			return Movement{}, err
		}
		if movement.AccountID == owner {
			break
		}
		unlock()
		owner = movement.AccountID
	}
	defer unlock()

	account, err := e.Store.Account(ctx, target)
	if err != nil {
		return Movement{}, err
	}
	if err := ValidateActive(account); err != nil {
		return Movement{}, err
	}

	movements, err := e.Store.MovementsByAccount(ctx, account.ID)
	if err != nil {
		return Movement{}, err
	}

	magnitude := input.Amount.Abs()
	available := RunningBalanceExcluding(account, movements, id)
	if input.Type == MovementWithdrawal {
		if err := ValidateFunds(account.ID, available, magnitude); err != nil {
			return Movement{}, err
		}
	}

	movement.AccountID = account.ID
	movement.Type = input.Type
	movement.Amount = magnitude
	movement.Balance = applyContribution(available, input.Type, magnitude)
	if !input.Date.IsZero() {
		movement.Date = input.Date.UTC()
	}

	if err := e.persist(ctx, &movement); err != nil {
		return Movement{}, err
	}

	e.Log.WithFields(logrus.Fields{
		"movement_id": movement.ID,
		"account_id":  account.ID,
		"balance":     movement.Balance,
	}).Info("movement replaced")
	return movement, nil
}

// PatchMovementDate mutates only the movement's date of effect. A date-only
// patch is balance-neutral: no recompute, no funds check.
func (e *Engine) PatchMovementDate(ctx context.Context, id MovementID, date time.Time) (Movement, error) {
	movement, unlock, err := e.lockOwner(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	defer unlock()

	account, err := e.Store.Account(ctx, movement.AccountID)
	if err != nil {
		return Movement{}, err
	}
	if err := ValidateActive(account); err != nil {
		return Movement{}, err
	}

	movement.Date = date.UTC()
	if err := e.persist(ctx, &movement); err != nil {
		return Movement{}, err
	}

	e.Log.WithField("movement_id", movement.ID).Info("movement date patched")
	return movement, nil
}

// DeleteMovement soft-deletes the movement. Cached balances of later
// movements are left as-is.
func (e *Engine) DeleteMovement(ctx context.Context, id MovementID) error {
	_, unlock, err := e.lockOwner(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.DeleteMovement(pctx, id); err != nil {
		return e.writeErr(err)
	}

	e.Log.WithField("movement_id", id).Info("movement deleted")
	return nil
}

// =============================================================================
// MOVEMENT READS
// =============================================================================

// Movement returns a single movement by id.
func (e *Engine) Movement(ctx context.Context, id MovementID) (Movement, error) {
	return e.Store.Movement(ctx, id)
}

// Movements returns all movements.
func (e *Engine) Movements(ctx context.Context) ([]Movement, error) {
	return e.Store.Movements(ctx)
}

// AccountMovements returns an account's movements, most recent first.
func (e *Engine) AccountMovements(ctx context.Context, accountID AccountID) ([]Movement, error) {
	movements, err := e.Store.MovementsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(movements)-1; i < j; i, j = i+1, j-1 {
		movements[i], movements[j] = movements[j], movements[i]
	}
	return movements, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func movementDate(date time.Time) time.Time {
	if date.IsZero() {
		return time.Now().UTC()
	}
	return date.UTC()
}

func applyContribution(before decimal.Decimal, movType MovementType, magnitude decimal.Decimal) decimal.Decimal {
	if movType.IsCredit() {
		return before.Add(magnitude)
	}
	return before.Sub(magnitude)
}

// lockOwner locks the account owning the movement. The owner is re-read
// under the lock and the lock re-acquired until both agree, so a replace
// that re-parents the movement while we waited cannot leave us mutating an
// account whose lock we do not hold.
func (e *Engine) lockOwner(ctx context.Context, id MovementID) (Movement, func(), error) {
	movement, err := e.Store.Movement(ctx, id)
	if err != nil {
		return Movement{}, nil, err
	}
	for {
		owner := movement.AccountID
		unlock := e.locks.Lock(owner)
		movement, err = e.Store.Movement(ctx, id)
		if err != nil {
			unlock()
			return Movement{}, nil, err
		}
		if movement.AccountID == owner {
			return movement, unlock, nil
		}
		unlock()
	}
}

// persist saves a movement within the write bound.
func (e *Engine) persist(ctx context.Context, movement *Movement) error {
	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.SaveMovement(pctx, movement); err != nil {
		return e.writeErr(err)
	}
	return nil
}

// boundWrite derives the context store writes run under: the caller's own
// deadline when present, SaveTimeout otherwise.
func (e *Engine) boundWrite(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := e.SaveTimeout
	if timeout <= 0 {
		timeout = defaultSaveTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) writeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
