/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error conditions of the engine in one place. Callers match with
  errors.Is(); the structured types carry enough context for messages and
  for the HTTP layer to pick a status code.

ERROR CATEGORIES:
  1. Not-found errors    - missing account, movement or client
  2. Validation errors   - business rule violations, detected before any
                           write; never retried internally
  3. Transient errors    - collaborator faults eligible for caller retry

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) { ... }

  var fundsErr *ledger.InsufficientFundsError
  if errors.As(err, &fundsErr) { fmt.Println(fundsErr.Available) }

SEE ALSO:
  - validate.go: produces the validation errors
  - engine.go:   produces not-found and transient errors
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when the referenced account doesn't exist
	// (or is soft-deleted).
	ErrAccountNotFound = errors.New("account not found")

	// ErrMovementNotFound is returned when the referenced movement doesn't exist.
	ErrMovementNotFound = errors.New("movement not found")

	// ErrClientNotFound is returned when the client identity resolver reports
	// that the owning client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientUnavailable is returned when the client service cannot be
	// reached. This is the only transient condition; callers may retry with
	// backoff. It aborts account mutations but never statement generation.
	ErrClientUnavailable = errors.New("client service unavailable")

	// ErrDuplicateAccount is returned when another account with the same
	// client, type and number already exists.
	ErrDuplicateAccount = errors.New("duplicate account")

	// ErrInactiveAccount is returned for any mutation against a deactivated
	// account.
	ErrInactiveAccount = errors.New("inactive account")

	// ErrSignMismatch is returned when the submitted signed amount has the
	// wrong sign for the movement type (deposits must not be negative,
	// withdrawals must be negative).
	ErrSignMismatch = errors.New("amount sign does not match movement type")

	// ErrInsufficientFunds is returned when a withdrawal would leave the
	// running balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNegativeInitialBalance is returned when creating an account with a
	// negative initial balance.
	ErrNegativeInitialBalance = errors.New("initial balance must not be negative")

	// ErrStoreUnavailable is returned when persistence did not complete
	// within the caller-supplied timeout. The operation wrote nothing that
	// the caller can rely on; the per-account lock has been released.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SignMismatchError reports the offending type/amount combination.
type SignMismatchError struct {
	Type   MovementType
	Amount decimal.Decimal
}

func (e *SignMismatchError) Error() string {
	return fmt.Sprintf("movement type %s does not allow amount %s", e.Type, e.Amount)
}

func (e *SignMismatchError) Unwrap() error { return ErrSignMismatch }

// InsufficientFundsError reports how short the account is.
type InsufficientFundsError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %d: available %s, requested %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InactiveAccountError identifies the deactivated account by number.
type InactiveAccountError struct {
	AccountNumber string
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("cannot create movement for inactive account: %s", e.AccountNumber)
}

func (e *InactiveAccountError) Unwrap() error { return ErrInactiveAccount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrMovementNotFound) ||
		errors.Is(err, ErrClientNotFound)
}

// IsClientError returns true if the error is a business-rule violation
// caused by the caller's input. These are never retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSignMismatch) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInactiveAccount) ||
		errors.Is(err, ErrDuplicateAccount) ||
		errors.Is(err, ErrNegativeInitialBalance)
}

// IsRetryable returns true if the error reflects a transient collaborator
// fault that might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrClientUnavailable) ||
		errors.Is(err, ErrStoreUnavailable)
}
