/*
Package ledger implements the account ledger engine.

PURPOSE:
  This package contains the domain model and algorithms for tracking bank
  accounts and their chronological movements (deposits and withdrawals).
  An account's balance is never stored as an independent value: it is always
  the deterministic fold of the account's initial balance plus the signed
  contributions of its movements. Each movement carries a cached running
  balance computed at write time, but the fold is the source of truth.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:  an account owned by a client, with an immutable initial balance
  - Movement: a single signed balance change, timestamped with its date of
    effect (not necessarily its creation time)
  - Typed IDs: AccountID, MovementID, ClientID prevent mixing identifiers

DESIGN PRINCIPLES:
  1. Precision: uses decimal.Decimal for all money - never binary floats
  2. Magnitudes: movement amounts are stored unsigned; the movement type
     decides the sign of the contribution
  3. Soft deletion: rows are flagged, never erased; default queries exclude
     deleted rows

SEE ALSO:
  - balance.go:  balance folds (the source-of-truth rule)
  - validate.go: sign, funds and status checks
  - engine.go:   orchestration of validate -> compute -> persist
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type MovementID int64
type ClientID int64

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountSavings AccountType = "SAVINGS"
	AccountCurrent AccountType = "CURRENT"
)

// Account is a client-owned bank account. InitialBalance is immutable after
// creation; the account's running balance is derived, never stored here.
type Account struct {
	ID             AccountID
	Number         string
	Type           AccountType
	InitialBalance decimal.Decimal
	Active         bool
	ClientID       ClientID

	CreatedAt time.Time
	UpdatedAt time.Time

	// Soft-delete state. Deleted accounts are excluded from default queries.
	Deleted   bool
	DeletedAt *time.Time
}

// =============================================================================
// MOVEMENT
// =============================================================================

type MovementType string

const (
	MovementInitialDeposit MovementType = "INITIAL_DEPOSIT"
	MovementDeposit        MovementType = "DEPOSIT"
	MovementWithdrawal     MovementType = "WITHDRAWAL"
)

// IsCredit reports whether the type contributes positively to the balance.
func (t MovementType) IsCredit() bool {
	return t == MovementDeposit || t == MovementInitialDeposit
}

// Movement is one signed change to an account's balance.
//
// Amount is always an unsigned magnitude; Signed() applies the type's sign.
// Balance is the running balance immediately after this movement, cached at
// write time. It is a derived value - validation must never trust it.
//
// AccountID is a plain foreign key, not an owning reference: a movement
// cannot outlive its account (deleting the account soft-deletes its
// movements), but the movement never reaches back into the account struct.
type Movement struct {
	ID        MovementID
	AccountID AccountID
	Date      time.Time
	Type      MovementType
	Amount    decimal.Decimal
	Balance   decimal.Decimal

	CreatedAt time.Time

	Deleted   bool
	DeletedAt *time.Time
}

// Signed returns the movement's contribution to the balance:
// +Amount for deposits (including the initial deposit), -Amount otherwise.
func (m Movement) Signed() decimal.Decimal {
	if m.Type.IsCredit() {
		return m.Amount.Abs()
	}
	return m.Amount.Abs().Neg()
}
