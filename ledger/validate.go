/*
validate.go - Movement validation rules

PURPOSE:
  The three checks every mutation runs before anything is written:
  sign-by-type, account status, and sufficient funds. All of them are pure;
  a failed validation is terminal and leaves no partial state.

SIGN CONTRACT:
  The sign is carried on the submitted amount, before normalization to a
  stored magnitude. DEPOSIT and INITIAL_DEPOSIT require a non-negative
  submitted amount; WITHDRAWAL requires a strictly negative one. This is an
  input contract: stored amounts are always unsigned.

SEE ALSO:
  - balance.go: the folds that feed ValidateFunds
  - engine.go:  sequences these checks per operation
*/
package ledger

import "github.com/shopspring/decimal"

// ValidateType checks that the submitted signed amount matches the movement
// type. Runs before any account lookup, so a sign mismatch is observable
// without side effects.
func ValidateType(movType MovementType, signedAmount decimal.Decimal) error {
	switch {
	case movType.IsCredit() && signedAmount.Sign() == -1:
		return &SignMismatchError{Type: movType, Amount: signedAmount}
	case movType == MovementWithdrawal && signedAmount.Sign() != -1:
		return &SignMismatchError{Type: movType, Amount: signedAmount}
	}
	return nil
}

// ValidateFunds fails when withdrawing the magnitude would leave the
// available balance below zero. The caller supplies the balance computed
// with the fold shape matching its context (append vs exclude-self).
func ValidateFunds(accountID AccountID, available, magnitude decimal.Decimal) error {
	if available.Sub(magnitude).Sign() == -1 {
		return &InsufficientFundsError{AccountID: accountID, Available: available, Requested: magnitude}
	}
	return nil
}

// ValidateActive rejects any mutation against a deactivated account.
func ValidateActive(account Account) error {
	if !account.Active {
		return &InactiveAccountError{AccountNumber: account.Number}
	}
	return nil
}
