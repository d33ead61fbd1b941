/*
balance.go - Balance derivation (the source-of-truth rule)

PURPOSE:
  Computes an account's running balance by folding signed movement
  contributions. The cached Balance field on each movement is a write-through
  convenience; these folds are the only values validation may trust.

TWO CALL SHAPES:
  The engine uses two distinct folds and they are NOT interchangeable:

  1. MovementSum(movements)
     Pure fold of the movement set, starting from zero. Used when appending
     a new movement and when seeding a statement's prior balance. The
     account's initial balance is not added here: a positive opening balance
     materializes as an INITIAL_DEPOSIT movement, so adding it again would
     double-count.

  2. RunningBalanceExcluding(account, movements, excludeID)
     account.InitialBalance plus the fold of every movement except the one
     being edited. Used when re-validating a replaced movement, whose own
     historical contribution must not count against itself.

KNOWN LIMITATION:
  Deleting or replacing a historical movement does not recompute the cached
  balances of chronologically later movements; those snapshots go stale.
  Preserved deliberately for compatibility with the existing data.

SEE ALSO:
  - validate.go: funds checks built on these folds
  - statement.go: statement rows fold the same contributions per date range
*/
package ledger

import "github.com/shopspring/decimal"

// MovementSum folds the signed contributions of all movements, starting from
// zero. This is the append shape: the balance an account holds right now,
// given that its opening balance is itself recorded as a movement.
func MovementSum(movements []Movement) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range movements {
		sum = sum.Add(m.Signed())
	}
	return sum
}

// RunningBalanceExcluding computes the balance of account as if the movement
// with excludeID never happened: initial balance plus every other
// contribution. This is the edit shape, used when a movement is replaced and
// must be re-validated without double-counting itself.
func RunningBalanceExcluding(account Account, movements []Movement, excludeID MovementID) decimal.Decimal {
	balance := account.InitialBalance
	for _, m := range movements {
		if m.ID == excludeID {
			continue
		}
		balance = balance.Add(m.Signed())
	}
	return balance
}
