/*
accounts.go - Account lifecycle operations

PURPOSE:
  Account CRUD with the invariants the movement side depends on:
  - initial balance >= 0 and immutable after creation
  - (clientID, accountType, accountNumber) unique among live accounts
  - owning client must exist, checked through the resolver on create and
    whenever the owning client changes
  - deleting an account cascades a soft delete to its movements

INITIAL DEPOSIT SIDE EFFECT:
  A positive initial balance publishes one InitialDepositEvent, strictly
  after the account row was saved and never on a validation failure path.
  The subscriber (events.go) synthesizes the INITIAL_DEPOSIT movement.

SEE ALSO:
  - engine.go: the movement pipeline the side effect feeds into
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AccountInput is an account create/update request.
type AccountInput struct {
	Number         string
	Type           AccountType
	InitialBalance decimal.Decimal
	Active         bool
	ClientID       ClientID
}

// AccountPatch is a partial account update; nil fields are left untouched.
// The initial balance is immutable and deliberately absent.
type AccountPatch struct {
	Number   *string
	Type     *AccountType
	Active   *bool
	ClientID *ClientID
}

// =============================================================================
// ACCOUNT WRITES
// =============================================================================

// CreateAccount validates and saves a new account. A positive initial
// balance publishes the initial-deposit event after the save commits.
func (e *Engine) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	log := e.Log.WithField("client_id", input.ClientID)
	log.Info("creating account")

	if input.InitialBalance.Sign() == -1 {
		return Account{}, ErrNegativeInitialBalance
	}
	if _, err := e.Clients.Resolve(ctx, input.ClientID); err != nil {
		return Account{}, err
	}
	duplicates, err := e.Store.FindAccounts(ctx, input.ClientID, input.Type, input.Number)
	if err != nil {
		return Account{}, err
	}
	if len(duplicates) > 0 {
		return Account{}, ErrDuplicateAccount
	}

	now := time.Now().UTC()
	account := Account{
		Number:         input.Number,
		Type:           input.Type,
		InitialBalance: input.InitialBalance,
		Active:         input.Active,
		ClientID:       input.ClientID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.SaveAccount(pctx, &account); err != nil {
		return Account{}, e.writeErr(err)
	}

	log.WithField("account_id", account.ID).Info("account created")

	if input.InitialBalance.Sign() == 1 && e.Events != nil {
		e.Events.Publish(NewInitialDepositEvent(account.ID, input.InitialBalance))
	}
	return account, nil
}

// UpdateAccount fully updates the account's mutable fields. The initial
// balance is kept as created.
func (e *Engine) UpdateAccount(ctx context.Context, id AccountID, input AccountInput) (Account, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	account, err := e.Store.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}

	if input.ClientID != account.ClientID {
		if _, err := e.Clients.Resolve(ctx, input.ClientID); err != nil {
			return Account{}, err
		}
	}
	if err := e.checkDuplicate(ctx, input.ClientID, input.Type, input.Number, id); err != nil {
		return Account{}, err
	}

	account.Number = input.Number
	account.Type = input.Type
	account.Active = input.Active
	account.ClientID = input.ClientID
	account.UpdatedAt = time.Now().UTC()

	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.SaveAccount(pctx, &account); err != nil {
		return Account{}, e.writeErr(err)
	}

	e.Log.WithField("account_id", id).Info("account updated")
	return account, nil
}

// PatchAccount applies a partial update. The owning client is re-validated
// on every patch, changed or not, matching the full-update rules.
func (e *Engine) PatchAccount(ctx context.Context, id AccountID, patch AccountPatch) (Account, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	account, err := e.Store.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}

	if patch.Number != nil {
		account.Number = *patch.Number
	}
	if patch.Type != nil {
		account.Type = *patch.Type
	}
	if patch.Active != nil {
		account.Active = *patch.Active
	}
	if patch.ClientID != nil {
		account.ClientID = *patch.ClientID
	}

	if _, err := e.Clients.Resolve(ctx, account.ClientID); err != nil {
		return Account{}, err
	}
	if err := e.checkDuplicate(ctx, account.ClientID, account.Type, account.Number, id); err != nil {
		return Account{}, err
	}

	account.UpdatedAt = time.Now().UTC()

	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.SaveAccount(pctx, &account); err != nil {
		return Account{}, e.writeErr(err)
	}

	e.Log.WithField("account_id", id).Info("account patched")
	return account, nil
}

// DeleteAccount soft-deletes the account and, cascading, its movements.
func (e *Engine) DeleteAccount(ctx context.Context, id AccountID) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	if _, err := e.Store.Account(ctx, id); err != nil {
		return err
	}

	pctx, cancel := e.boundWrite(ctx)
	defer cancel()
	if err := e.Store.DeleteAccount(pctx, id); err != nil {
		return e.writeErr(err)
	}

	e.Log.WithFields(logrus.Fields{"account_id": id}).Info("account deleted")
	return nil
}

// =============================================================================
// ACCOUNT READS
// =============================================================================

// Account returns a single account by id.
func (e *Engine) Account(ctx context.Context, id AccountID) (Account, error) {
	return e.Store.Account(ctx, id)
}

// Accounts returns all accounts.
func (e *Engine) Accounts(ctx context.Context) ([]Account, error) {
	return e.Store.Accounts(ctx)
}

// checkDuplicate fails when a live account other than self matches
// client+type+number.
func (e *Engine) checkDuplicate(ctx context.Context, clientID ClientID, accType AccountType, number string, self AccountID) error {
	matches, err := e.Store.FindAccounts(ctx, clientID, accType, number)
	if err != nil {
		return err
	}
	for _, a := range matches {
		if a.ID != self {
			return ErrDuplicateAccount
		}
	}
	return nil
}
