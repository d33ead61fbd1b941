// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sofka/account-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps accounts and movements in maps guarded by one RWMutex.
// Movements per account are kept sorted by date so range queries and
// "last in range" behave like the SQL implementation.
type Memory struct {
	mu sync.RWMutex

	accounts  map[ledger.AccountID]ledger.Account
	movements map[ledger.MovementID]ledger.Movement
	byAccount map[ledger.AccountID][]ledger.MovementID

	nextAccountID  ledger.AccountID
	nextMovementID ledger.MovementID
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[ledger.AccountID]ledger.Account),
		movements: make(map[ledger.MovementID]ledger.Movement),
		byAccount: make(map[ledger.AccountID][]ledger.MovementID),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) Account(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok || account.Deleted {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (m *Memory) Accounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsWhere(func(ledger.Account) bool { return true }), nil
}

func (m *Memory) AccountsByClient(_ context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsWhere(func(a ledger.Account) bool { return a.ClientID == clientID }), nil
}

func (m *Memory) FindAccounts(_ context.Context, clientID ledger.ClientID, accType ledger.AccountType, number string) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsWhere(func(a ledger.Account) bool {
		return a.ClientID == clientID && a.Type == accType && a.Number == number
	}), nil
}

// accountsWhere returns live accounts matching the predicate, in id order.
func (m *Memory) accountsWhere(match func(ledger.Account) bool) []ledger.Account {
	var result []ledger.Account
	for _, a := range m.accounts {
		if !a.Deleted && match(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) SaveAccount(ctx context.Context, account *ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == 0 {
		m.nextAccountID++
		account.ID = m.nextAccountID
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *Memory) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok || account.Deleted {
		return ledger.ErrAccountNotFound
	}

	now := time.Now().UTC()
	account.Deleted = true
	account.DeletedAt = &now
	m.accounts[id] = account

	// Cascade: a movement cannot outlive its account.
	for _, movID := range m.byAccount[id] {
		movement := m.movements[movID]
		if !movement.Deleted {
			movement.Deleted = true
			movement.DeletedAt = &now
			m.movements[movID] = movement
		}
	}
	return nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (m *Memory) Movement(_ context.Context, id ledger.MovementID) (ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movement, ok := m.movements[id]
	if !ok || movement.Deleted {
		return ledger.Movement{}, ledger.ErrMovementNotFound
	}
	return movement, nil
}

func (m *Memory) Movements(_ context.Context) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Movement
	for _, movement := range m.movements {
		if !movement.Deleted {
			result = append(result, movement)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) MovementsByAccount(_ context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsWhere(accountID, func(ledger.Movement) bool { return true }), nil
}

func (m *Memory) MovementsInRange(_ context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsWhere(accountID, func(mv ledger.Movement) bool {
		return !mv.Date.Before(from) && !mv.Date.After(to)
	}), nil
}

func (m *Memory) MovementsBefore(_ context.Context, accountID ledger.AccountID, before time.Time) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsWhere(accountID, func(mv ledger.Movement) bool {
		return mv.Date.Before(before)
	}), nil
}

// movementsWhere returns the account's live movements matching the
// predicate, in the date-sorted order maintained on write.
func (m *Memory) movementsWhere(accountID ledger.AccountID, match func(ledger.Movement) bool) []ledger.Movement {
	var result []ledger.Movement
	for _, id := range m.byAccount[accountID] {
		movement := m.movements[id]
		if !movement.Deleted && match(movement) {
			result = append(result, movement)
		}
	}
	return result
}

func (m *Memory) SaveMovement(ctx context.Context, movement *ledger.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if movement.ID == 0 {
		m.nextMovementID++
		movement.ID = m.nextMovementID
	} else if previous, ok := m.movements[movement.ID]; ok {
		// Updates may change date or owner; drop the old index entry and
		// re-insert below.
		m.removeFromIndex(previous.AccountID, movement.ID)
	}

	m.movements[movement.ID] = *movement

	ids := m.byAccount[movement.AccountID]
	// Binary search for the insertion point keeps the per-account slice
	// sorted by date.
	i := sort.Search(len(ids), func(i int) bool {
		return m.movements[ids[i]].Date.After(movement.Date)
	})
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = movement.ID
	m.byAccount[movement.AccountID] = ids
	return nil
}

func (m *Memory) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	movement, ok := m.movements[id]
	if !ok || movement.Deleted {
		return ledger.ErrMovementNotFound
	}
	now := time.Now().UTC()
	movement.Deleted = true
	movement.DeletedAt = &now
	m.movements[id] = movement
	return nil
}

func (m *Memory) removeFromIndex(accountID ledger.AccountID, id ledger.MovementID) {
	ids := m.byAccount[accountID]
	for i, existing := range ids {
		if existing == id {
			m.byAccount[accountID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}
