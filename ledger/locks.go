/*
locks.go - Per-account exclusive critical sections

PURPOSE:
  Guarantees at most one in-flight mutation per account. Two concurrent
  withdrawals must not both read the same stale balance and both pass the
  funds check; wrapping load -> validate -> compute -> persist in a keyed
  mutex makes exactly one of them lose.

  Reads (show, statement) do not take these locks: stores guarantee they
  never expose a partially written movement, and statements across accounts
  are independent.

LOCK ORDERING:
  Replacing a movement can re-parent it to a different account, which needs
  both accounts locked. Locks are always acquired in ascending AccountID
  order so two re-parenting calls cannot deadlock each other.
*/
package ledger

import "sync"

// accountLocks is a lazily-populated map of one mutex per account.
// Mutexes are never removed; the population is bounded by live accounts.
type accountLocks struct {
	mu    sync.Mutex
	locks map[AccountID]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[AccountID]*sync.Mutex)}
}

func (l *accountLocks) get(id AccountID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Lock acquires the account's mutex and returns the unlock func.
func (l *accountLocks) Lock(id AccountID) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

// LockBoth acquires both accounts' mutexes in ascending id order.
// Passing the same id twice locks once.
func (l *accountLocks) LockBoth(a, b AccountID) func() {
	if a == b {
		return l.Lock(a)
	}
	if b < a {
		a, b = b, a
	}
	first, second := l.get(a), l.get(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
