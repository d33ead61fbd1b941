package ledger_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sofka/account-ledger/ledger"
	"github.com/sofka/account-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubResolver answers from a fixed map, or fails with err.
type stubResolver struct {
	clients map[ledger.ClientID]ledger.Client
	err     error
}

func (s *stubResolver) Resolve(_ context.Context, id ledger.ClientID) (ledger.Client, error) {
	if s.err != nil {
		return ledger.Client{}, s.err
	}
	client, ok := s.clients[id]
	if !ok {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	return client, nil
}

func okResolver() *stubResolver {
	return &stubResolver{clients: map[ledger.ClientID]ledger.Client{
		1: {ID: 1, Name: "Jose Lema", Active: true},
		2: {ID: 2, Name: "Marianela Montalvo", Active: true},
	}}
}

// recordingPublisher captures published events instead of dispatching them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.InitialDepositEvent
}

func (p *recordingPublisher) Publish(event ledger.InitialDepositEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestEngine() (*ledger.Engine, *store.Memory) {
	mem := store.NewMemory()
	return ledger.NewEngine(mem, okResolver(), quietLog()), mem
}

// seedAccount writes an account directly to the store (no side effects).
func seedAccount(t *testing.T, mem *store.Memory, clientID ledger.ClientID, number string, initial string, active bool) ledger.Account {
	t.Helper()
	account := ledger.Account{
		Number:         number,
		Type:           ledger.AccountSavings,
		InitialBalance: dec(initial),
		Active:         active,
		ClientID:       clientID,
	}
	if err := mem.SaveAccount(context.Background(), &account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

// seedMovement writes a movement directly to the store.
func seedMovement(t *testing.T, mem *store.Memory, accountID ledger.AccountID, movType ledger.MovementType, amount string, date time.Time) ledger.Movement {
	t.Helper()
	movement := ledger.Movement{
		AccountID: accountID,
		Type:      movType,
		Amount:    dec(amount),
		Date:      date,
	}
	if err := mem.SaveMovement(context.Background(), &movement); err != nil {
		t.Fatalf("seed movement: %v", err)
	}
	return movement
}

func day(yyyy int, m time.Month, d int) time.Time {
	return time.Date(yyyy, m, d, 0, 0, 0, 0, time.UTC)
}

// hookedStore fires a callback once, right after the first movement read.
// Used to interleave a competing write between an operation's initial
// unlocked read and its lock acquisition.
type hookedStore struct {
	ledger.Store
	mu    sync.Mutex
	fired bool
	hook  func()
}

func (s *hookedStore) Movement(ctx context.Context, id ledger.MovementID) (ledger.Movement, error) {
	movement, err := s.Store.Movement(ctx, id)
	s.mu.Lock()
	fire := !s.fired
	s.fired = true
	s.mu.Unlock()
	if fire && s.hook != nil {
		s.hook()
	}
	return movement, err
}

// slowStore blocks movement writes until the context expires while engaged.
type slowStore struct {
	ledger.Store
	mu   sync.Mutex
	slow bool
}

func (s *slowStore) setSlow(v bool) {
	s.mu.Lock()
	s.slow = v
	s.mu.Unlock()
}

func (s *slowStore) SaveMovement(ctx context.Context, movement *ledger.Movement) error {
	s.mu.Lock()
	slow := s.slow
	s.mu.Unlock()
	if slow {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.Store.SaveMovement(ctx, movement)
}

// =============================================================================
// MOVEMENT CREATE
// =============================================================================

func TestCreateMovement_DepositAppendsAndCachesBalance(t *testing.T) {
	// GIVEN: An account holding 1000.00 via its initial deposit movement
	// WHEN:  Depositing 300.00
	// THEN:  The stored movement carries balance 1300.00

	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "1000.00", true)
	seedMovement(t, mem, account.ID, ledger.MovementInitialDeposit, "1000.00", day(2024, time.July, 1))

	movement, err := engine.CreateMovement(ctx, ledger.MovementInput{
		AccountID: account.ID,
		Type:      ledger.MovementDeposit,
		Amount:    dec("300.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !movement.Balance.Equal(dec("1300.00")) {
		t.Errorf("expected balance 1300.00, got %s", movement.Balance)
	}
	if !movement.Amount.Equal(dec("300.00")) {
		t.Errorf("amount should be stored as magnitude, got %s", movement.Amount)
	}
}

func TestCreateMovement_WithdrawalBeyondBalanceWritesNothing(t *testing.T) {
	// GIVEN: An account holding 1150.00
	// WHEN:  Withdrawing 2000.00
	// THEN:  ErrInsufficientFunds, and the movement set is unchanged

	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "1150.00", true)
	seedMovement(t, mem, account.ID, ledger.MovementInitialDeposit, "1150.00", day(2024, time.July, 1))

	_, err := engine.CreateMovement(ctx, ledger.MovementInput{
		AccountID: account.ID,
		Type:      ledger.MovementWithdrawal,
		Amount:    dec("-2000.00"),
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	movements, _ := mem.MovementsByAccount(ctx, account.ID)
	if len(movements) != 1 {
		t.Errorf("expected no new movement, have %d", len(movements))
	}
}

func TestCreateMovement_SignMismatchBeforeAccountLookup(t *testing.T) {
	// GIVEN: No account exists at all
	// WHEN:  Submitting a DEPOSIT with a negative signed amount
	// THEN:  ErrSignMismatch, not ErrAccountNotFound - the sign check runs
	//        before any account lookup is observable

	engine, _ := newTestEngine()

	_, err := engine.CreateMovement(context.Background(), ledger.MovementInput{
		AccountID: 999,
		Type:      ledger.MovementDeposit,
		Amount:    dec("-50.00"),
	})
	if !errors.Is(err, ledger.ErrSignMismatch) {
		t.Fatalf("expected ErrSignMismatch, got %v", err)
	}

	_, err = engine.CreateMovement(context.Background(), ledger.MovementInput{
		AccountID: 999,
		Type:      ledger.MovementWithdrawal,
		Amount:    dec("10.00"),
	})
	if !errors.Is(err, ledger.ErrSignMismatch) {
		t.Fatalf("expected ErrSignMismatch for positive withdrawal, got %v", err)
	}
}

func TestCreateMovement_InactiveAccountRejected(t *testing.T) {
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "100.00", false)

	_, err := engine.CreateMovement(context.Background(), ledger.MovementInput{
		AccountID: account.ID,
		Type:      ledger.MovementDeposit,
		Amount:    dec("10.00"),
	})
	if !errors.Is(err, ledger.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestCreateMovement_UnknownAccount(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.CreateMovement(context.Background(), ledger.MovementInput{
		AccountID: 42,
		Type:      ledger.MovementDeposit,
		Amount:    dec("10.00"),
	})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

// =============================================================================
// MOVEMENT REPLACE
// =============================================================================

func TestReplaceMovement_ReparentRecomputesAgainstNewAccount(t *testing.T) {
	// GIVEN: A withdrawal on account 1, and account 2 holding 700.00
	//        (500.00 initial balance + a 200.00 deposit movement)
	// WHEN:  Replacing the movement as a 100.00 withdrawal on account 2
	// THEN:  The balance is folded from account 2's movements excluding the
	//        replaced movement itself: 700.00 - 100.00 = 600.00

	ctx := context.Background()
	engine, mem := newTestEngine()
	source := seedAccount(t, mem, 1, "478758", "1000.00", true)
	target := seedAccount(t, mem, 2, "225487", "500.00", true)
	seedMovement(t, mem, target.ID, ledger.MovementDeposit, "200.00", day(2024, time.August, 2))
	moved := seedMovement(t, mem, source.ID, ledger.MovementWithdrawal, "50.00", day(2024, time.August, 3))

	replaced, err := engine.ReplaceMovement(ctx, moved.ID, ledger.MovementInput{
		AccountID: target.ID,
		Type:      ledger.MovementWithdrawal,
		Amount:    dec("-100.00"),
		Date:      day(2024, time.August, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replaced.AccountID != target.ID {
		t.Errorf("expected re-parent to account %d, got %d", target.ID, replaced.AccountID)
	}
	if !replaced.Balance.Equal(dec("600.00")) {
		t.Errorf("expected balance 600.00, got %s", replaced.Balance)
	}

	// The movement left the source account's set.
	sourceMovements, _ := mem.MovementsByAccount(ctx, source.ID)
	if len(sourceMovements) != 0 {
		t.Errorf("expected source account emptied, have %d movements", len(sourceMovements))
	}
}

func TestReplaceMovement_ExcludesSelfFromFundsCheck(t *testing.T) {
	// GIVEN: An account whose only movement is a 400.00 withdrawal against a
	//        500.00 initial balance
	// WHEN:  Replacing that withdrawal with a 450.00 one
	// THEN:  The old 400.00 must not count against the new amount:
	//        available is 500.00, so 450.00 succeeds with balance 50.00

	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "500.00", true)
	withdrawal := seedMovement(t, mem, account.ID, ledger.MovementWithdrawal, "400.00", day(2024, time.August, 2))

	replaced, err := engine.ReplaceMovement(context.Background(), withdrawal.ID, ledger.MovementInput{
		Type:   ledger.MovementWithdrawal,
		Amount: dec("-450.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replaced.Balance.Equal(dec("50.00")) {
		t.Errorf("expected balance 50.00, got %s", replaced.Balance)
	}
}

func TestReplaceMovement_ReparentedWhileWaitingForLock(t *testing.T) {
	// GIVEN: A replace that keeps the owning account (no target requested)
	// WHEN:  A competing replace re-parents the movement between the initial
	//        read and lock acquisition
	// THEN:  The movement stays on its new account, with the balance folded
	//        there, instead of being dragged back to the stale owner

	ctx := context.Background()
	mem := store.NewMemory()
	hooked := &hookedStore{Store: mem}
	engine := ledger.NewEngine(hooked, okResolver(), quietLog())

	source := seedAccount(t, mem, 1, "478758", "0", true)
	target := seedAccount(t, mem, 2, "225487", "500.00", true)
	movement := seedMovement(t, mem, source.ID, ledger.MovementDeposit, "100.00", day(2024, time.August, 1))

	hooked.hook = func() {
		moved := movement
		moved.AccountID = target.ID
		if err := mem.SaveMovement(ctx, &moved); err != nil {
			t.Errorf("competing re-parent: %v", err)
		}
	}

	replaced, err := engine.ReplaceMovement(ctx, movement.ID, ledger.MovementInput{
		Type:   ledger.MovementDeposit,
		Amount: dec("250.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replaced.AccountID != target.ID {
		t.Fatalf("movement dragged back to account %d; expected it to stay on %d", replaced.AccountID, target.ID)
	}
	if !replaced.Balance.Equal(dec("750.00")) {
		t.Errorf("expected balance folded on the new owner (750.00), got %s", replaced.Balance)
	}
	sourceMovements, _ := mem.MovementsByAccount(ctx, source.ID)
	if len(sourceMovements) != 0 {
		t.Errorf("stale owner still lists the movement")
	}
}

func TestPatchMovementDate_ReparentedWhileWaitingForLock(t *testing.T) {
	// The patch must resolve against the movement's owner as observed under
	// the lock. Here the competing replace moves it to an inactive account,
	// so the patch has to fail on that account's status.

	ctx := context.Background()
	mem := store.NewMemory()
	hooked := &hookedStore{Store: mem}
	engine := ledger.NewEngine(hooked, okResolver(), quietLog())

	source := seedAccount(t, mem, 1, "478758", "0", true)
	inactive := seedAccount(t, mem, 2, "225487", "0", false)
	movement := seedMovement(t, mem, source.ID, ledger.MovementDeposit, "100.00", day(2024, time.August, 1))

	hooked.hook = func() {
		moved := movement
		moved.AccountID = inactive.ID
		if err := mem.SaveMovement(ctx, &moved); err != nil {
			t.Errorf("competing re-parent: %v", err)
		}
	}

	_, err := engine.PatchMovementDate(ctx, movement.ID, day(2024, time.September, 1))
	if !errors.Is(err, ledger.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount from the movement's current owner, got %v", err)
	}
}

func TestReplaceMovement_NotFound(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.ReplaceMovement(context.Background(), 40, ledger.MovementInput{
		Type:   ledger.MovementDeposit,
		Amount: dec("10.00"),
	})
	if !errors.Is(err, ledger.ErrMovementNotFound) {
		t.Fatalf("expected ErrMovementNotFound, got %v", err)
	}
}

// =============================================================================
// MOVEMENT PATCH / DELETE
// =============================================================================

func TestPatchMovementDate_IsBalanceNeutral(t *testing.T) {
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "100.00", true)
	movement := seedMovement(t, mem, account.ID, ledger.MovementDeposit, "100.00", day(2024, time.August, 2))
	movement.Balance = dec("100.00")
	if err := mem.SaveMovement(context.Background(), &movement); err != nil {
		t.Fatal(err)
	}

	patched, err := engine.PatchMovementDate(context.Background(), movement.ID, day(2024, time.September, 9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !patched.Date.Equal(day(2024, time.September, 9)) {
		t.Errorf("expected patched date, got %s", patched.Date)
	}
	if !patched.Balance.Equal(dec("100.00")) {
		t.Errorf("date patch must not touch the cached balance, got %s", patched.Balance)
	}
}

func TestDeleteMovement_LeavesLaterCachedBalancesAlone(t *testing.T) {
	// Deleting a historical movement does not recompute the cached balances
	// of later movements. Compatibility behavior, not an accident.

	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "0", true)

	first, err := engine.CreateMovement(ctx, ledger.MovementInput{
		AccountID: account.ID, Type: ledger.MovementDeposit, Amount: dec("100.00"), Date: day(2024, time.August, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.CreateMovement(ctx, ledger.MovementInput{
		AccountID: account.ID, Type: ledger.MovementDeposit, Amount: dec("50.00"), Date: day(2024, time.August, 2),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.DeleteMovement(ctx, first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Movement(ctx, first.ID); !errors.Is(err, ledger.ErrMovementNotFound) {
		t.Fatalf("expected deleted movement gone, got %v", err)
	}

	remaining, err := engine.Movement(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Balance.Equal(dec("150.00")) {
		t.Errorf("later cached balance must stay stale at 150.00, got %s", remaining.Balance)
	}
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

func TestCreateAccount_PositiveInitialBalancePublishesEvent(t *testing.T) {
	engine, _ := newTestEngine()
	publisher := &recordingPublisher{}
	engine.Events = publisher

	account, err := engine.CreateAccount(context.Background(), ledger.AccountInput{
		Number: "478758", Type: ledger.AccountSavings,
		InitialBalance: dec("500.00"), Active: true, ClientID: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one initial deposit event, got %d", publisher.count())
	}
	if publisher.events[0].AccountID != account.ID {
		t.Errorf("event references wrong account")
	}
	if !publisher.events[0].Amount.Equal(dec("500.00")) {
		t.Errorf("event amount mismatch: %s", publisher.events[0].Amount)
	}
}

func TestCreateAccount_ZeroInitialBalancePublishesNothing(t *testing.T) {
	engine, _ := newTestEngine()
	publisher := &recordingPublisher{}
	engine.Events = publisher

	_, err := engine.CreateAccount(context.Background(), ledger.AccountInput{
		Number: "478758", Type: ledger.AccountSavings,
		InitialBalance: decimal.Zero, Active: true, ClientID: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if publisher.count() != 0 {
		t.Errorf("zero initial balance must not publish, got %d events", publisher.count())
	}
}

func TestCreateAccount_ValidationFailuresNeverPublish(t *testing.T) {
	// Unknown client, duplicate account and negative initial balance must
	// all fail without the event ever firing.

	ctx := context.Background()
	engine, mem := newTestEngine()
	publisher := &recordingPublisher{}
	engine.Events = publisher

	if _, err := engine.CreateAccount(ctx, ledger.AccountInput{
		Number: "1", Type: ledger.AccountSavings, InitialBalance: dec("10"), Active: true, ClientID: 99,
	}); !errors.Is(err, ledger.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}

	if _, err := engine.CreateAccount(ctx, ledger.AccountInput{
		Number: "1", Type: ledger.AccountSavings, InitialBalance: dec("-10"), Active: true, ClientID: 1,
	}); !errors.Is(err, ledger.ErrNegativeInitialBalance) {
		t.Fatalf("expected ErrNegativeInitialBalance, got %v", err)
	}

	seedAccount(t, mem, 1, "478758", "0", true)
	if _, err := engine.CreateAccount(ctx, ledger.AccountInput{
		Number: "478758", Type: ledger.AccountSavings, InitialBalance: dec("10"), Active: true, ClientID: 1,
	}); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	if publisher.count() != 0 {
		t.Errorf("no event may be published on validation failures, got %d", publisher.count())
	}
}

func TestCreateAccount_ClientServiceUnavailableAborts(t *testing.T) {
	mem := store.NewMemory()
	engine := ledger.NewEngine(mem, &stubResolver{err: ledger.ErrClientUnavailable}, quietLog())

	_, err := engine.CreateAccount(context.Background(), ledger.AccountInput{
		Number: "478758", Type: ledger.AccountSavings, InitialBalance: dec("10"), Active: true, ClientID: 1,
	})
	if !errors.Is(err, ledger.ErrClientUnavailable) {
		t.Fatalf("expected ErrClientUnavailable, got %v", err)
	}
	if !ledger.IsRetryable(err) {
		t.Errorf("unavailable client service should be retryable")
	}
}

func TestDispatcher_DeliversInitialDeposit(t *testing.T) {
	// End to end: account creation -> event -> INITIAL_DEPOSIT movement with
	// the initial amount, through the normal create pipeline.

	ctx := context.Background()
	engine, mem := newTestEngine()
	dispatcher := ledger.NewDispatcher(engine, quietLog())
	engine.Events = dispatcher
	dispatcher.Start()

	account, err := engine.CreateAccount(ctx, ledger.AccountInput{
		Number: "478758", Type: ledger.AccountSavings,
		InitialBalance: dec("500.00"), Active: true, ClientID: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dispatcher.Stop() // drains the queue

	movements, err := mem.MovementsByAccount(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected one synthesized movement, got %d", len(movements))
	}
	if movements[0].Type != ledger.MovementInitialDeposit {
		t.Errorf("expected INITIAL_DEPOSIT, got %s", movements[0].Type)
	}
	if !movements[0].Balance.Equal(dec("500.00")) {
		t.Errorf("expected cached balance 500.00, got %s", movements[0].Balance)
	}
}

func TestUpdateAccount_DuplicateAgainstOtherAccount(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine()
	seedAccount(t, mem, 1, "100", "0", true)
	other := seedAccount(t, mem, 1, "200", "0", true)

	_, err := engine.UpdateAccount(ctx, other.ID, ledger.AccountInput{
		Number: "100", Type: ledger.AccountSavings, Active: true, ClientID: 1,
	})
	if !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	// Updating an account against itself is not a duplicate.
	if _, err := engine.UpdateAccount(ctx, other.ID, ledger.AccountInput{
		Number: "200", Type: ledger.AccountSavings, Active: false, ClientID: 1,
	}); err != nil {
		t.Fatalf("self-update must not be a duplicate: %v", err)
	}
}

func TestDeleteAccount_CascadesToMovements(t *testing.T) {
	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "100.00", true)
	movement := seedMovement(t, mem, account.ID, ledger.MovementInitialDeposit, "100.00", day(2024, time.July, 1))

	if err := engine.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Account(ctx, account.ID); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account gone, got %v", err)
	}
	if _, err := engine.Movement(ctx, movement.ID); !errors.Is(err, ledger.ErrMovementNotFound) {
		t.Fatalf("a movement cannot outlive its account, got %v", err)
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentWithdrawals_ExactlyOneSucceeds(t *testing.T) {
	// GIVEN: An account holding 1000.00
	// WHEN:  Two concurrent 700.00 withdrawals, each valid alone
	// THEN:  Exactly one success and one ErrInsufficientFunds - never two
	//        successes reading the same stale balance

	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "1000.00", true)
	seedMovement(t, mem, account.ID, ledger.MovementInitialDeposit, "1000.00", day(2024, time.July, 1))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CreateMovement(ctx, ledger.MovementInput{
				AccountID: account.ID,
				Type:      ledger.MovementWithdrawal,
				Amount:    dec("-700.00"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, insufficient int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || insufficient != 1 {
		t.Fatalf("expected 1 success + 1 insufficient, got %d/%d", successes, insufficient)
	}

	movements, _ := mem.MovementsByAccount(ctx, account.ID)
	if !ledger.MovementSum(movements).Equal(dec("300.00")) {
		t.Errorf("expected final balance 300.00, got %s", ledger.MovementSum(movements))
	}
}

func TestCreateMovement_StoreTimeoutSurfacesRetryable(t *testing.T) {
	// GIVEN: A store that cannot complete the write within SaveTimeout
	// WHEN:  Creating a movement
	// THEN:  ErrStoreUnavailable (retryable), and the account lock is
	//        released so the next mutation on the same account proceeds

	ctx := context.Background()
	mem := store.NewMemory()
	slow := &slowStore{Store: mem}
	engine := ledger.NewEngine(slow, okResolver(), quietLog())
	engine.SaveTimeout = 10 * time.Millisecond

	account := seedAccount(t, mem, 1, "478758", "0", true)
	slow.setSlow(true)

	_, err := engine.CreateMovement(ctx, ledger.MovementInput{
		AccountID: account.ID, Type: ledger.MovementDeposit, Amount: dec("10.00"),
	})
	if !errors.Is(err, ledger.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !ledger.IsRetryable(err) {
		t.Error("a timed-out write must be retryable")
	}

	slow.setSlow(false)
	done := make(chan error, 1)
	go func() {
		_, err := engine.CreateMovement(ctx, ledger.MovementInput{
			AccountID: account.ID, Type: ledger.MovementDeposit, Amount: dec("20.00"),
		})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow-up mutation failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("account lock was not released after the timed-out write")
	}

	movements, _ := mem.MovementsByAccount(ctx, account.ID)
	if len(movements) != 1 {
		t.Errorf("expected only the follow-up movement persisted, got %d", len(movements))
	}
}

func TestAccountMovements_RepeatedReadsStable(t *testing.T) {
	// Repeated reads without intervening mutation return identical results.

	ctx := context.Background()
	engine, mem := newTestEngine()
	account := seedAccount(t, mem, 1, "478758", "100.00", true)
	seedMovement(t, mem, account.ID, ledger.MovementInitialDeposit, "100.00", day(2024, time.July, 1))

	first, err := engine.AccountMovements(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.AccountMovements(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("read lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].Balance.Equal(second[i].Balance) {
			t.Errorf("read %d differs between calls", i)
		}
	}
}
