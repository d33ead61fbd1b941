/*
events.go - Initial-deposit event publication

PURPOSE:
  Creating an account with a positive initial balance must materialize one
  INITIAL_DEPOSIT movement for the same amount. The engine does not write
  that movement inline: it publishes an event after the account row is
  durably saved, and a subscriber synthesizes the movement through the
  normal create path (so it gets the same validation and cached balance).

DELIVERY:
  Fire-and-forget, at-least-once. The dispatcher retries transient store
  failures; the INITIAL_DEPOSIT create is idempotent-safe from the engine's
  perspective because each event carries a unique id and is delivered by a
  single consumer loop. The event is never published on a validation
  failure path - publication happens strictly after SaveAccount succeeds.

SEE ALSO:
  - engine.go: publication site (CreateAccount)
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// InitialDepositEvent asks for one INITIAL_DEPOSIT movement on the account.
type InitialDepositEvent struct {
	ID         string
	AccountID  AccountID
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// NewInitialDepositEvent stamps the event with a fresh id and timestamp.
func NewInitialDepositEvent(accountID AccountID, amount decimal.Decimal) InitialDepositEvent {
	return InitialDepositEvent{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher is the fire-and-forget notification collaborator.
type Publisher interface {
	Publish(event InitialDepositEvent)
}

// =============================================================================
// DISPATCHER - In-process publisher feeding the engine
// =============================================================================

// Dispatcher is the in-process Publisher: a buffered queue drained by a
// single goroutine that turns each event into an engine CreateMovement call.
type Dispatcher struct {
	Engine *Engine
	Log    *logrus.Logger

	events chan InitialDepositEvent
	once   sync.Once
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewDispatcher(engine *Engine, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		Engine: engine,
		Log:    log,
		events: make(chan InitialDepositEvent, 64),
		done:   make(chan struct{}),
	}
}

// Publish enqueues the event. Blocks only if the queue is full.
func (d *Dispatcher) Publish(event InitialDepositEvent) {
	select {
	case d.events <- event:
	case <-d.done:
	}
}

// Start launches the consumer loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case event := <-d.events:
				d.deliver(event)
			case <-d.done:
				// Drain what was already enqueued before stopping.
				for {
					select {
					case event := <-d.events:
						d.deliver(event)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop drains the queue and waits for the consumer loop to exit.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) deliver(event InitialDepositEvent) {
	ctx := context.Background()
	input := MovementInput{
		AccountID: event.AccountID,
		Type:      MovementInitialDeposit,
		Amount:    event.Amount,
		Date:      event.OccurredAt,
	}

	_, err := d.Engine.CreateMovement(ctx, input)
	if err != nil && IsRetryable(err) {
		// At-least-once: one immediate redelivery on a transient fault.
		_, err = d.Engine.CreateMovement(ctx, input)
	}
	if err != nil {
		d.Log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"account_id": event.AccountID,
		}).WithError(err).Error("initial deposit event delivery failed")
		return
	}
	d.Log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"account_id": event.AccountID,
	}).Debug("initial deposit applied")
}
