/*
statement.go - Statement reconstruction over a date range

PURPOSE:
  Builds the per-account statement rows for a client and a calendar date
  range. A pure read path: it queries the store directly, never takes the
  per-account locks, and only ever sees committed movements.

ROW SEMANTICS (compatibility-critical, reproduced exactly):
  - priorBalance:     Σ signed contributions of movements dated before the
    range start. A movement delta, NOT an absolute balance - the account's
    initial balance is never added here (it reaches the fold through the
    INITIAL_DEPOSIT movement when one exists).
  - movement:         signed contribution of the chronologically last
    in-range movement, zero when the range is empty.
  - availableBalance: priorBalance + Σ in-range contributions.
  - date:             date of the last in-range movement, or the last
    instant of the range's final day when there is none.
  - row order:        reverse of account iteration order.

  The toDate boundary is inclusive through the last nanosecond of that day.

CLIENT NAME:
  Resolved through the client resolver; resolver failures (not found or
  unavailable) degrade to an empty name instead of failing the statement.

SEE ALSO:
  - balance.go: the same signed-contribution fold
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StatementRow is one account's summary for the requested range.
type StatementRow struct {
	Date             time.Time
	ClientName       string
	AccountNumber    string
	AccountType      AccountType
	InitialBalance   decimal.Decimal
	Active           bool
	Movement         decimal.Decimal
	AvailableBalance decimal.Decimal
}

// StatementBuilder reconstructs statements from committed ledger state.
type StatementBuilder struct {
	Store   Store
	Clients ClientResolver
	Log     *logrus.Logger
}

func NewStatementBuilder(store Store, clients ClientResolver, log *logrus.Logger) *StatementBuilder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatementBuilder{Store: store, Clients: clients, Log: log}
}

// Statement returns one row per account owned by the client, covering
// movements with from <= date <= to (calendar days, inclusive).
func (b *StatementBuilder) Statement(ctx context.Context, clientID ClientID, from, to time.Time) ([]StatementRow, error) {
	accounts, err := b.Store.AccountsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	clientName := b.clientName(ctx, clientID)

	start := startOfDay(from)
	end := endOfDay(to)

	rows := make([]StatementRow, 0, len(accounts))
	for _, account := range accounts {
		inRange, err := b.Store.MovementsInRange(ctx, account.ID, start, end)
		if err != nil {
			return nil, err
		}
		prior, err := b.Store.MovementsBefore(ctx, account.ID, start)
		if err != nil {
			return nil, err
		}

		priorBalance := MovementSum(prior)
		periodTotal := MovementSum(inRange)

		lastMovement := decimal.Zero
		reportDate := end
		if len(inRange) > 0 {
			last := inRange[len(inRange)-1]
			lastMovement = last.Signed()
			reportDate = last.Date
		}

		rows = append(rows, StatementRow{
			Date:             reportDate,
			ClientName:       clientName,
			AccountNumber:    account.Number,
			AccountType:      account.Type,
			InitialBalance:   account.InitialBalance,
			Active:           account.Active,
			Movement:         lastMovement,
			AvailableBalance: priorBalance.Add(periodTotal),
		})
	}

	// Most-recently-iterated account first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// clientName degrades to "" when the resolver can't answer; a statement is
// never aborted by the client service.
func (b *StatementBuilder) clientName(ctx context.Context, clientID ClientID) string {
	client, err := b.Clients.Resolve(ctx, clientID)
	if err != nil {
		b.Log.WithField("client_id", clientID).WithError(err).Warn("client name unavailable for statement")
		return ""
	}
	return client.Name
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// endOfDay is the last instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
