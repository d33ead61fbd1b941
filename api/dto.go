/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract.

NAMING CONVENTION:
  - *Request:  request body types from clients
  - *Response: types returned to clients

STATEMENT ROW FIELDS:
  The statement report keeps the legacy Spanish field names and dd/MM/yyyy
  date format of the existing consumers; do not rename them.

SEE ALSO:
  - handlers.go: parsing and validation
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sofka/account-ledger/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountRequest struct {
	Number         string          `json:"account_number"`
	Type           string          `json:"account_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Active         bool            `json:"is_active"`
	ClientID       int64           `json:"client_id"`
}

// AccountPatchRequest carries only the fields being changed.
type AccountPatchRequest struct {
	Number   *string `json:"account_number"`
	Type     *string `json:"account_type"`
	Active   *bool   `json:"is_active"`
	ClientID *int64  `json:"client_id"`
}

type AccountResponse struct {
	ID             int64           `json:"id"`
	Number         string          `json:"account_number"`
	Type           string          `json:"account_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Active         bool            `json:"is_active"`
	ClientID       int64           `json:"client_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		ID:             int64(a.ID),
		Number:         a.Number,
		Type:           string(a.Type),
		InitialBalance: a.InitialBalance,
		Active:         a.Active,
		ClientID:       int64(a.ClientID),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementRequest struct {
	AccountID int64           `json:"account_id"`
	Type      string          `json:"movement_type"`
	Amount    decimal.Decimal `json:"amount"`
	Date      *time.Time      `json:"date"`
}

type MovementPatchRequest struct {
	Date time.Time `json:"date"`
}

type MovementResponse struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Date      time.Time       `json:"date"`
	Type      string          `json:"movement_type"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

func toMovementResponse(m ledger.Movement) MovementResponse {
	return MovementResponse{
		ID:        int64(m.ID),
		AccountID: int64(m.AccountID),
		Date:      m.Date,
		Type:      string(m.Type),
		Amount:    m.Amount,
		Balance:   m.Balance,
	}
}

// =============================================================================
// STATEMENT REPORT
// =============================================================================

type StatementRowResponse struct {
	Date             string          `json:"Fecha"`
	ClientName       string          `json:"Cliente"`
	AccountNumber    string          `json:"Numero Cuenta"`
	AccountType      string          `json:"Tipo"`
	InitialBalance   decimal.Decimal `json:"Saldo Inicial"`
	Active           bool            `json:"Estado"`
	Movement         decimal.Decimal `json:"Movimiento"`
	AvailableBalance decimal.Decimal `json:"Saldo Disponible"`
}

func toStatementRowResponse(row ledger.StatementRow) StatementRowResponse {
	return StatementRowResponse{
		Date:             row.Date.Format("02/01/2006"),
		ClientName:       row.ClientName,
		AccountNumber:    row.AccountNumber,
		AccountType:      string(row.AccountType),
		InitialBalance:   row.InitialBalance,
		Active:           row.Active,
		Movement:         row.Movement,
		AvailableBalance: row.AvailableBalance,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error string `json:"error"`
}
