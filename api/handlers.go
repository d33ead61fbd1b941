/*
handlers.go - HTTP handlers for accounts, movements and statements

PURPOSE:
  Exposes the ledger engine via REST. Handlers parse and validate input,
  delegate to the engine, and translate domain errors to HTTP statuses.
  No business rule lives here.

ENDPOINTS:
  Accounts:
    GET    /api/accounts            List accounts
    POST   /api/accounts            Create account
    GET    /api/accounts/{id}       Get account
    PUT    /api/accounts/{id}       Full update
    PATCH  /api/accounts/{id}       Partial update
    DELETE /api/accounts/{id}       Soft delete (cascades to movements)

  Movements:
    GET    /api/movements                            List movements
    POST   /api/movements                            Create movement
    GET    /api/movements/{id}                       Get movement
    PUT    /api/movements/{id}                       Full replace
    PATCH  /api/movements/{id}                       Date-only patch
    DELETE /api/movements/{id}                       Soft delete
    GET    /api/movements/account/{accountID}        List by account (desc)
    POST   /api/movements/account/{accountID}/deposit?amount=
    POST   /api/movements/account/{accountID}/withdraw?amount=

  Reports:
    GET    /api/reportes?cliente=&desde=&hasta=      Statement (ISO dates)

  The report route and its query parameters keep the legacy Spanish names,
  like the report body fields; existing consumers depend on both.

ERROR HANDLING:
  400: business-rule violations (sign mismatch, insufficient funds,
       inactive account) and malformed input
  404: account/movement/client not found
  409: duplicate account
  503: client service or store unavailable (retryable)
  500: everything else

SEE ALSO:
  - dto.go:      request/response shapes
  - server.go:   router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sofka/account-ledger/ledger"
)

// Handler holds the handlers' dependencies.
type Handler struct {
	Engine     *ledger.Engine
	Statements *ledger.StatementBuilder
	Log        *logrus.Logger
}

func NewHandler(engine *ledger.Engine, statements *ledger.StatementBuilder, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Engine: engine, Statements: statements, Log: log}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Engine.Accounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	responses := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		responses = append(responses, toAccountResponse(a))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.Engine.Account(r.Context(), ledger.AccountID(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeAccountInput(w, r)
	if !ok {
		return
	}
	account, err := h.Engine.CreateAccount(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := h.decodeAccountInput(w, r)
	if !ok {
		return
	}
	account, err := h.Engine.UpdateAccount(r.Context(), ledger.AccountID(id), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) PatchAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AccountPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	patch := ledger.AccountPatch{Number: req.Number, Active: req.Active}
	if req.Type != nil {
		accType, err := parseAccountType(*req.Type)
		if err != nil {
			h.writeBadRequest(w, err.Error())
			return
		}
		patch.Type = &accType
	}
	if req.ClientID != nil {
		clientID := ledger.ClientID(*req.ClientID)
		patch.ClientID = &clientID
	}

	account, err := h.Engine.PatchAccount(r.Context(), ledger.AccountID(id), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Engine.DeleteAccount(r.Context(), ledger.AccountID(id)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeAccountInput(w http.ResponseWriter, r *http.Request) (ledger.AccountInput, bool) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return ledger.AccountInput{}, false
	}
	if req.Number == "" {
		h.writeBadRequest(w, "account_number is required")
		return ledger.AccountInput{}, false
	}
	if req.ClientID == 0 {
		h.writeBadRequest(w, "client_id is required")
		return ledger.AccountInput{}, false
	}
	accType, err := parseAccountType(req.Type)
	if err != nil {
		h.writeBadRequest(w, err.Error())
		return ledger.AccountInput{}, false
	}
	return ledger.AccountInput{
		Number:         req.Number,
		Type:           accType,
		InitialBalance: req.InitialBalance,
		Active:         req.Active,
		ClientID:       ledger.ClientID(req.ClientID),
	}, true
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.Engine.Movements(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementResponses(movements))
}

func (h *Handler) ListMovementsByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	movements, err := h.Engine.AccountMovements(r.Context(), ledger.AccountID(accountID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementResponses(movements))
}

func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	movement, err := h.Engine.Movement(r.Context(), ledger.MovementID(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeMovementInput(w, r)
	if !ok {
		return
	}
	movement, err := h.Engine.CreateMovement(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/movements/"+strconv.FormatInt(int64(movement.ID), 10))
	h.writeJSON(w, http.StatusCreated, toMovementResponse(movement))
}

// Deposit is a convenience wrapper around movement creation.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.quickMovement(w, r, ledger.MovementDeposit)
}

// Withdraw is a convenience wrapper; the amount must be negative, matching
// the sign contract of a plain movement create.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.quickMovement(w, r, ledger.MovementWithdrawal)
}

func (h *Handler) quickMovement(w http.ResponseWriter, r *http.Request, movType ledger.MovementType) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		h.writeBadRequest(w, "invalid amount")
		return
	}
	movement, err := h.Engine.CreateMovement(r.Context(), ledger.MovementInput{
		AccountID: ledger.AccountID(accountID),
		Type:      movType,
		Amount:    amount,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/movements/"+strconv.FormatInt(int64(movement.ID), 10))
	h.writeJSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) ReplaceMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := h.decodeMovementInput(w, r)
	if !ok {
		return
	}
	movement, err := h.Engine.ReplaceMovement(r.Context(), ledger.MovementID(id), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) PatchMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req MovementPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Date.IsZero() {
		h.writeBadRequest(w, "date is required")
		return
	}
	movement, err := h.Engine.PatchMovementDate(r.Context(), ledger.MovementID(id), req.Date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Engine.DeleteMovement(r.Context(), ledger.MovementID(id)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeMovementInput(w http.ResponseWriter, r *http.Request) (ledger.MovementInput, bool) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return ledger.MovementInput{}, false
	}
	movType, err := parseMovementType(req.Type)
	if err != nil {
		h.writeBadRequest(w, err.Error())
		return ledger.MovementInput{}, false
	}
	input := ledger.MovementInput{
		AccountID: ledger.AccountID(req.AccountID),
		Type:      movType,
		Amount:    req.Amount,
	}
	if req.Date != nil {
		input.Date = *req.Date
	}
	return input, true
}

// =============================================================================
// STATEMENT HANDLER
// =============================================================================

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(r.URL.Query().Get("cliente"), 10, 64)
	if err != nil {
		h.writeBadRequest(w, "cliente is required")
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("desde"))
	if err != nil {
		h.writeBadRequest(w, "desde must be an ISO date (yyyy-mm-dd)")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("hasta"))
	if err != nil {
		h.writeBadRequest(w, "hasta must be an ISO date (yyyy-mm-dd)")
		return
	}

	rows, err := h.Statements.Statement(r.Context(), ledger.ClientID(clientID), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	responses := make([]StatementRowResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, toStatementRowResponse(row))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func toMovementResponses(movements []ledger.Movement) []MovementResponse {
	responses := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		responses = append(responses, toMovementResponse(m))
	}
	return responses
}

func parseAccountType(s string) (ledger.AccountType, error) {
	switch ledger.AccountType(s) {
	case ledger.AccountSavings, ledger.AccountCurrent:
		return ledger.AccountType(s), nil
	}
	return "", errors.New("account_type must be SAVINGS or CURRENT")
}

func parseMovementType(s string) (ledger.MovementType, error) {
	switch ledger.MovementType(s) {
	case ledger.MovementDeposit, ledger.MovementWithdrawal, ledger.MovementInitialDeposit:
		return ledger.MovementType(s), nil
	}
	return "", errors.New("movement_type must be INITIAL_DEPOSIT, DEPOSIT or WITHDRAWAL")
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message})
}

// writeError translates domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateAccount):
		status = http.StatusConflict
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	case ledger.IsRetryable(err):
		status = http.StatusServiceUnavailable
	default:
		h.Log.WithError(err).Error("internal error")
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
