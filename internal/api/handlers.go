package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/bank-es/internal/api/middleware"
	"github.com/example/bank-es/internal/command"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AccountCommands is implemented by command.Handler.
type AccountCommands interface {
	CreateAccount(ctx context.Context, cmd command.CreateAccount) (command.AccountView, error)
	Deposit(ctx context.Context, cmd command.Deposit) (command.AccountView, error)
	Withdraw(ctx context.Context, cmd command.Withdraw) (command.AccountView, error)
	Transfer(ctx context.Context, cmd command.Transfer) (command.TransferResult, error)
	GetAccount(ctx context.Context, q command.GetAccount) (command.AccountView, error)
}

type Handlers struct {
	commands AccountCommands
	logger   *slog.Logger
}

func NewHandlers(commands AccountCommands, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{commands: commands, logger: logger.With("component", "api")}
}

type CreateAccountRequest struct {
	AccountNumber string `json:"account_number"`
	Holder        string `json:"holder"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// CreateAccount opens an account owned by the caller.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.commands.CreateAccount(r.Context(), command.CreateAccount{
		AccountNumber: req.AccountNumber,
		Holder:        req.Holder,
		OwnerID:       middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.commands.GetAccount(r.Context(), command.GetAccount{
		AccountID:   chi.URLParam(r, "id"),
		RequestedBy: middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.commands.Deposit(r.Context(), command.Deposit{
		AccountID:   chi.URLParam(r, "id"),
		Amount:      req.Amount,
		RequestedBy: middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.commands.Withdraw(r.Context(), command.Withdraw{
		AccountID:   chi.URLParam(r, "id"),
		Amount:      req.Amount,
		RequestedBy: middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.commands.Transfer(r.Context(), command.Transfer{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		RequestedBy:   middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps command.Classify results to HTTP status codes.
var statusFor = map[string]int{
	command.ResultInvalidArgument:    http.StatusBadRequest,
	command.ResultInsufficientFunds:  http.StatusUnprocessableEntity,
	command.ResultNotFound:           http.StatusNotFound,
	command.ResultForbidden:          http.StatusForbidden,
	command.ResultVersionConflict:    http.StatusConflict,
	command.ResultTransferIncomplete: http.StatusBadGateway,
}

func (h *Handlers) respondCommandError(w http.ResponseWriter, err error) {
	result := command.Classify(err)
	status, ok := statusFor[result]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if errors.Is(err, command.ErrNotOwner) {
		message = command.ErrNotOwner.Error()
	}
	respondJSON(w, status, ErrorResponse{Error: message, Code: result})
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// decodeBody writes a 400 and returns false when the body is not valid JSON
// for v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
