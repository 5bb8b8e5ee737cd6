// Package http exposes a smart account over JSON/HTTP. Every request runs as
// one backend transaction, so a hard abort raised by the account unwinds all
// changes made while serving it.
//
// Controller endpoints take the caller identity from a signed bearer token
// checked by an Authenticator; without one they answer 401. Self-submission,
// signature checks and the account view are open, since the owner's
// signature is their authorization.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/account"
	"github.com/mark3labs/smartaccount-go/http/internal/helpers"
	"github.com/mark3labs/smartaccount-go/validation"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Backend is the transactional host the account runs on.
type Backend interface {
	// Atomic runs fn as one transaction, unwinding every write when fn fails.
	Atomic(fn func() error) error

	// BalanceOf returns the current balance of addr.
	BalanceOf(addr common.Address) *big.Int
}

// Handler serves one account.
type Handler struct {
	account *account.Account
	backend Backend
	auth    *Authenticator
	logger  *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAuthenticator enables the controller endpoints.
func WithAuthenticator(auth *Authenticator) HandlerOption {
	return func(h *Handler) {
		h.auth = auth
	}
}

// NewHandler creates a Handler for acc running on backend.
func NewHandler(acc *account.Account, backend Backend, opts ...HandlerOption) *Handler {
	h := &Handler{
		account: acc,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Validate serves the native validation entry point.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req NativeRequest
	if !h.decodeNative(w, r, &req) {
		return
	}

	var magic smartaccount.ValidationMagic
	err := h.backend.Atomic(func() error {
		var err error
		magic, err = h.account.Validate(r.Context(), caller, req.TxHash, req.SuggestedSignedHash, &req.Transaction)
		return err
	})
	if err != nil {
		h.fail(w, r, "validate", err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, ValidateResponse{Magic: magic.String(), Success: magic.IsSuccess()})
}

// SettleFee serves the native push settlement entry point.
func (h *Handler) SettleFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req NativeRequest
	if !h.decodeNative(w, r, &req) {
		return
	}

	err := h.backend.Atomic(func() error {
		return h.account.SettleFee(r.Context(), caller, req.TxHash, req.SuggestedSignedHash, &req.Transaction)
	})
	if err != nil {
		h.fail(w, r, "settleFee", err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, SettleResponse{
		Settled:   true,
		Collector: h.account.FeeCollector(),
		Amount:    req.Transaction.Fee(),
	})
}

// PrepareForFeeSponsor serves the reserved fee sponsor hook.
func (h *Handler) PrepareForFeeSponsor(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req NativeRequest
	if !h.decodeNative(w, r, &req) {
		return
	}

	err := h.backend.Atomic(func() error {
		return h.account.PrepareForFeeSponsor(r.Context(), caller, req.TxHash, req.SuggestedSignedHash, &req.Transaction)
	})
	if err != nil {
		h.fail(w, r, "prepareForFeeSponsor", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Execute serves the native dispatch entry point.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req NativeRequest
	if !h.decodeNative(w, r, &req) {
		return
	}

	var outcome *smartaccount.ExecutionOutcome
	err := h.backend.Atomic(func() error {
		var err error
		outcome, err = h.account.Execute(r.Context(), caller, req.TxHash, req.SuggestedSignedHash, &req.Transaction)
		return err
	})
	h.writeOutcome(w, r, "execute", outcome, err)
}

// ExecuteFromOutside serves self-submitted owner transactions.
func (h *Handler) ExecuteFromOutside(w http.ResponseWriter, r *http.Request) {
	var req ExternalExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}
	if err := validation.ValidateTransaction(&req.Transaction); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}

	var outcome *smartaccount.ExecutionOutcome
	err := h.backend.Atomic(func() error {
		var err error
		outcome, err = h.account.ValidateAndExecuteExternally(r.Context(), &req.Transaction)
		return err
	})
	h.writeOutcome(w, r, "validateAndExecuteExternally", outcome, err)
}

// ValidateOperation serves the external-controller validation entry point.
func (h *Handler) ValidateOperation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req ValidateOperationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}
	if err := validation.ValidateUserOperation(&req.UserOp); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}

	var result smartaccount.ValidationData
	err := h.backend.Atomic(func() error {
		var err error
		result, err = h.account.ValidateOperation(r.Context(), caller, &req.UserOp, req.UserOpHash, req.MissingFunds)
		return err
	})
	if err != nil {
		h.fail(w, r, "validateOperation", err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, ValidateOperationResponse{ValidationData: result.Pack(), Result: result})
}

// ExecuteOperation serves the external-controller dispatch entry point.
func (h *Handler) ExecuteOperation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req ExecuteOperationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}

	var outcome *smartaccount.ExecutionOutcome
	err := h.backend.Atomic(func() error {
		var err error
		outcome, err = h.account.ExecuteOperation(r.Context(), caller, req.Dest, req.Value, req.Data)
		return err
	})
	h.writeOutcome(w, r, "executeOperation", outcome, err)
}

// ExecuteBatch serves batched external-controller dispatch. The batch is one
// transaction: a failing call unwinds the calls before it.
func (h *Handler) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req ExecuteBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}
	if err := validation.ValidateCalls(req.Calls); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}

	var outcomes []*smartaccount.ExecutionOutcome
	err := h.backend.Atomic(func() error {
		var err error
		outcomes, err = h.account.ExecuteBatch(r.Context(), caller, req.Calls)
		return err
	})
	if err != nil {
		h.fail(w, r, "executeBatch", err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, ExecuteBatchResponse{Outcomes: outcomes})
}

// IsValidSignature serves ERC-1271 signature checks.
func (h *Handler) IsValidSignature(w http.ResponseWriter, r *http.Request) {
	var req SignatureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteBadRequest(w, err)
		return
	}

	magic, err := h.account.IsValidSignature(req.Hash, req.Signature)
	if err != nil {
		h.fail(w, r, "isValidSignature", err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, SignatureResponse{
		MagicValue: hexutil.Bytes(magic[:]),
		Valid:      magic == smartaccount.ERC1271MagicValue,
	})
}

// Account describes the served account.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	var balance *big.Int
	_ = h.backend.Atomic(func() error {
		balance = h.backend.BalanceOf(h.account.Address())
		return nil
	})

	helpers.WriteJSON(w, http.StatusOK, AccountResponse{
		Address:            h.account.Address(),
		Owner:              h.account.Owner(),
		ChainID:            h.account.ChainID(),
		NativeController:   h.account.NativeController(),
		ExternalController: h.account.ExternalController(),
		FeeCollector:       h.account.FeeCollector(),
		Balance:            balance,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller of r, answering 401 when it cannot.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	err := fmt.Errorf("%w: caller authentication is not configured", ErrUnauthenticated)
	if h.auth != nil {
		var caller common.Address
		if caller, err = h.auth.Authenticate(r); err == nil {
			return caller, true
		}
	}

	h.logger.Info("caller rejected",
		"path", r.URL.Path,
		"requestId", RequestIDFromContext(r.Context()),
		"error", err,
	)
	helpers.WriteUnauthenticated(w, err)
	return common.Address{}, false
}

func (h *Handler) decodeNative(w http.ResponseWriter, r *http.Request, req *NativeRequest) bool {
	if err := decodeJSON(w, r, req); err != nil {
		helpers.WriteBadRequest(w, err)
		return false
	}
	if err := validation.ValidateTransaction(&req.Transaction); err != nil {
		helpers.WriteBadRequest(w, err)
		return false
	}
	return true
}

func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, entry string, outcome *smartaccount.ExecutionOutcome, err error) {
	if hdrErr := helpers.AddOutcomeHeader(w, outcome); hdrErr != nil {
		h.logger.Warn("failed to add outcome header", "error", hdrErr)
	}
	if err != nil {
		h.fail(w, r, entry, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, outcome)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, entry string, err error) {
	status := helpers.StatusFor(err)
	logger := h.logger.With("entry", entry, "requestId", RequestIDFromContext(r.Context()), "status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request aborted", "error", err)
	}
	helpers.WriteError(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
