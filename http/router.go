package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes served by NewRouter.
const (
	PathHealth             = "/health"
	PathAccount            = "/v1/account"
	PathValidate           = "/v1/native/validate"
	PathPay                = "/v1/native/pay"
	PathPreparePaymaster   = "/v1/native/prepare-paymaster"
	PathExecute            = "/v1/native/execute"
	PathExecuteFromOutside = "/v1/native/execute-from-outside"
	PathValidateOperation  = "/v1/external/validate"
	PathExecuteOperation   = "/v1/external/execute"
	PathExecuteBatch       = "/v1/external/execute-batch"
	PathIsValidSignature   = "/v1/signature/verify"
)

// NewRouter mounts every endpoint of h on a chi router.
//
// Example usage:
//
//	l := ledger.New()
//	acc, _ := account.New(state, l, l)
//	auth, _ := NewAuthenticator(secret, state.Address)
//	h := NewHandler(acc, l, WithAuthenticator(auth))
//	srv := &http.Server{Addr: "127.0.0.1:8080", Handler: NewRouter(h)}
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get(PathHealth, h.Health)
	r.Get(PathAccount, h.Account)

	r.Post(PathValidate, h.Validate)
	r.Post(PathPay, h.SettleFee)
	r.Post(PathPreparePaymaster, h.PrepareForFeeSponsor)
	r.Post(PathExecute, h.Execute)
	r.Post(PathExecuteFromOutside, h.ExecuteFromOutside)

	r.Post(PathValidateOperation, h.ValidateOperation)
	r.Post(PathExecuteOperation, h.ExecuteOperation)
	r.Post(PathExecuteBatch, h.ExecuteBatch)

	r.Post(PathIsValidSignature, h.IsValidSignature)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return r
}
