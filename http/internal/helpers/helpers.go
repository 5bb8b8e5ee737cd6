// Package helpers provides shared helper functions for the smart account HTTP
// handlers. They are used by the chi router and the Gin adapter so both
// surfaces answer with the same status codes and bodies.
package helpers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/encoding"
)

// OutcomeHeader carries the base64-encoded execution outcome.
const OutcomeHeader = "X-Execution-Result"

// RevertCode is reported for privileged calls re-raised verbatim.
const RevertCode = "REVERTED"

// UnauthenticatedCode is reported when a request carries no valid caller
// token.
const UnauthenticatedCode = "UNAUTHENTICATED"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ReturnData hexutil.Bytes  `json:"returnData,omitempty"`
}

// StatusFor maps an account error to an HTTP status code.
func StatusFor(err error) int {
	var revert *smartaccount.RevertError
	if errors.As(err, &revert) {
		return http.StatusUnprocessableEntity
	}

	switch smartaccount.CodeOf(err) {
	case smartaccount.ErrCodeUnauthorized:
		return http.StatusForbidden
	case smartaccount.ErrCodeInvalidSignature:
		return http.StatusUnauthorized
	case smartaccount.ErrCodeInsufficientBalance, smartaccount.ErrCodeFailedToSettleFee:
		return http.StatusPaymentRequired
	case smartaccount.ErrCodeNonceMismatch:
		return http.StatusConflict
	case smartaccount.ErrCodeExecutionFailed:
		return http.StatusUnprocessableEntity
	case smartaccount.ErrCodeMalformedSignature, smartaccount.ErrCodeValueOverflow, smartaccount.ErrCodeInvalidOperation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the body describing err.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Code: "INTERNAL", Message: err.Error()}

	var revert *smartaccount.RevertError
	if errors.As(err, &revert) {
		resp.Code = RevertCode
		resp.ReturnData = revert.Data
		return resp
	}

	var accErr *smartaccount.AccountError
	if errors.As(err, &accErr) {
		resp.Code = string(accErr.Code)
		resp.Details = accErr.Details
		resp.ReturnData = accErr.ReturnData
	}
	return resp
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers are already sent
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error body for err with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), NewErrorResponse(err))
}

// WriteBadRequest reports a request that could not be decoded or failed
// structural validation.
func WriteBadRequest(w http.ResponseWriter, err error) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    string(smartaccount.ErrCodeInvalidOperation),
		Message: err.Error(),
	})
}

// WriteUnauthenticated reports a missing or invalid caller token.
func WriteUnauthenticated(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="smartaccount"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Code:    UnauthenticatedCode,
		Message: err.Error(),
	})
}

// AddOutcomeHeader adds the X-Execution-Result header.
//
// Returns an error if encoding fails.
func AddOutcomeHeader(w http.ResponseWriter, outcome *smartaccount.ExecutionOutcome) error {
	if outcome == nil {
		return nil
	}
	encoded, err := encoding.EncodeOutcome(*outcome)
	if err != nil {
		return err
	}
	w.Header().Set(OutcomeHeader, encoded)
	return nil
}
