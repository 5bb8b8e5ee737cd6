package smartaccount

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Standard smart account error definitions

var (
	// ErrUnauthorized indicates the caller may not invoke the entry point.
	ErrUnauthorized = errors.New("unauthorized caller")

	// ErrInsufficientBalance indicates the account holds less than the required value.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrFailedToSettleFee indicates the push-model fee transfer failed.
	ErrFailedToSettleFee = errors.New("failed to settle fee")

	// ErrInvalidSignature indicates a self-submitted operation was not signed by the owner.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExecutionFailed indicates the downstream call reverted.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrMalformedSignature indicates a signature that cannot be decoded at all.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrNonceMismatch indicates the nonce coordinator rejected the expected nonce.
	ErrNonceMismatch = errors.New("nonce mismatch")

	// ErrValueOverflow indicates a call value that does not fit in 128 bits.
	ErrValueOverflow = errors.New("value overflows uint128")

	// ErrInvalidOperation indicates a structurally invalid operation.
	ErrInvalidOperation = errors.New("invalid operation")
)

// ErrorCode classifies hard aborts raised by the account.
type ErrorCode string

const (
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeFailedToSettleFee   ErrorCode = "FAILED_TO_SETTLE_FEE"
	ErrCodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	ErrCodeExecutionFailed     ErrorCode = "EXECUTION_FAILED"
	ErrCodeMalformedSignature  ErrorCode = "MALFORMED_SIGNATURE"
	ErrCodeNonceMismatch       ErrorCode = "NONCE_MISMATCH"
	ErrCodeValueOverflow       ErrorCode = "VALUE_OVERFLOW"
	ErrCodeInvalidOperation    ErrorCode = "INVALID_OPERATION"
)

// AccountError is a hard abort carrying a code, the underlying sentinel and
// optional diagnostic details.
type AccountError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any

	// ReturnData is the downstream revert payload when the abort policy keeps it.
	ReturnData []byte
}

// NewAccountError creates an AccountError.
func NewAccountError(code ErrorCode, message string, err error) *AccountError {
	return &AccountError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails attaches a key/value detail and returns the error for chaining.
func (e *AccountError) WithDetails(key string, value any) *AccountError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithReturnData attaches the downstream revert payload.
func (e *AccountError) WithReturnData(data []byte) *AccountError {
	e.ReturnData = data
	return e
}

func (e *AccountError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.ReturnData) > 0 {
		msg = fmt.Sprintf("%s (returnData=%s)", msg, hexutil.Encode(e.ReturnData))
	}
	return msg
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// RevertError re-raises a privileged call failure verbatim.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	if len(e.Data) == 0 {
		return "execution reverted"
	}
	return "execution reverted: " + hexutil.Encode(e.Data)
}

// ErrorData returns the raw revert payload.
func (e *RevertError) ErrorData() []byte {
	return e.Data
}

// CodeOf returns the ErrorCode of err, or "" when err is not an AccountError.
func CodeOf(err error) ErrorCode {
	var accErr *AccountError
	if errors.As(err, &accErr) {
		return accErr.Code
	}
	return ""
}
