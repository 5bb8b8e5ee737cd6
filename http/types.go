package http

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mark3labs/smartaccount-go"
)

// NativeRequest is the body of every native-flow controller call. The caller
// is taken from the bearer token, never from the body.
type NativeRequest struct {
	TxHash              common.Hash              `json:"txHash"`
	SuggestedSignedHash common.Hash              `json:"suggestedSignedHash"`
	Transaction         smartaccount.Transaction `json:"transaction"`
}

// ExternalExecutionRequest is the body of a self-submitted native transaction.
type ExternalExecutionRequest struct {
	Transaction smartaccount.Transaction `json:"transaction"`
}

// ValidateResponse reports the native validation magic.
type ValidateResponse struct {
	Magic   string `json:"magic"`
	Success bool   `json:"success"`
}

// SettleResponse reports a completed push settlement.
type SettleResponse struct {
	Settled   bool           `json:"settled"`
	Collector common.Address `json:"collector"`
	Amount    *big.Int       `json:"amount"`
}

// ValidateOperationRequest is the body of an external-controller validation.
type ValidateOperationRequest struct {
	UserOp       smartaccount.UserOperation `json:"userOp"`
	UserOpHash   common.Hash                `json:"userOpHash"`
	MissingFunds *big.Int                   `json:"missingFunds"`
}

// ValidateOperationResponse carries the packed and decoded validation data.
type ValidateOperationResponse struct {
	ValidationData *big.Int                    `json:"validationData"`
	Result         smartaccount.ValidationData `json:"result"`
}

// ExecuteOperationRequest is the body of an external-controller dispatch.
type ExecuteOperationRequest struct {
	Dest  common.Address `json:"dest"`
	Value *big.Int       `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// ExecuteBatchRequest is the body of a batched dispatch.
type ExecuteBatchRequest struct {
	Calls []smartaccount.Call `json:"calls"`
}

// ExecuteBatchResponse lists one outcome per dispatched call.
type ExecuteBatchResponse struct {
	Outcomes []*smartaccount.ExecutionOutcome `json:"outcomes"`
}

// SignatureRequest asks whether the owner signed Hash.
type SignatureRequest struct {
	Hash      common.Hash   `json:"hash"`
	Signature hexutil.Bytes `json:"signature"`
}

// SignatureResponse returns the ERC-1271 magic value, or zero.
type SignatureResponse struct {
	MagicValue hexutil.Bytes `json:"magicValue"`
	Valid      bool          `json:"valid"`
}

// AccountResponse describes the served account.
type AccountResponse struct {
	Address            common.Address `json:"address"`
	Owner              common.Address `json:"owner"`
	ChainID            *big.Int       `json:"chainId"`
	NativeController   common.Address `json:"nativeController"`
	ExternalController common.Address `json:"externalController"`
	FeeCollector       common.Address `json:"feeCollector"`
	Balance            *big.Int       `json:"balance"`
}
