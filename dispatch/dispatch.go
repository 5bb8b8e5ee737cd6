// Package dispatch forwards authorized operations to their destination,
// choosing between the privileged system call form and an ordinary call.
package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
)

// RevertPolicy decides what an ordinary call failure carries.
type RevertPolicy uint8

const (
	// DiscardRevertData aborts with ErrExecutionFailed and no payload.
	DiscardRevertData RevertPolicy = iota
	// CarryRevertData attaches the downstream failure payload to the abort.
	CarryRevertData
)

// Classify tags to as privileged when it is the contract deployer system
// destination and ordinary otherwise.
func Classify(to common.Address) smartaccount.CallKind {
	if to == smartaccount.ContractDeployerAddress {
		return smartaccount.CallPrivileged
	}
	return smartaccount.CallOrdinary
}

// InvokeFunc is one of the ledger's call forms.
type InvokeFunc func(ctx context.Context, msg smartaccount.Message) smartaccount.CallResult

var payloadPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 1024)
		return &buf
	},
}

// RawInvoke performs an unchecked invocation. The payload is staged in a pooled
// scratch buffer that is returned to the pool on every exit path, so callees
// must not retain msg.Data after returning. The returned data is always a
// fresh copy, even when the callee answers with a slice of its input.
func RawInvoke(ctx context.Context, invoke InvokeFunc, msg smartaccount.Message) (result smartaccount.CallResult) {
	bufp := payloadPool.Get().(*[]byte)
	defer func() {
		clear(*bufp)
		*bufp = (*bufp)[:0]
		payloadPool.Put(bufp)
	}()

	*bufp = append((*bufp)[:0], msg.Data...)
	msg.Data = *bufp
	result = invoke(ctx, msg)
	result.ReturnData = bytes.Clone(result.ReturnData)
	return result
}

// Dispatcher executes calls on behalf of an account.
type Dispatcher struct {
	ledger smartaccount.Ledger
	logger *slog.Logger
}

// New creates a Dispatcher. A nil logger falls back to slog.Default().
func New(ledger smartaccount.Ledger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ledger: ledger, logger: logger}
}

// Dispatch calls to with value and payload from the account in state.
//
// Privileged destinations receive the full remaining gas through the system
// call form and a failure is re-raised verbatim as *smartaccount.RevertError.
// Ordinary destinations fail with ErrExecutionFailed, carrying the revert
// payload only under CarryRevertData.
func (d *Dispatcher) Dispatch(ctx context.Context, state *smartaccount.AccountState, to common.Address, value *big.Int, payload []byte, policy RevertPolicy) (*smartaccount.ExecutionOutcome, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, smartaccount.NewAccountError(smartaccount.ErrCodeInvalidOperation, "negative call value", smartaccount.ErrInvalidOperation)
	}
	if value.Cmp(smartaccount.MaxUint128()) > 0 {
		return nil, smartaccount.NewAccountError(smartaccount.ErrCodeValueOverflow, "call value does not fit in 128 bits", smartaccount.ErrValueOverflow).
			WithDetails("value", value.String())
	}

	kind := Classify(to)
	msg := smartaccount.Message{
		From:  state.Address,
		To:    to,
		Value: new(big.Int).Set(value),
		Data:  payload,
		Gas:   d.ledger.GasLeft(ctx),
	}

	invoke := d.ledger.Call
	if kind == smartaccount.CallPrivileged {
		invoke = d.ledger.SystemCall
	}
	result := RawInvoke(ctx, invoke, msg)

	outcome := &smartaccount.ExecutionOutcome{
		Success:    result.Success,
		ReturnData: result.ReturnData,
		Kind:       kind,
		Stage:      smartaccount.StageCompleted,
	}
	if result.Success {
		d.logger.Debug("call dispatched", "account", state.Address.Hex(), "to", to.Hex(), "kind", kind.String(), "value", value.String())
		return outcome, nil
	}

	outcome.Stage = smartaccount.StageReverted
	d.logger.Info("call reverted", "account", state.Address.Hex(), "to", to.Hex(), "kind", kind.String())

	if kind == smartaccount.CallPrivileged {
		return outcome, &smartaccount.RevertError{Data: result.ReturnData}
	}

	accErr := smartaccount.NewAccountError(smartaccount.ErrCodeExecutionFailed, "call to "+to.Hex()+" reverted", smartaccount.ErrExecutionFailed)
	if policy == CarryRevertData {
		accErr.WithReturnData(result.ReturnData)
	} else {
		outcome.ReturnData = nil
	}
	return outcome, accErr
}
