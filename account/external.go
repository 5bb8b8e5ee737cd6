package account

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/dispatch"
	"github.com/mark3labs/smartaccount-go/signature"
)

// ValidateOperation is the external-controller validation entry point. The
// owner must have signed the prefixed form of opHash. Whatever the signature
// outcome, missingFunds is then sent back to the caller on a best-effort basis.
func (a *Account) ValidateOperation(ctx context.Context, caller common.Address, op *smartaccount.UserOperation, opHash common.Hash, missingFunds *big.Int) (smartaccount.ValidationData, error) {
	if err := a.external.RequireController(caller); err != nil {
		return smartaccount.SigValidationFailed, err
	}
	if op == nil {
		return smartaccount.SigValidationFailed, invalidOperation("user operation is nil")
	}

	lc := a.track("validateOperation", smartaccount.StageCreated)
	lc.advance(smartaccount.StageValidating)

	ok, err := signature.ValidateExternal(opHash, op.Signature, a.state.Owner)
	if err != nil {
		return smartaccount.SigValidationFailed, err
	}

	result := smartaccount.ValidationSucceeded
	if ok {
		lc.advance(smartaccount.StageValid)
	} else {
		result = smartaccount.SigValidationFailed
		lc.advance(smartaccount.StageInvalid)
		a.logger.Info("user operation signature does not match owner", "account", a.state.Address.Hex(), "opHash", opHash.Hex())
	}

	a.settler.Pull(ctx, a.state, caller, missingFunds)
	return result, nil
}

// ExecuteOperation is the external-controller dispatch entry point, also open
// to the owner. Downstream failure payloads are carried in the abort.
func (a *Account) ExecuteOperation(ctx context.Context, caller common.Address, dest common.Address, value *big.Int, payload []byte) (*smartaccount.ExecutionOutcome, error) {
	if err := a.external.RequireControllerOrOwner(caller, a.state); err != nil {
		return nil, err
	}

	lc := a.track("executeOperation", smartaccount.StageValid)
	return a.execute(ctx, lc, dest, value, payload, dispatch.CarryRevertData)
}

// ExecuteBatch dispatches calls in order under ExecuteOperation semantics. The
// first failure aborts the batch; outcomes of the calls made so far are
// returned alongside the error.
func (a *Account) ExecuteBatch(ctx context.Context, caller common.Address, calls []smartaccount.Call) ([]*smartaccount.ExecutionOutcome, error) {
	if err := a.external.RequireControllerOrOwner(caller, a.state); err != nil {
		return nil, err
	}

	outcomes := make([]*smartaccount.ExecutionOutcome, 0, len(calls))
	for i, call := range calls {
		lc := a.track("executeBatch", smartaccount.StageValid)
		outcome, err := a.execute(ctx, lc, call.To, call.Value, call.Data, dispatch.CarryRevertData)
		if outcome != nil {
			outcomes = append(outcomes, outcome)
		}
		if err != nil {
			if accErr, ok := err.(*smartaccount.AccountError); ok {
				accErr.WithDetails("index", i)
			}
			return outcomes, err
		}
	}
	return outcomes, nil
}

// IsValidSignature reports owner signatures over an arbitrary hash, returning
// ERC1271MagicValue on a match and zero otherwise.
func (a *Account) IsValidSignature(hash common.Hash, sig []byte) ([4]byte, error) {
	ok, err := signature.Validate(hash, sig, a.state.Owner)
	if err != nil {
		return [4]byte{}, err
	}
	if !ok {
		return [4]byte{}, nil
	}
	return smartaccount.ERC1271MagicValue, nil
}
