package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/dispatch"
	"github.com/mark3labs/smartaccount-go/settlement"
	"github.com/mark3labs/smartaccount-go/signature"
)

// Validate is the native-flow validation entry point. It consumes tx.Nonce
// unconditionally, then requires the balance to cover tx.RequiredBalance(),
// then checks the owner's signature over the canonical transaction hash.
// txHash and suggestedSignedHash are supplied by the controller and are not
// trusted: the hash is always recomputed from tx.
//
// A signature mismatch is not an error: the returned magic is simply not
// ValidationSuccessMagic.
func (a *Account) Validate(ctx context.Context, caller common.Address, txHash, suggestedSignedHash common.Hash, tx *smartaccount.Transaction) (smartaccount.ValidationMagic, error) {
	if err := a.native.RequireController(caller); err != nil {
		return smartaccount.ValidationMagic{}, err
	}
	lc := a.track("validate", smartaccount.StageCreated)
	return a.validateTransaction(ctx, lc, tx)
}

// SettleFee is the native-flow push settlement entry point: it pays
// tx.Fee() to the fee collector or aborts.
func (a *Account) SettleFee(ctx context.Context, caller common.Address, txHash, suggestedSignedHash common.Hash, tx *smartaccount.Transaction) error {
	if err := a.native.RequireController(caller); err != nil {
		return err
	}
	if tx == nil {
		return invalidOperation("transaction is nil")
	}

	lc := a.track("settleFee", smartaccount.StageValid)
	if err := a.settler.Push(ctx, a.state, a.feeCollector, tx.Fee()); err != nil {
		return err
	}
	lc.advance(smartaccount.StageFeeSettled)
	return nil
}

// PrepareForFeeSponsor is reserved for sponsor-funded settlement and does
// nothing beyond the caller check.
func (a *Account) PrepareForFeeSponsor(ctx context.Context, caller common.Address, txHash, suggestedSignedHash common.Hash, tx *smartaccount.Transaction) error {
	if err := a.native.RequireController(caller); err != nil {
		return err
	}
	if tx != nil && tx.Paymaster != (common.Address{}) {
		a.logger.Debug("fee sponsor requested", "account", a.state.Address.Hex(), "paymaster", tx.Paymaster.Hex())
	}
	return nil
}

// Execute is the native-flow dispatch entry point, open to the controller and
// the owner. Downstream failure payloads are discarded.
func (a *Account) Execute(ctx context.Context, caller common.Address, txHash, suggestedSignedHash common.Hash, tx *smartaccount.Transaction) (*smartaccount.ExecutionOutcome, error) {
	if err := a.native.RequireControllerOrOwner(caller, a.state); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, invalidOperation("transaction is nil")
	}

	lc := a.track("execute", smartaccount.StageValid)
	return a.execute(ctx, lc, tx.To, tx.Value, tx.Data, dispatch.DiscardRevertData)
}

// ValidateAndExecuteExternally lets anyone submit a transaction signed by the
// owner without a native controller. Validation runs against the canonical
// hash; since no orchestrator is left to read a soft failure, a mismatch
// aborts with ErrInvalidSignature and nothing is dispatched.
func (a *Account) ValidateAndExecuteExternally(ctx context.Context, tx *smartaccount.Transaction) (*smartaccount.ExecutionOutcome, error) {
	lc := a.track("validateAndExecuteExternally", smartaccount.StageCreated)

	magic, err := a.validateTransaction(ctx, lc, tx)
	if err != nil {
		return nil, err
	}
	if !magic.IsSuccess() {
		return nil, smartaccount.NewAccountError(smartaccount.ErrCodeInvalidSignature, "transaction is not signed by the owner", smartaccount.ErrInvalidSignature).
			WithDetails("owner", a.state.Owner.Hex())
	}

	return a.execute(ctx, lc, tx.To, tx.Value, tx.Data, dispatch.CarryRevertData)
}

func (a *Account) validateTransaction(ctx context.Context, lc *lifecycle, tx *smartaccount.Transaction) (smartaccount.ValidationMagic, error) {
	if tx == nil {
		return smartaccount.ValidationMagic{}, invalidOperation("transaction is nil")
	}
	lc.advance(smartaccount.StageValidating)

	if err := a.nonces.IncrementMinNonceIfEquals(ctx, a.state.Address, tx.Nonce); err != nil {
		return smartaccount.ValidationMagic{}, fmt.Errorf("nonce: %w", err)
	}

	if err := settlement.RequireBalance(a.ledger, a.state, tx.RequiredBalance()); err != nil {
		return smartaccount.ValidationMagic{}, err
	}

	signedHash, err := signature.TransactionHash(tx, a.chainID)
	if err != nil {
		return smartaccount.ValidationMagic{}, err
	}

	ok, err := signature.ValidateNative(signedHash, tx.Signature, a.state.Owner)
	if err != nil {
		return smartaccount.ValidationMagic{}, err
	}
	if !ok {
		lc.advance(smartaccount.StageInvalid)
		a.logger.Info("signature does not match owner", "account", a.state.Address.Hex(), "nonce", tx.Nonce.String())
		return smartaccount.ValidationMagic{}, nil
	}

	lc.advance(smartaccount.StageValid)
	return smartaccount.ValidationSuccessMagic, nil
}

func (a *Account) execute(ctx context.Context, lc *lifecycle, to common.Address, value *big.Int, payload []byte, policy dispatch.RevertPolicy) (*smartaccount.ExecutionOutcome, error) {
	lc.advance(smartaccount.StageExecuting)

	outcome, err := a.dispatcher.Dispatch(ctx, a.state, to, value, payload, policy)
	if outcome != nil {
		lc.advance(outcome.Stage)
	}
	return outcome, err
}

func invalidOperation(reason string) error {
	return smartaccount.NewAccountError(smartaccount.ErrCodeInvalidOperation, reason, smartaccount.ErrInvalidOperation)
}
