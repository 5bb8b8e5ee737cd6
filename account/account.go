// Package account implements a smart account: a programmable substitute for a
// key-controlled account that authorizes operations signed by one owner and
// executes them on behalf of external controllers.
//
// Two controllers drive the same validate-then-execute pipeline:
//
//	native flow     Validate -> SettleFee -> PrepareForFeeSponsor -> Execute
//	external flow   ValidateOperation (signature + prefund) -> ExecuteOperation
//
// Every processed operation passes the access guard, the signature check, fee
// settlement and dispatch in that order. Hard aborts are returned as errors
// and are expected to unwind the enclosing ledger transaction; soft
// validation failures are returned as values.
package account

import (
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/dispatch"
	"github.com/mark3labs/smartaccount-go/guard"
	"github.com/mark3labs/smartaccount-go/settlement"
)

// Account is one smart account bound to a ledger and a nonce coordinator.
type Account struct {
	state  *smartaccount.AccountState
	ledger smartaccount.Ledger
	nonces smartaccount.NonceCoordinator

	native   guard.Guard
	external guard.Guard

	feeCollector common.Address
	chainID      *big.Int

	settler    *settlement.Settler
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	nativeController   common.Address
	externalController common.Address
}

// Option configures an Account.
type Option func(*Account) error

// New creates an Account for state. The state record is kept by reference;
// the owner is read from it at every validation.
func New(state *smartaccount.AccountState, ledger smartaccount.Ledger, nonces smartaccount.NonceCoordinator, opts ...Option) (*Account, error) {
	if state == nil {
		return nil, errors.New("account state is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if nonces == nil {
		return nil, errors.New("nonce coordinator is required")
	}

	a := &Account{
		state:              state,
		ledger:             ledger,
		nonces:             nonces,
		nativeController:   smartaccount.BootloaderAddress,
		externalController: smartaccount.EntryPointAddress,
		feeCollector:       smartaccount.BootloaderAddress,
		chainID:            big.NewInt(smartaccount.DefaultChainID),
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	a.native = guard.New(a.nativeController)
	a.external = guard.New(a.externalController)
	a.settler = settlement.New(ledger, a.logger)
	a.dispatcher = dispatch.New(ledger, a.logger)

	return a, nil
}

// WithChainID sets the chain id covered by native transaction hashes.
func WithChainID(chainID *big.Int) Option {
	return func(a *Account) error {
		if chainID == nil || chainID.Sign() <= 0 {
			return errors.New("chain id must be positive")
		}
		a.chainID = new(big.Int).Set(chainID)
		return nil
	}
}

// WithNativeController sets the identity allowed to drive the native flow.
func WithNativeController(addr common.Address) Option {
	return func(a *Account) error {
		a.nativeController = addr
		return nil
	}
}

// WithExternalController sets the entry point allowed to drive the
// external-controller flow.
func WithExternalController(addr common.Address) Option {
	return func(a *Account) error {
		a.externalController = addr
		return nil
	}
}

// WithFeeCollector sets the push-model settlement destination.
func WithFeeCollector(addr common.Address) Option {
	return func(a *Account) error {
		a.feeCollector = addr
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Account) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}

// Address returns the account's ledger identity.
func (a *Account) Address() common.Address {
	return a.state.Address
}

// Owner returns the current owner.
func (a *Account) Owner() common.Address {
	return a.state.Owner
}

// ChainID returns the configured chain id.
func (a *Account) ChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// NativeController returns the native-flow controller identity.
func (a *Account) NativeController() common.Address {
	return a.native.Controller()
}

// ExternalController returns the external-controller identity.
func (a *Account) ExternalController() common.Address {
	return a.external.Controller()
}

// FeeCollector returns the push-model settlement destination.
func (a *Account) FeeCollector() common.Address {
	return a.feeCollector
}
