package smartaccount

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the enclosing execution context the account runs inside. Every
// call is synchronous; a hard abort returned by the account is expected to
// unwind all changes made during the enclosing transaction.
type Ledger interface {
	// BalanceOf returns the current balance of addr.
	BalanceOf(addr common.Address) *big.Int

	// Call performs an ordinary low-level call carrying value and payload.
	Call(ctx context.Context, msg Message) CallResult

	// SystemCall performs the elevated call form reserved for privileged
	// destinations.
	SystemCall(ctx context.Context, msg Message) CallResult

	// GasLeft returns the remaining resource budget of the transaction.
	GasLeft(ctx context.Context) uint64
}

// NonceCoordinator advances an account's minimal nonce. It fails with
// ErrNonceMismatch when expected is not the current value.
type NonceCoordinator interface {
	IncrementMinNonceIfEquals(ctx context.Context, account common.Address, expected *big.Int) error
}
