package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
)

// Nonce returns account's current minimal nonce.
func (l *Ledger) Nonce(account common.Address) *big.Int {
	if n, ok := l.nonces[account]; ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// SetNonce overwrites account's minimal nonce.
func (l *Ledger) SetNonce(account common.Address, nonce *big.Int) {
	l.write(nonceEntry, account, new(big.Int).Set(nonce))
}

// IncrementMinNonceIfEquals implements smartaccount.NonceCoordinator. The
// write is journaled, so it unwinds with the enclosing transaction.
func (l *Ledger) IncrementMinNonceIfEquals(ctx context.Context, account common.Address, expected *big.Int) error {
	current := l.Nonce(account)
	if expected == nil || current.Cmp(expected) != 0 {
		want := "<nil>"
		if expected != nil {
			want = expected.String()
		}
		return smartaccount.NewAccountError(smartaccount.ErrCodeNonceMismatch, "incorrect nonce", smartaccount.ErrNonceMismatch).
			WithDetails("account", account.Hex()).
			WithDetails("expected", want).
			WithDetails("current", current.String())
	}
	l.write(nonceEntry, account, current.Add(current, big.NewInt(1)))
	return nil
}
