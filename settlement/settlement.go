// Package settlement moves processing fees from the account to the party that
// orchestrated it.
//
// The native flow uses the push model: the account must pay the fee collector
// and any failure aborts. The external-controller flow uses the pull model: the
// account sends what the caller reports as owed and does not inspect the
// outcome.
package settlement

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
)

// Settler performs fee settlement against a ledger.
type Settler struct {
	ledger smartaccount.Ledger
	logger *slog.Logger
}

// New creates a Settler. A nil logger falls back to slog.Default().
func New(ledger smartaccount.Ledger, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{ledger: ledger, logger: logger}
}

// Push transfers amount from the account to collector.
// The balance must cover amount before the transfer is attempted.
func (s *Settler) Push(ctx context.Context, state *smartaccount.AccountState, collector common.Address, amount *big.Int) error {
	if amount == nil {
		amount = new(big.Int)
	}
	if err := RequireBalance(s.ledger, state, amount); err != nil {
		return err
	}

	result := s.ledger.Call(ctx, smartaccount.Message{
		From:  state.Address,
		To:    collector,
		Value: new(big.Int).Set(amount),
		Gas:   s.ledger.GasLeft(ctx),
	})
	if !result.Success {
		return smartaccount.NewAccountError(smartaccount.ErrCodeFailedToSettleFee, "failed to pay the fee to the collector", smartaccount.ErrFailedToSettleFee).
			WithDetails("collector", collector.Hex()).
			WithDetails("amount", amount.String())
	}

	s.logger.Debug("fee settled", "account", state.Address.Hex(), "collector", collector.Hex(), "amount", amount.String())
	return nil
}

// Pull sends amount back to orchestrator on a best-effort basis. A zero amount
// sends nothing. The transfer outcome is only logged.
func (s *Settler) Pull(ctx context.Context, state *smartaccount.AccountState, orchestrator common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	result := s.ledger.Call(ctx, smartaccount.Message{
		From:  state.Address,
		To:    orchestrator,
		Value: new(big.Int).Set(amount),
		Gas:   s.ledger.GasLeft(ctx),
	})
	if !result.Success {
		s.logger.Warn("prefund transfer to orchestrator failed", "account", state.Address.Hex(), "orchestrator", orchestrator.Hex(), "amount", amount.String())
		return
	}
	s.logger.Debug("prefund transferred", "account", state.Address.Hex(), "orchestrator", orchestrator.Hex(), "amount", amount.String())
}

// RequireBalance fails with ErrInsufficientBalance when the account holds less
// than required.
func RequireBalance(ledger smartaccount.Ledger, state *smartaccount.AccountState, required *big.Int) error {
	balance := ledger.BalanceOf(state.Address)
	if balance == nil {
		balance = new(big.Int)
	}
	if required != nil && balance.Cmp(required) < 0 {
		return smartaccount.NewAccountError(smartaccount.ErrCodeInsufficientBalance, "not enough balance", smartaccount.ErrInsufficientBalance).
			WithDetails("balance", balance.String()).
			WithDetails("required", required.String())
	}
	return nil
}
