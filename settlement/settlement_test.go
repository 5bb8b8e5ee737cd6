package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/ledger"
)

var (
	accountAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	collector    = common.HexToAddress("0x0000000000000000000000000000000000008001")
	orchestrator = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
)

func refuseValue(ctx context.Context, l *ledger.Ledger, msg smartaccount.Message) ([]byte, error) {
	return nil, errors.New("refusing value")
}

func TestPush(t *testing.T) {
	l := ledger.New()
	l.SetBalance(accountAddr, big.NewInt(10))
	state := &smartaccount.AccountState{Address: accountAddr}

	if err := New(l, nil).Push(context.Background(), state, collector, big.NewInt(6)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := l.BalanceOf(accountAddr); got.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("expected account balance 4, got %s", got)
	}
	if got := l.BalanceOf(collector); got.Cmp(big.NewInt(6)) != 0 {
		t.Errorf("expected collector balance 6, got %s", got)
	}
}

func TestPush_InsufficientBalance(t *testing.T) {
	l := ledger.New()
	l.SetBalance(accountAddr, big.NewInt(5))
	state := &smartaccount.AccountState{Address: accountAddr}

	err := New(l, nil).Push(context.Background(), state, collector, big.NewInt(6))
	if !errors.Is(err, smartaccount.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.BalanceOf(collector); got.Sign() != 0 {
		t.Errorf("expected no transfer, collector has %s", got)
	}
}

func TestPush_TransferFailureAborts(t *testing.T) {
	l := ledger.New()
	l.SetBalance(accountAddr, big.NewInt(10))
	l.Deploy(collector, refuseValue)
	state := &smartaccount.AccountState{Address: accountAddr}

	err := New(l, nil).Push(context.Background(), state, collector, big.NewInt(6))
	if !errors.Is(err, smartaccount.ErrFailedToSettleFee) {
		t.Errorf("expected ErrFailedToSettleFee, got %v", err)
	}
	if smartaccount.CodeOf(err) != smartaccount.ErrCodeFailedToSettleFee {
		t.Errorf("expected code %s, got %s", smartaccount.ErrCodeFailedToSettleFee, smartaccount.CodeOf(err))
	}
}

func TestPull(t *testing.T) {
	tests := []struct {
		name          string
		amount        *big.Int
		refuse        bool
		wantAccount   int64
		wantRecipient int64
	}{
		{name: "transfers owed amount", amount: big.NewInt(3), wantAccount: 7, wantRecipient: 3},
		{name: "zero amount sends nothing", amount: big.NewInt(0), wantAccount: 10},
		{name: "nil amount sends nothing", amount: nil, wantAccount: 10},
		{name: "failure is not surfaced", amount: big.NewInt(3), refuse: true, wantAccount: 10},
		{name: "shortfall is not surfaced", amount: big.NewInt(30), wantAccount: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New()
			l.SetBalance(accountAddr, big.NewInt(10))
			if tt.refuse {
				l.Deploy(orchestrator, refuseValue)
			}
			state := &smartaccount.AccountState{Address: accountAddr}

			New(l, nil).Pull(context.Background(), state, orchestrator, tt.amount)

			if got := l.BalanceOf(accountAddr); got.Cmp(big.NewInt(tt.wantAccount)) != 0 {
				t.Errorf("expected account balance %d, got %s", tt.wantAccount, got)
			}
			if got := l.BalanceOf(orchestrator); got.Cmp(big.NewInt(tt.wantRecipient)) != 0 {
				t.Errorf("expected orchestrator balance %d, got %s", tt.wantRecipient, got)
			}
		})
	}
}

func TestRequireBalance(t *testing.T) {
	l := ledger.New()
	l.SetBalance(accountAddr, big.NewInt(8))
	state := &smartaccount.AccountState{Address: accountAddr}

	if err := RequireBalance(l, state, big.NewInt(8)); err != nil {
		t.Errorf("expected exact balance to pass, got %v", err)
	}
	if err := RequireBalance(l, state, big.NewInt(9)); !errors.Is(err, smartaccount.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}
