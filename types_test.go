package smartaccount

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTransaction_Fee(t *testing.T) {
	tests := []struct {
		name         string
		tx           Transaction
		wantFee      int64
		wantRequired int64
	}{
		{
			name:         "fee and value",
			tx:           Transaction{GasLimit: big.NewInt(2), MaxFeePerGas: big.NewInt(3), Value: big.NewInt(2)},
			wantFee:      6,
			wantRequired: 8,
		},
		{
			name:         "no value",
			tx:           Transaction{GasLimit: big.NewInt(21000), MaxFeePerGas: big.NewInt(10)},
			wantFee:      210000,
			wantRequired: 210000,
		},
		{
			name:         "all quantities unset",
			tx:           Transaction{},
			wantFee:      0,
			wantRequired: 0,
		},
		{
			name:         "value only",
			tx:           Transaction{Value: big.NewInt(7)},
			wantFee:      0,
			wantRequired: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.Fee(); got.Int64() != tt.wantFee {
				t.Errorf("expected fee %d, got %s", tt.wantFee, got)
			}
			if got := tt.tx.RequiredBalance(); got.Int64() != tt.wantRequired {
				t.Errorf("expected required balance %d, got %s", tt.wantRequired, got)
			}
		})
	}
}

func TestTransaction_FeeDoesNotAlias(t *testing.T) {
	tx := Transaction{GasLimit: big.NewInt(2), MaxFeePerGas: big.NewInt(3)}
	fee := tx.Fee()
	fee.SetInt64(100)
	if tx.GasLimit.Int64() != 2 || tx.MaxFeePerGas.Int64() != 3 {
		t.Error("expected Fee to return a fresh value")
	}
}

func TestValidationMagic(t *testing.T) {
	if !ValidationSuccessMagic.IsSuccess() {
		t.Error("expected success magic to report success")
	}
	if ValidationSuccessMagic.String() != "0x202bcce7" {
		t.Errorf("expected 0x202bcce7, got %s", ValidationSuccessMagic)
	}
	var zero ValidationMagic
	if zero.IsSuccess() {
		t.Error("expected zero magic to report failure")
	}
	if zero.String() != "0x00000000" {
		t.Errorf("expected 0x00000000, got %s", zero)
	}
}

func TestCallKind_String(t *testing.T) {
	tests := []struct {
		kind CallKind
		want string
	}{
		{CallOrdinary, "ordinary"},
		{CallPrivileged, "privileged"},
		{CallKind(9), "ordinary"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestTransaction_JSON(t *testing.T) {
	raw := `{
		"txType": 113,
		"from": "0x1111111111111111111111111111111111111111",
		"to": "0x2222222222222222222222222222222222222222",
		"gasLimit": 2,
		"maxFeePerGas": 3,
		"nonce": 5,
		"value": 2,
		"data": "0xdead",
		"signature": "0x01"
	}`

	var tx Transaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if tx.To != common.HexToAddress("0x2222222222222222222222222222222222222222") {
		t.Errorf("unexpected destination %s", tx.To)
	}
	if tx.Fee().Int64() != 6 {
		t.Errorf("expected fee 6, got %s", tx.Fee())
	}
	if tx.Data.String() != "0xdead" {
		t.Errorf("expected data 0xdead, got %s", tx.Data)
	}
}
