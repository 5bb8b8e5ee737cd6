package smartaccount

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an operation submitted through the external-controller flow.
type UserOperation struct {
	Sender   common.Address `json:"sender"`
	Nonce    *big.Int       `json:"nonce"`
	InitCode hexutil.Bytes  `json:"initCode"`
	CallData hexutil.Bytes  `json:"callData"`

	// AccountGasLimits packs verificationGasLimit (high 128 bits) and
	// callGasLimit (low 128 bits).
	AccountGasLimits common.Hash `json:"accountGasLimits"`

	PreVerificationGas *big.Int `json:"preVerificationGas"`

	// GasFees packs maxPriorityFeePerGas (high 128 bits) and maxFeePerGas
	// (low 128 bits).
	GasFees common.Hash `json:"gasFees"`

	PaymasterAndData hexutil.Bytes `json:"paymasterAndData"`
	Signature        hexutil.Bytes `json:"signature"`
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxUint128 returns 2^128-1.
func MaxUint128() *big.Int {
	return new(big.Int).Set(maxUint128)
}

// PackGasPair packs two 128-bit quantities into one 32-byte word.
func PackGasPair(high, low *big.Int) (common.Hash, error) {
	high, low = safeBig(high), safeBig(low)
	if high.Sign() < 0 || low.Sign() < 0 || high.Cmp(maxUint128) > 0 || low.Cmp(maxUint128) > 0 {
		return common.Hash{}, fmt.Errorf("%w: gas pair component out of range", ErrValueOverflow)
	}
	word := new(big.Int).Lsh(high, 128)
	word.Or(word, low)
	return common.BigToHash(word), nil
}

// UnpackGasPair splits a packed word into its high and low 128-bit halves.
func UnpackGasPair(word common.Hash) (high, low *big.Int) {
	high = new(big.Int).SetBytes(word[:16])
	low = new(big.Int).SetBytes(word[16:])
	return high, low
}

// VerificationGasLimit decodes the high half of AccountGasLimits.
func (op *UserOperation) VerificationGasLimit() *big.Int {
	high, _ := UnpackGasPair(op.AccountGasLimits)
	return high
}

// CallGasLimit decodes the low half of AccountGasLimits.
func (op *UserOperation) CallGasLimit() *big.Int {
	_, low := UnpackGasPair(op.AccountGasLimits)
	return low
}

// MaxPriorityFeePerGas decodes the high half of GasFees.
func (op *UserOperation) MaxPriorityFeePerGas() *big.Int {
	high, _ := UnpackGasPair(op.GasFees)
	return high
}

// MaxFeePerGas decodes the low half of GasFees.
func (op *UserOperation) MaxFeePerGas() *big.Int {
	_, low := UnpackGasPair(op.GasFees)
	return low
}

// MaxCost returns the most the operation can be charged:
// (verificationGas + callGas + preVerificationGas) * maxFeePerGas.
func (op *UserOperation) MaxCost() *big.Int {
	gas := new(big.Int).Add(op.VerificationGasLimit(), op.CallGasLimit())
	gas.Add(gas, safeBig(op.PreVerificationGas))
	return gas.Mul(gas, op.MaxFeePerGas())
}

var (
	userOpPackArgs = abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes32")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes32")},
	}
	userOpHashArgs = abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Hash computes the operation hash the external controller hands to the
// account: keccak256(abi.encode(keccak256(pack(op)), entryPoint, chainID)).
// The signature field is excluded.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := userOpPackArgs.Pack(
		op.Sender,
		safeBig(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		[32]byte(op.AccountGasLimits),
		safeBig(op.PreVerificationGas),
		[32]byte(op.GasFees),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	outer, err := userOpHashArgs.Pack(
		crypto.Keccak256Hash(packed),
		entryPoint,
		safeBig(chainID),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// ValidationData is the external-controller validation result. A packed value
// of zero means success.
type ValidationData struct {
	// SigFailed marks a signature mismatch.
	SigFailed bool `json:"sigFailed"`

	// ValidUntil is the expiry timestamp (0 = forever).
	ValidUntil uint64 `json:"validUntil"`

	// ValidAfter is the activation timestamp (0 = immediately).
	ValidAfter uint64 `json:"validAfter"`
}

var (
	// ValidationSucceeded packs to zero.
	ValidationSucceeded = ValidationData{}

	// SigValidationFailed packs to one.
	SigValidationFailed = ValidationData{SigFailed: true}
)

// Pack encodes v as validAfter<<208 | validUntil<<160 | sigFailed.
func (v ValidationData) Pack() *big.Int {
	out := new(big.Int).Lsh(new(big.Int).SetUint64(v.ValidAfter&0xffffffffffff), 208)
	out.Or(out, new(big.Int).Lsh(new(big.Int).SetUint64(v.ValidUntil&0xffffffffffff), 160))
	if v.SigFailed {
		out.Or(out, big.NewInt(1))
	}
	return out
}

// IsSuccess reports whether v packs to the success sentinel.
func (v ValidationData) IsSuccess() bool {
	return v.Pack().Sign() == 0
}

// ParseValidationData decodes a packed value. Any non-zero aggregator field
// is reported as a signature failure.
func ParseValidationData(packed *big.Int) ValidationData {
	packed = safeBig(packed)
	mask48 := big.NewInt(0xffffffffffff)
	mask160 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

	aggregator := new(big.Int).And(packed, mask160)
	return ValidationData{
		SigFailed:  aggregator.Sign() != 0,
		ValidUntil: new(big.Int).And(new(big.Int).Rsh(packed, 160), mask48).Uint64(),
		ValidAfter: new(big.Int).And(new(big.Int).Rsh(packed, 208), mask48).Uint64(),
	}
}
