package smartaccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccountState is the mutable record of one smart account. It is owned by the
// enclosing execution context and handed to every component by reference.
type AccountState struct {
	// Address is the account's own ledger identity.
	Address common.Address `json:"address"`

	// Owner is the single identity whose signatures authorize operations.
	Owner common.Address `json:"owner"`
}

// Transaction is an operation submitted through the native flow.
type Transaction struct {
	// TxType is the platform transaction type.
	TxType uint64 `json:"txType"`

	// From is the account the transaction is sent from.
	From common.Address `json:"from"`

	// To is the call destination.
	To common.Address `json:"to"`

	// GasLimit is the gas budget declared by the submitter.
	GasLimit *big.Int `json:"gasLimit"`

	// GasPerPubdataByteLimit is the pubdata price cap.
	GasPerPubdataByteLimit *big.Int `json:"gasPerPubdataByteLimit"`

	// MaxFeePerGas is the fee cap per unit of gas.
	MaxFeePerGas *big.Int `json:"maxFeePerGas"`

	// MaxPriorityFeePerGas is the tip cap per unit of gas.
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`

	// Paymaster is the optional fee sponsor (zero when the account pays).
	Paymaster common.Address `json:"paymaster"`

	// Nonce is the sequence number consumed by validation.
	Nonce *big.Int `json:"nonce"`

	// Value is the amount forwarded to To.
	Value *big.Int `json:"value"`

	// Data is the opaque call payload.
	Data hexutil.Bytes `json:"data"`

	// Signature is the owner's 65-byte r||s||v signature.
	Signature hexutil.Bytes `json:"signature"`

	// FactoryDeps lists bytecode hashes the transaction depends on.
	FactoryDeps []common.Hash `json:"factoryDeps"`

	// PaymasterInput is forwarded to the fee sponsor hook.
	PaymasterInput hexutil.Bytes `json:"paymasterInput"`
}

// Fee returns GasLimit * MaxFeePerGas, the amount owed to the fee collector.
func (tx *Transaction) Fee() *big.Int {
	return new(big.Int).Mul(safeBig(tx.GasLimit), safeBig(tx.MaxFeePerGas))
}

// RequiredBalance returns the fee plus the forwarded value.
func (tx *Transaction) RequiredBalance() *big.Int {
	return new(big.Int).Add(tx.Fee(), safeBig(tx.Value))
}

// ValidationMagic is the four-byte code returned by native validation.
type ValidationMagic [4]byte

var (
	// ValidationSuccessMagic signals successful native validation.
	ValidationSuccessMagic = ValidationMagic{0x20, 0x2b, 0xcc, 0xe7}

	// ERC1271MagicValue is returned by IsValidSignature on an owner match.
	ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
)

// IsSuccess reports whether m is the success sentinel.
func (m ValidationMagic) IsSuccess() bool {
	return m == ValidationSuccessMagic
}

func (m ValidationMagic) String() string {
	return hexutil.Encode(m[:])
}

// Call is one entry of a batched external-controller dispatch.
type Call struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// CallKind tags how a destination must be invoked.
type CallKind uint8

const (
	// CallOrdinary is a generic low-level call carrying value and payload.
	CallOrdinary CallKind = iota
	// CallPrivileged is the elevated system call form.
	CallPrivileged
)

func (k CallKind) String() string {
	switch k {
	case CallPrivileged:
		return "privileged"
	default:
		return "ordinary"
	}
}

// ExecutionOutcome is the result of a dispatched operation.
type ExecutionOutcome struct {
	Success    bool          `json:"success"`
	ReturnData hexutil.Bytes `json:"returnData"`
	Kind       CallKind      `json:"kind"`
	Stage      Stage         `json:"stage"`
}

// Message is a call request handed to the ledger.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// CallResult is the typed result of a raw invocation.
type CallResult struct {
	Success    bool
	ReturnData []byte
}

func safeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
