package signature

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mark3labs/smartaccount-go"
)

const (
	// DomainName is the EIP-712 domain name of native transactions.
	DomainName = "zkSync"
	// DomainVersion is the EIP-712 domain version of native transactions.
	DomainVersion = "2"
)

var transactionTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": []apitypes.Type{
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// TransactionHash computes the canonical EIP-712 hash of a native transaction.
func TransactionHash(tx *smartaccount.Transaction, chainID *big.Int) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, smartaccount.ErrInvalidOperation
	}
	if chainID == nil {
		chainID = big.NewInt(smartaccount.DefaultChainID)
	}

	factoryDeps := make([]interface{}, len(tx.FactoryDeps))
	for i, dep := range tx.FactoryDeps {
		factoryDeps[i] = dep.Bytes()
	}

	typedData := apitypes.TypedData{
		Types:       transactionTypes,
		PrimaryType: "Transaction",
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: (*math.HexOrDecimal256)(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 (*math.HexOrDecimal256)(new(big.Int).SetUint64(tx.TxType)),
			"from":                   addressWord(tx.From),
			"to":                     addressWord(tx.To),
			"gasLimit":               word(tx.GasLimit),
			"gasPerPubdataByteLimit": word(tx.GasPerPubdataByteLimit),
			"maxFeePerGas":           word(tx.MaxFeePerGas),
			"maxPriorityFeePerGas":   word(tx.MaxPriorityFeePerGas),
			"paymaster":              addressWord(tx.Paymaster),
			"nonce":                  word(tx.Nonce),
			"value":                  word(tx.Value),
			"data":                   []byte(tx.Data),
			"factoryDeps":            factoryDeps,
			"paymasterInput":         []byte(tx.PaymasterInput),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct("Transaction", typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash transaction: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || messageHash)
	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256Hash(rawData), nil
}

// EthSignedMessageHash wraps hash in the external signed-message prefix:
// keccak256("\x19Ethereum Signed Message:\n32" || hash).
func EthSignedMessageHash(hash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(hash.Bytes()))
}

func word(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return (*math.HexOrDecimal256)(new(big.Int))
	}
	return (*math.HexOrDecimal256)(v)
}

func addressWord(addr common.Address) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetBytes(addr.Bytes()))
}
