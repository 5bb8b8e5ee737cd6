// Package validation checks the structure of operations before they are handed
// to an account. It never inspects signatures; signature checks belong to the
// account itself.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/mark3labs/smartaccount-go"
)

// addressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAmount validates that an amount string is a valid non-negative
// integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	// Parse as big.Int to handle large values
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount must not be negative, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates a hex address string.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !addressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateTransaction performs structural validation of a native-flow
// transaction.
func ValidateTransaction(tx *smartaccount.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if tx.Nonce == nil {
		return fmt.Errorf("invalid transaction: nonce is required")
	}

	quantities := []struct {
		name  string
		value *big.Int
	}{
		{"nonce", tx.Nonce},
		{"gasLimit", tx.GasLimit},
		{"gasPerPubdataByteLimit", tx.GasPerPubdataByteLimit},
		{"maxFeePerGas", tx.MaxFeePerGas},
		{"maxPriorityFeePerGas", tx.MaxPriorityFeePerGas},
		{"value", tx.Value},
	}
	for _, q := range quantities {
		if q.value != nil && q.value.Sign() < 0 {
			return fmt.Errorf("invalid transaction: %s must not be negative", q.name)
		}
	}

	if err := validateValue(tx.Value); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	if len(tx.Signature) == 0 {
		return fmt.Errorf("invalid transaction: signature is required")
	}

	return nil
}

// ValidateUserOperation performs structural validation of an
// external-controller operation.
func ValidateUserOperation(op *smartaccount.UserOperation) error {
	if op == nil {
		return fmt.Errorf("user operation cannot be nil")
	}
	if op.Nonce == nil || op.Nonce.Sign() < 0 {
		return fmt.Errorf("invalid user operation: nonce must be a non-negative integer")
	}
	if op.PreVerificationGas != nil && op.PreVerificationGas.Sign() < 0 {
		return fmt.Errorf("invalid user operation: preVerificationGas must not be negative")
	}
	if len(op.Signature) == 0 {
		return fmt.Errorf("invalid user operation: signature is required")
	}
	return nil
}

// ValidateCalls validates every entry of a batch.
func ValidateCalls(calls []smartaccount.Call) error {
	if len(calls) == 0 {
		return fmt.Errorf("batch cannot be empty")
	}
	for i, call := range calls {
		if call.Value != nil && call.Value.Sign() < 0 {
			return fmt.Errorf("invalid call %d: value must not be negative", i)
		}
		if err := validateValue(call.Value); err != nil {
			return fmt.Errorf("invalid call %d: %w", i, err)
		}
	}
	return nil
}

func validateValue(v *big.Int) error {
	if v != nil && v.Cmp(smartaccount.MaxUint128()) > 0 {
		return fmt.Errorf("value %s overflows 128 bits", v)
	}
	return nil
}
