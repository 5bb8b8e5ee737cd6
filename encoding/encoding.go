// Package encoding provides utilities for encoding and decoding smart account
// operations for transport. Operations travel as base64-encoded JSON, which
// lets a relay carry them in a single HTTP header or query value.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/smartaccount-go"
)

// EncodeTransaction converts a native-flow Transaction to base64-encoded JSON.
//
// Returns an error if JSON marshaling fails.
func EncodeTransaction(tx smartaccount.Transaction) (string, error) {
	return encode("transaction", tx)
}

// DecodeTransaction converts base64-encoded JSON to a Transaction.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeTransaction(encoded string) (smartaccount.Transaction, error) {
	var tx smartaccount.Transaction
	err := decode("transaction", encoded, &tx)
	return tx, err
}

// EncodeUserOperation converts a UserOperation to base64-encoded JSON.
//
// Returns an error if JSON marshaling fails.
func EncodeUserOperation(op smartaccount.UserOperation) (string, error) {
	return encode("user operation", op)
}

// DecodeUserOperation converts base64-encoded JSON to a UserOperation.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeUserOperation(encoded string) (smartaccount.UserOperation, error) {
	var op smartaccount.UserOperation
	err := decode("user operation", encoded, &op)
	return op, err
}

// EncodeOutcome converts an ExecutionOutcome to base64-encoded JSON.
// This is used for the X-Execution-Result response header.
func EncodeOutcome(outcome smartaccount.ExecutionOutcome) (string, error) {
	return encode("outcome", outcome)
}

// DecodeOutcome converts base64-encoded JSON to an ExecutionOutcome.
func DecodeOutcome(encoded string) (smartaccount.ExecutionOutcome, error) {
	var outcome smartaccount.ExecutionOutcome
	err := decode("outcome", encoded, &outcome)
	return outcome, err
}

func encode(what string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decode(what, encoded string, v any) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(decoded, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}
