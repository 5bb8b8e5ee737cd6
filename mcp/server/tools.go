package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/encoding"
	"github.com/mark3labs/smartaccount-go/validation"
)

// Tool names.
const (
	ToolAccountInfo        = "account_info"
	ToolIsValidSignature   = "is_valid_signature"
	ToolUserOperationHash  = "user_operation_hash"
	ToolExecuteFromOutside = "execute_from_outside"
)

// AccountInfo is the account_info result.
type AccountInfo struct {
	Address            common.Address `json:"address"`
	Owner              common.Address `json:"owner"`
	ChainID            *big.Int       `json:"chainId"`
	NativeController   common.Address `json:"nativeController"`
	ExternalController common.Address `json:"externalController"`
	FeeCollector       common.Address `json:"feeCollector"`
	Balance            *big.Int       `json:"balance"`
}

// SignatureCheck is the is_valid_signature result.
type SignatureCheck struct {
	MagicValue hexutil.Bytes `json:"magicValue"`
	Valid      bool          `json:"valid"`
}

// OperationHash is the user_operation_hash result.
type OperationHash struct {
	Hash       common.Hash    `json:"hash"`
	EntryPoint common.Address `json:"entryPoint"`
	ChainID    *big.Int       `json:"chainId"`
}

func (s *Server) accountInfo(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	var balance *big.Int
	_ = s.backend.Atomic(func() error {
		balance = s.backend.BalanceOf(s.account.Address())
		return nil
	})

	return jsonResult(AccountInfo{
		Address:            s.account.Address(),
		Owner:              s.account.Owner(),
		ChainID:            s.account.ChainID(),
		NativeController:   s.account.NativeController(),
		ExternalController: s.account.ExternalController(),
		FeeCollector:       s.account.FeeCollector(),
		Balance:            balance,
	})
}

func (s *Server) isValidSignature(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	args := req.GetArguments()

	rawHash, err := stringArg(args, "hash")
	if err != nil {
		return errorResult(err), nil
	}
	hash, err := hexutil.Decode(rawHash)
	if err != nil || len(hash) != common.HashLength {
		return errorResult(fmt.Errorf("hash must be 32 hex-encoded bytes")), nil
	}

	rawSig, err := stringArg(args, "signature")
	if err != nil {
		return errorResult(err), nil
	}
	sig, err := hexutil.Decode(rawSig)
	if err != nil {
		return errorResult(fmt.Errorf("invalid signature encoding: %w", err)), nil
	}

	magic, err := s.account.IsValidSignature(common.BytesToHash(hash), sig)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(SignatureCheck{
		MagicValue: magic[:],
		Valid:      magic == smartaccount.ERC1271MagicValue,
	})
}

func (s *Server) userOperationHash(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	encoded, err := stringArg(req.GetArguments(), "user_operation")
	if err != nil {
		return errorResult(err), nil
	}
	op, err := encoding.DecodeUserOperation(encoded)
	if err != nil {
		return errorResult(err), nil
	}
	if op.Nonce == nil || op.Nonce.Sign() < 0 {
		return errorResult(fmt.Errorf("user operation nonce must be a non-negative integer")), nil
	}

	entryPoint := s.account.ExternalController()
	chainID := s.account.ChainID()
	hash, err := op.Hash(entryPoint, chainID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(OperationHash{Hash: hash, EntryPoint: entryPoint, ChainID: chainID})
}

func (s *Server) executeFromOutside(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	encoded, err := stringArg(req.GetArguments(), "transaction")
	if err != nil {
		return errorResult(err), nil
	}
	tx, err := encoding.DecodeTransaction(encoded)
	if err != nil {
		return errorResult(err), nil
	}
	if err := validation.ValidateTransaction(&tx); err != nil {
		return errorResult(err), nil
	}

	var outcome *smartaccount.ExecutionOutcome
	err = s.backend.Atomic(func() error {
		var err error
		outcome, err = s.account.ValidateAndExecuteExternally(ctx, &tx)
		return err
	})
	if err != nil {
		s.config.Logger.Warn("execute_from_outside aborted",
			"code", smartaccount.CodeOf(err),
			"error", err)
		return errorResult(err), nil
	}

	s.config.Logger.Info("execute_from_outside completed",
		"to", tx.To.Hex(),
		"nonce", tx.Nonce)
	return jsonResult(outcome)
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	return v, nil
}

func jsonResult(v any) (*mcpproto.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{mcpproto.NewTextContent(string(data))},
	}, nil
}

func errorResult(err error) *mcpproto.CallToolResult {
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{mcpproto.NewTextContent(err.Error())},
		IsError: true,
	}
}
