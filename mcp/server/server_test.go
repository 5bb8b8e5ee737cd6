package server

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/account"
	"github.com/mark3labs/smartaccount-go/encoding"
	"github.com/mark3labs/smartaccount-go/evm"
	"github.com/mark3labs/smartaccount-go/ledger"
)

// Well-known development keys (DO NOT use in production)
const (
	ownerKeyHex    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	strangerKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	accountAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	destination = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type testEnv struct {
	ledger   *ledger.Ledger
	server   *Server
	owner    *evm.Signer
	stranger *evm.Signer
}

func newTestEnv(t *testing.T, config *Config) *testEnv {
	t.Helper()

	owner, err := evm.NewSigner(evm.WithPrivateKey(ownerKeyHex))
	if err != nil {
		t.Fatalf("failed to create owner signer: %v", err)
	}
	stranger, err := evm.NewSigner(evm.WithPrivateKey(strangerKeyHex))
	if err != nil {
		t.Fatalf("failed to create stranger signer: %v", err)
	}

	l := ledger.New()
	l.SetBalance(accountAddr, big.NewInt(10))
	l.SetNonce(accountAddr, big.NewInt(5))

	acc, err := account.New(&smartaccount.AccountState{Address: accountAddr, Owner: owner.Address()}, l, l)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	srv, err := New(acc, l, config)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &testEnv{ledger: l, server: srv, owner: owner, stranger: stranger}
}

func (e *testEnv) encodedTransaction(t *testing.T, signer *evm.Signer) string {
	t.Helper()
	tx := smartaccount.Transaction{
		TxType:       113,
		From:         accountAddr,
		To:           destination,
		GasLimit:     big.NewInt(2),
		MaxFeePerGas: big.NewInt(3),
		Nonce:        big.NewInt(5),
		Value:        big.NewInt(2),
	}
	if _, err := signer.SignTransaction(&tx); err != nil {
		t.Fatalf("failed to sign transaction: %v", err)
	}
	encoded, err := encoding.EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("failed to encode transaction: %v", err)
	}
	return encoded
}

func call(args map[string]any) mcpproto.CallToolRequest {
	var req mcpproto.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpproto.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected a single content item, got %+v", res)
	}
	text, ok := res.Content[0].(mcpproto.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func decodeResult[T any](t *testing.T, res *mcpproto.CallToolResult) T {
	t.Helper()
	if res.IsError {
		t.Fatalf("expected success, got error result: %s", resultText(t, res))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return out
}

func TestNew(t *testing.T) {
	l := ledger.New()
	acc, err := account.New(&smartaccount.AccountState{Address: accountAddr}, l, l)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	tests := []struct {
		name    string
		account *account.Account
		backend Backend
		wantErr bool
	}{
		{name: "valid", account: acc, backend: l},
		{name: "missing account", backend: l, wantErr: true},
		{name: "missing backend", account: acc, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := New(tt.account, tt.backend, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if srv.config.Name != "smartaccount" {
				t.Errorf("expected default name, got %s", srv.config.Name)
			}
			if srv.Handler() == nil {
				t.Error("expected an HTTP handler")
			}
		})
	}
}

func TestAccountInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.server.accountInfo(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := decodeResult[AccountInfo](t, res)
	if info.Owner != env.owner.Address() {
		t.Errorf("expected owner %s, got %s", env.owner.Address(), info.Owner)
	}
	if info.Balance.Int64() != 10 {
		t.Errorf("expected balance 10, got %s", info.Balance)
	}
	if info.ExternalController != smartaccount.EntryPointAddress {
		t.Errorf("expected entry point controller, got %s", info.ExternalController)
	}
}

func TestIsValidSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	hash := crypto.Keccak256Hash([]byte("hello"))
	ownerSig, err := env.owner.SignHash(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	strangerSig, err := env.stranger.SignHash(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		wantValid bool
	}{
		{
			name:      "owner signature",
			args:      map[string]any{"hash": hash.Hex(), "signature": hexutil.Encode(ownerSig)},
			wantValid: true,
		},
		{
			name: "stranger signature",
			args: map[string]any{"hash": hash.Hex(), "signature": hexutil.Encode(strangerSig)},
		},
		{
			name:      "short hash",
			args:      map[string]any{"hash": "0x1234", "signature": hexutil.Encode(ownerSig)},
			wantError: true,
		},
		{
			name:      "missing signature",
			args:      map[string]any{"hash": hash.Hex()},
			wantError: true,
		},
		{
			name:      "malformed signature",
			args:      map[string]any{"hash": hash.Hex(), "signature": hexutil.Encode(ownerSig[:64])},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.server.isValidSignature(context.Background(), call(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantError {
				if !res.IsError {
					t.Errorf("expected error result, got %s", resultText(t, res))
				}
				return
			}
			check := decodeResult[SignatureCheck](t, res)
			if check.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %v", tt.wantValid, check.Valid)
			}
		})
	}
}

func TestUserOperationHash(t *testing.T) {
	env := newTestEnv(t, nil)
	op := smartaccount.UserOperation{Sender: accountAddr, Nonce: big.NewInt(0)}
	encoded, err := encoding.EncodeUserOperation(op)
	if err != nil {
		t.Fatalf("failed to encode operation: %v", err)
	}
	want, err := op.Hash(smartaccount.EntryPointAddress, big.NewInt(smartaccount.DefaultChainID))
	if err != nil {
		t.Fatalf("failed to hash operation: %v", err)
	}

	res, err := env.server.userOperationHash(context.Background(), call(map[string]any{"user_operation": encoded}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decodeResult[OperationHash](t, res)
	if got.Hash != want {
		t.Errorf("expected hash %s, got %s", want, got.Hash)
	}

	res, _ = env.server.userOperationHash(context.Background(), call(map[string]any{"user_operation": "not-base64"}))
	if !res.IsError {
		t.Error("expected error result for undecodable operation")
	}
}

func TestExecuteFromOutside(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.server.executeFromOutside(context.Background(), call(map[string]any{
		"transaction": env.encodedTransaction(t, env.owner),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outcome := decodeResult[smartaccount.ExecutionOutcome](t, res)
	if !outcome.Success {
		t.Error("expected successful outcome")
	}
	if got := env.ledger.BalanceOf(accountAddr).Int64(); got != 8 {
		t.Errorf("expected balance 8, got %d", got)
	}
	if got := env.ledger.BalanceOf(destination).Int64(); got != 2 {
		t.Errorf("expected destination balance 2, got %d", got)
	}
}

func TestExecuteFromOutside_WrongSignerUnwinds(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.server.executeFromOutside(context.Background(), call(map[string]any{
		"transaction": env.encodedTransaction(t, env.stranger),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, res), string(smartaccount.ErrCodeInvalidSignature)) {
		t.Errorf("expected invalid signature, got %s", resultText(t, res))
	}
	if nonce := env.ledger.Nonce(accountAddr); nonce.Int64() != 5 {
		t.Errorf("expected nonce 5, got %s", nonce)
	}
	if got := env.ledger.BalanceOf(accountAddr).Int64(); got != 10 {
		t.Errorf("expected balance 10, got %d", got)
	}
}

func TestReadOnlyHidesExecution(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		want     bool
	}{
		{name: "default", readOnly: false, want: true},
		{name: "read only", readOnly: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.ReadOnly = tt.readOnly
			env := newTestEnv(t, config)

			resp := env.server.MCPServer().HandleMessage(context.Background(),
				json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
			data, err := json.Marshal(resp)
			if err != nil {
				t.Fatalf("failed to encode response: %v", err)
			}
			if got := strings.Contains(string(data), ToolExecuteFromOutside); got != tt.want {
				t.Errorf("expected %s listed=%v, got %v", ToolExecuteFromOutside, tt.want, got)
			}
			if !strings.Contains(string(data), ToolAccountInfo) {
				t.Errorf("expected %s to be listed", ToolAccountInfo)
			}
		})
	}
}
