// Package server exposes a smart account to MCP clients as a set of tools.
//
// Read-only tools describe the account and check signatures. The
// execute_from_outside tool submits an owner-signed transaction and runs it as
// one backend transaction, so a rejected submission leaves no trace.
package server

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/smartaccount-go/account"
)

// Backend is the transactional host the account runs on.
type Backend interface {
	Atomic(fn func() error) error
	BalanceOf(addr common.Address) *big.Int
}

// Config holds the MCP server settings.
type Config struct {
	// Name and Version are reported to clients during initialization.
	Name    string
	Version string

	// ReadOnly hides execute_from_outside.
	ReadOnly bool

	Logger *slog.Logger
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() *Config {
	return &Config{
		Name:    "smartaccount",
		Version: "1.0.0",
		Logger:  slog.Default(),
	}
}

// Server wraps an MCP server bound to one account.
type Server struct {
	mcpServer *mcpserver.MCPServer
	account   *account.Account
	backend   Backend
	config    *Config
}

// New creates a Server and registers the account tools.
func New(acc *account.Account, backend Backend, config *Config) (*Server, error) {
	if acc == nil {
		return nil, errors.New("account is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcpserver.NewMCPServer(config.Name, config.Version),
		account:   acc,
		backend:   backend,
		config:    config,
	}
	s.registerTools()
	return s, nil
}

// Handler returns the streamable HTTP transport for the server.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcpproto.NewTool(ToolAccountInfo,
		mcpproto.WithDescription("Describe the smart account: owner, controllers, chain and balance"),
	), s.accountInfo)

	s.mcpServer.AddTool(mcpproto.NewTool(ToolIsValidSignature,
		mcpproto.WithDescription("Check whether a signature over a hash was produced by the account owner"),
		mcpproto.WithString("hash", mcpproto.Required(), mcpproto.Description("0x-prefixed 32-byte hash")),
		mcpproto.WithString("signature", mcpproto.Required(), mcpproto.Description("0x-prefixed 65-byte signature")),
	), s.isValidSignature)

	s.mcpServer.AddTool(mcpproto.NewTool(ToolUserOperationHash,
		mcpproto.WithDescription("Compute the hash the owner must sign for a user operation"),
		mcpproto.WithString("user_operation", mcpproto.Required(), mcpproto.Description("base64-encoded JSON user operation")),
	), s.userOperationHash)

	if s.config.ReadOnly {
		return
	}
	s.mcpServer.AddTool(mcpproto.NewTool(ToolExecuteFromOutside,
		mcpproto.WithDescription("Validate an owner-signed transaction and execute it"),
		mcpproto.WithString("transaction", mcpproto.Required(), mcpproto.Description("base64-encoded JSON transaction")),
	), s.executeFromOutside)
}
