// Command smartaccountd serves one smart account over HTTP on an in-memory
// ledger, for local development and integration testing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/account"
	httpsa "github.com/mark3labs/smartaccount-go/http"
	ginsa "github.com/mark3labs/smartaccount-go/http/gin"
	"github.com/mark3labs/smartaccount-go/ledger"
	mcpsa "github.com/mark3labs/smartaccount-go/mcp/server"
	"github.com/mark3labs/smartaccount-go/nonce"
)

func main() {
	configPath := flag.String("config", "smartaccountd.yaml", "Path to the YAML configuration file")
	listen := flag.String("listen", "", "Listen address (overrides the configuration file)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// app is the wired daemon.
type app struct {
	ledger  *ledger.Ledger
	account *account.Account
	handler http.Handler
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}

	l := ledger.New(ledger.WithGasLimit(cfg.GasLimit), ledger.WithLogger(logger))
	for addr, amount := range cfg.InitialBalances() {
		l.SetBalance(addr, amount)
	}

	state := &smartaccount.AccountState{
		Address: common.HexToAddress(cfg.Account.Address),
		Owner:   owner,
	}

	a := &app{ledger: l}

	var coordinator smartaccount.NonceCoordinator
	switch cfg.Nonce.Backend {
	case "redis":
		opts := []nonce.Option{nonce.WithJournal(l), nonce.WithLogger(logger)}
		if cfg.Nonce.Redis.KeyPrefix != "" {
			opts = append(opts, nonce.WithKeyPrefix(cfg.Nonce.Redis.KeyPrefix))
		}
		rc := nonce.NewRedisCoordinatorFromAddr(cfg.Nonce.Redis.Addr, cfg.Nonce.Redis.Password, cfg.Nonce.Redis.DB, opts...)
		a.closers = append(a.closers, rc.Close)
		if err := rc.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		current, err := rc.Nonce(ctx, state.Address)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if current.Sign() == 0 && cfg.Nonce.Initial > 0 {
			if err := rc.SetNonce(ctx, state.Address, cfg.Nonce.Initial); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		coordinator = rc
	default:
		l.SetNonce(state.Address, new(big.Int).SetUint64(cfg.Nonce.Initial))
		coordinator = l
	}

	opts := []account.Option{
		account.WithChainID(big.NewInt(cfg.ChainID)),
		account.WithLogger(logger),
	}
	if cfg.Controllers.Native != "" {
		opts = append(opts, account.WithNativeController(common.HexToAddress(cfg.Controllers.Native)))
	}
	if cfg.Controllers.External != "" {
		opts = append(opts, account.WithExternalController(common.HexToAddress(cfg.Controllers.External)))
	}
	if cfg.FeeCollector != "" {
		opts = append(opts, account.WithFeeCollector(common.HexToAddress(cfg.FeeCollector)))
	}

	acc, err := account.New(state, l, coordinator, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.account = acc

	var tools http.Handler
	if cfg.MCP.Path != "" {
		srv, err := mcpsa.New(acc, l, &mcpsa.Config{
			Name:     "smartaccountd",
			Version:  "1.0.0",
			ReadOnly: cfg.MCP.ReadOnly,
			Logger:   logger,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		tools = srv.Handler()
	}

	handlerOpts := []httpsa.HandlerOption{httpsa.WithHandlerLogger(logger)}
	key, err := cfg.AuthKey()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if key != nil {
		var authOpts []httpsa.AuthOption
		if cfg.Auth.Leeway > 0 {
			authOpts = append(authOpts, httpsa.WithLeeway(cfg.Auth.Leeway))
		}
		auth, err := httpsa.NewAuthenticator(key, state.Address, authOpts...)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		handlerOpts = append(handlerOpts, httpsa.WithAuthenticator(auth))
	} else {
		logger.Warn("no caller authentication configured, controller endpoints will answer 401")
	}

	h := httpsa.NewHandler(acc, l, handlerOpts...)
	switch cfg.Router {
	case "gin":
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(gin.Recovery(), ginsa.RequestID())
		ginsa.RegisterRoutes(engine, h)
		if tools != nil {
			engine.Any(cfg.MCP.Path, gin.WrapH(tools))
		}
		a.handler = engine
	default:
		r := httpsa.NewRouter(h)
		if tools != nil {
			r.Handle(cfg.MCP.Path, tools)
		}
		a.handler = r
	}

	logger.Info("account ready",
		"address", acc.Address().Hex(),
		"owner", acc.Owner().Hex(),
		"chainId", acc.ChainID().String(),
		"nonceBackend", cfg.Nonce.Backend,
		"router", cfg.Router,
		"mcp", cfg.MCP.Path,
		"callerAuth", key != nil,
	)
	return a, nil
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
