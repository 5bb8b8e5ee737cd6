package main

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/evm"
	httpsa "github.com/mark3labs/smartaccount-go/http"
	"github.com/mark3labs/smartaccount-go/ledger"
	"github.com/mark3labs/smartaccount-go/validation"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration file.
type Config struct {
	Listen       string            `yaml:"listen"`
	Router       string            `yaml:"router"` // "chi" | "gin"
	LogLevel     string            `yaml:"log_level"`
	LogFormat    string            `yaml:"log_format"` // "text" | "json"
	ChainID      int64             `yaml:"chain_id"`
	GasLimit     uint64            `yaml:"gas_limit"`
	Account      AccountConfig     `yaml:"account"`
	Controllers  ControllersConfig `yaml:"controllers"`
	FeeCollector string            `yaml:"fee_collector,omitempty"`
	Balances     map[string]string `yaml:"balances,omitempty"`
	Nonce        NonceConfig       `yaml:"nonce"`
	MCP          MCPConfig         `yaml:"mcp,omitempty"`
	Auth         AuthConfig        `yaml:"auth,omitempty"`
}

// AuthConfig selects the key that verifies controller caller tokens. Without
// one every controller endpoint answers 401.
type AuthConfig struct {
	SecretEnv     string        `yaml:"secret_env,omitempty"`      // env var holding an HMAC secret
	PublicKeyFile string        `yaml:"public_key_file,omitempty"` // PEM PKIX ECDSA or Ed25519 key
	Leeway        time.Duration `yaml:"leeway,omitempty"`
}

// MCPConfig mounts the MCP tool server next to the JSON API. An empty Path
// disables it.
type MCPConfig struct {
	Path     string `yaml:"path,omitempty"`
	ReadOnly bool   `yaml:"read_only,omitempty"`
}

// AccountConfig identifies the served account and its owner. Exactly one owner
// source must be set.
type AccountConfig struct {
	Address          string `yaml:"address"`
	Owner            string `yaml:"owner,omitempty"`
	OwnerKey         string `yaml:"owner_key,omitempty"`
	OwnerMnemonic    string `yaml:"owner_mnemonic,omitempty"`
	OwnerIndex       uint32 `yaml:"owner_index,omitempty"`
	OwnerKeystore    string `yaml:"owner_keystore,omitempty"`
	OwnerPasswordEnv string `yaml:"owner_password_env,omitempty"`
}

// ControllersConfig overrides the default controller identities.
type ControllersConfig struct {
	Native   string `yaml:"native,omitempty"`
	External string `yaml:"external,omitempty"`
}

// NonceConfig selects the nonce coordinator.
type NonceConfig struct {
	Backend string      `yaml:"backend"` // "memory" | "redis"
	Initial uint64      `yaml:"initial"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis nonce backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// LoadConfig reads, defaults and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses, defaults and validates a YAML document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Router == "" {
		c.Router = "chi"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.ChainID == 0 {
		c.ChainID = smartaccount.DefaultChainID
	}
	if c.GasLimit == 0 {
		c.GasLimit = ledger.DefaultGasLimit
	}
	if c.Nonce.Backend == "" {
		c.Nonce.Backend = "memory"
	}
	if c.Nonce.Backend == "redis" && c.Nonce.Redis.Addr == "" {
		c.Nonce.Redis.Addr = "localhost:6379"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Router != "chi" && c.Router != "gin" {
		errs = append(errs, fmt.Errorf("router must be chi or gin, got %q", c.Router))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("chain_id must be positive, got %d", c.ChainID))
	}

	if err := validation.ValidateAddress(c.Account.Address); err != nil {
		errs = append(errs, fmt.Errorf("account.address: %w", err))
	}
	sources := 0
	for _, s := range []string{c.Account.Owner, c.Account.OwnerKey, c.Account.OwnerMnemonic, c.Account.OwnerKeystore} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		errs = append(errs, errors.New("account: exactly one of owner, owner_key, owner_mnemonic, owner_keystore is required"))
	}
	if c.Account.Owner != "" {
		if err := validation.ValidateAddress(c.Account.Owner); err != nil {
			errs = append(errs, fmt.Errorf("account.owner: %w", err))
		}
	}

	if c.MCP.Path != "" && (!strings.HasPrefix(c.MCP.Path, "/") || strings.HasPrefix(c.MCP.Path, "/v1/")) {
		errs = append(errs, fmt.Errorf("mcp.path must be an absolute path outside /v1/, got %q", c.MCP.Path))
	}

	optional := map[string]string{
		"controllers.native":   c.Controllers.Native,
		"controllers.external": c.Controllers.External,
		"fee_collector":        c.FeeCollector,
	}
	for name, addr := range optional {
		if addr == "" {
			continue
		}
		if err := validation.ValidateAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for addr, amount := range c.Balances {
		if err := validation.ValidateAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("balances: %w", err))
		}
		if err := validation.ValidateAmount(amount); err != nil {
			errs = append(errs, fmt.Errorf("balances[%s]: %w", addr, err))
		}
	}

	switch c.Nonce.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("nonce.backend must be memory or redis, got %q", c.Nonce.Backend))
	}

	if c.Auth.SecretEnv != "" && c.Auth.PublicKeyFile != "" {
		errs = append(errs, errors.New("auth: secret_env and public_key_file are mutually exclusive"))
	}
	if c.Auth.Leeway < 0 {
		errs = append(errs, fmt.Errorf("auth.leeway must not be negative, got %s", c.Auth.Leeway))
	}

	return errors.Join(errs...)
}

// AuthKey loads the caller token verification key. It returns nil when no
// source is configured.
func (c *Config) AuthKey() (any, error) {
	switch {
	case c.Auth.SecretEnv != "":
		secret := os.Getenv(c.Auth.SecretEnv)
		if len(secret) < httpsa.MinSecretLength {
			return nil, fmt.Errorf("auth: %s must hold at least %d bytes", c.Auth.SecretEnv, httpsa.MinSecretLength)
		}
		return []byte(secret), nil
	case c.Auth.PublicKeyFile != "":
		data, err := os.ReadFile(c.Auth.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("auth: %s holds no PEM block", c.Auth.PublicKeyFile)
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		switch k := pub.(type) {
		case *ecdsa.PublicKey, ed25519.PublicKey:
			return k, nil
		default:
			return nil, fmt.Errorf("auth: unsupported public key type %T", pub)
		}
	}
	return nil, nil
}

// OwnerAddress resolves the configured owner source to an address.
func (c *Config) OwnerAddress() (common.Address, error) {
	if c.Account.Owner != "" {
		return common.HexToAddress(c.Account.Owner), nil
	}

	var opt evm.SignerOption
	switch {
	case c.Account.OwnerKey != "":
		opt = evm.WithPrivateKey(c.Account.OwnerKey)
	case c.Account.OwnerMnemonic != "":
		opt = evm.WithMnemonic(c.Account.OwnerMnemonic, c.Account.OwnerIndex)
	default:
		opt = evm.WithKeystore(c.Account.OwnerKeystore, os.Getenv(c.Account.OwnerPasswordEnv))
	}

	signer, err := evm.NewSigner(opt)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve owner: %w", err)
	}
	return signer.Address(), nil
}

// InitialBalances returns the configured genesis balances.
func (c *Config) InitialBalances() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(c.Balances))
	for addr, amount := range c.Balances {
		v, _ := new(big.Int).SetString(amount, 10)
		out[common.HexToAddress(addr)] = v
	}
	return out
}

// Logger builds the configured slog logger.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
