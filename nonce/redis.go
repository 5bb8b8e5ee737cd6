// Package nonce provides a shared nonce coordinator for accounts whose
// operations are validated by more than one process.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces nonce keys.
const DefaultKeyPrefix = "smartaccount:nonce:"

// compareAndIncrementScript advances the nonce only when it equals the
// expected value.
// KEYS[1] = nonce key
// ARGV[1] = expected nonce (decimal)
var compareAndIncrementScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
    current = "0"
end

if current ~= ARGV[1] then
    return {0, current}
end

local incremented = redis.call("INCR", KEYS[1])
return {1, tostring(incremented)}
`)

// compareAndRestoreScript undoes one increment, unless another consumer has
// advanced the nonce since.
// KEYS[1] = nonce key
// ARGV[1] = nonce before the increment
// ARGV[2] = nonce after the increment
var compareAndRestoreScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current ~= ARGV[2] then
    return 0
end

redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// rollbackTimeout bounds a compensating restore.
const rollbackTimeout = 5 * time.Second

// Journal registers compensations with the transaction an increment runs in.
// *ledger.Ledger satisfies it.
type Journal interface {
	OnRevert(fn func())
}

// RedisCoordinator implements smartaccount.NonceCoordinator on Redis.
//
// Without a Journal, increments are final: a transaction that aborts after
// validation leaves the nonce consumed. With one, every increment registers a
// compare-and-restore that runs if the transaction unwinds.
type RedisCoordinator struct {
	client  redis.UniversalClient
	prefix  string
	journal Journal
	logger  *slog.Logger
}

// Option configures a RedisCoordinator.
type Option func(*RedisCoordinator)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *RedisCoordinator) {
		c.prefix = prefix
	}
}

// WithJournal ties increments to the transactions of j.
func WithJournal(j Journal) Option {
	return func(c *RedisCoordinator) {
		c.journal = j
	}
}

// WithLogger sets the logger used to report failed restores.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedisCoordinator creates a coordinator using client.
func NewRedisCoordinator(client redis.UniversalClient, opts ...Option) *RedisCoordinator {
	c := &RedisCoordinator{client: client, prefix: DefaultKeyPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisCoordinatorFromAddr connects to a single Redis node.
func NewRedisCoordinatorFromAddr(addr, password string, db int, opts ...Option) *RedisCoordinator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCoordinator(rdb, opts...)
}

// Ping checks connectivity.
func (c *RedisCoordinator) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCoordinator) Close() error {
	return c.client.Close()
}

func (c *RedisCoordinator) key(account common.Address) string {
	return c.prefix + account.Hex()
}

// Nonce returns account's current minimal nonce.
func (c *RedisCoordinator) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	raw, err := c.client.Get(ctx, c.key(account)).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis nonce error: %w", err)
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt nonce %q for %s", raw, account.Hex())
	}
	return n, nil
}

// SetNonce overwrites account's minimal nonce.
func (c *RedisCoordinator) SetNonce(ctx context.Context, account common.Address, nonce uint64) error {
	if nonce > math.MaxInt64 {
		return fmt.Errorf("nonce %d exceeds the redis integer range", nonce)
	}
	if err := c.client.Set(ctx, c.key(account), nonce, 0).Err(); err != nil {
		return fmt.Errorf("redis nonce error: %w", err)
	}
	return nil
}

// IncrementMinNonceIfEquals implements smartaccount.NonceCoordinator.
func (c *RedisCoordinator) IncrementMinNonceIfEquals(ctx context.Context, account common.Address, expected *big.Int) error {
	if expected == nil || expected.Sign() < 0 || !expected.IsInt64() {
		return mismatch(account, expected, "")
	}

	res, err := compareAndIncrementScript.Run(ctx, c.client, []string{c.key(account)}, expected.String()).Result()
	if err != nil {
		return fmt.Errorf("redis nonce error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return fmt.Errorf("invalid response from lua script")
	}

	applied, _ := results[0].(int64)
	current, _ := results[1].(string)
	if applied != 1 {
		return mismatch(account, expected, current)
	}

	if c.journal != nil {
		rollbackCtx := context.WithoutCancel(ctx)
		before := expected.String()
		c.journal.OnRevert(func() {
			c.restore(rollbackCtx, account, before, current)
		})
	}
	return nil
}

func (c *RedisCoordinator) restore(ctx context.Context, account common.Address, before, after string) {
	ctx, cancel := context.WithTimeout(ctx, rollbackTimeout)
	defer cancel()

	restored, err := compareAndRestoreScript.Run(ctx, c.client, []string{c.key(account)}, before, after).Int()
	switch {
	case err != nil:
		c.logger.Error("failed to restore nonce", "account", account.Hex(), "nonce", before, "error", err)
	case restored != 1:
		c.logger.Warn("nonce advanced before restore", "account", account.Hex(), "nonce", before)
	}
}

func mismatch(account common.Address, expected *big.Int, current string) error {
	want := "<nil>"
	if expected != nil {
		want = expected.String()
	}
	err := smartaccount.NewAccountError(smartaccount.ErrCodeNonceMismatch, "incorrect nonce", smartaccount.ErrNonceMismatch).
		WithDetails("account", account.Hex()).
		WithDetails("expected", want)
	if current != "" {
		err.WithDetails("current", current)
	}
	return err
}
