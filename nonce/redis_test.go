package nonce

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/ledger"
	"github.com/redis/go-redis/v9"
)

var _ smartaccount.NonceCoordinator = (*RedisCoordinator)(nil)

func newTestCoordinator(t *testing.T) (*RedisCoordinator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewRedisCoordinatorFromAddr(mr.Addr(), "", 0, WithKeyPrefix("test:"+uuid.NewString()+":"))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("failed to reach redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCoordinator_CompareAndIncrement(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")

	n, err := c.Nonce(ctx, account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Sign() != 0 {
		t.Errorf("expected fresh nonce 0, got %s", n)
	}

	if err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(0)); !errors.Is(err, smartaccount.ErrNonceMismatch) {
		t.Errorf("expected ErrNonceMismatch on replay, got %v", err)
	}

	n, err = c.Nonce(ctx, account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected nonce 1, got %s", n)
	}
}

func TestRedisCoordinator_SetNonce(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")

	if err := c.SetNonce(ctx, account, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(4))
	if smartaccount.CodeOf(err) != smartaccount.ErrCodeNonceMismatch {
		t.Fatalf("expected nonce mismatch, got %v", err)
	}
	if err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrementMinNonceIfEquals_RejectsOutOfRange(t *testing.T) {
	c := NewRedisCoordinatorFromAddr("localhost:0", "", 0)
	defer c.Close()
	account := common.HexToAddress("0x3333333333333333333333333333333333333333")

	tests := []struct {
		name     string
		expected *big.Int
	}{
		{name: "nil", expected: nil},
		{name: "negative", expected: big.NewInt(-1)},
		{name: "too large", expected: new(big.Int).Lsh(big.NewInt(1), 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.IncrementMinNonceIfEquals(context.Background(), account, tt.expected)
			if !errors.Is(err, smartaccount.ErrNonceMismatch) {
				t.Errorf("expected ErrNonceMismatch, got %v", err)
			}
		})
	}
}

func TestRedisCoordinator_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	account := common.HexToAddress("0x4444444444444444444444444444444444444444")

	tests := []struct {
		name    string
		opts    []Option
		wantKey string
	}{
		{name: "default", wantKey: DefaultKeyPrefix + account.Hex()},
		{name: "custom", opts: []Option{WithKeyPrefix("acct/")}, wantKey: "acct/" + account.Hex()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRedisCoordinator(client, tt.opts...)
			if err := c.SetNonce(context.Background(), account, 9); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := mr.Get(tt.wantKey)
			if err != nil {
				t.Fatalf("expected key %s to exist: %v", tt.wantKey, err)
			}
			if got != "9" {
				t.Errorf("expected 9, got %s", got)
			}
		})
	}
}

func TestRedisCoordinator_MismatchDetails(t *testing.T) {
	c, _ := newTestCoordinator(t)
	account := common.HexToAddress("0x5555555555555555555555555555555555555555")

	if err := c.SetNonce(context.Background(), account, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := c.IncrementMinNonceIfEquals(context.Background(), account, big.NewInt(7))

	var accErr *smartaccount.AccountError
	if !errors.As(err, &accErr) {
		t.Fatalf("expected AccountError, got %v", err)
	}
	if accErr.Details["current"] != "3" {
		t.Errorf("expected current nonce 3 in details, got %v", accErr.Details)
	}
}

func TestRedisCoordinator_ConcurrentConsumers(t *testing.T) {
	c, _ := newTestCoordinator(t)
	account := common.HexToAddress("0x6666666666666666666666666666666666666666")

	const workers = 16
	var (
		wg   sync.WaitGroup
		wins int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.IncrementMinNonceIfEquals(context.Background(), account, big.NewInt(0)); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one consumer to win, got %d", wins)
	}
	n, err := c.Nonce(context.Background(), account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Int64() != 1 {
		t.Errorf("expected nonce 1, got %s", n)
	}
}

func TestRedisCoordinator_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCoordinatorFromAddr(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	mr.Close()

	err := c.IncrementMinNonceIfEquals(context.Background(), common.HexToAddress("0x7777777777777777777777777777777777777777"), big.NewInt(0))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, smartaccount.ErrNonceMismatch) {
		t.Error("expected a transport failure to stay distinct from a nonce mismatch")
	}
}

func TestRedisCoordinator_JournalRestoresOnAbort(t *testing.T) {
	mr := miniredis.RunT(t)
	l := ledger.New()
	c := NewRedisCoordinatorFromAddr(mr.Addr(), "", 0, WithKeyPrefix("test:"), WithJournal(l))
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	key := "test:" + account.Hex()
	if err := c.SetNonce(ctx, account, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		abort    bool
		advance  string
		wantNext string
	}{
		{name: "abort restores", abort: true, wantNext: "5"},
		{name: "commit keeps", abort: false, wantNext: "6"},
		{name: "abort after a concurrent advance", abort: true, advance: "9", wantNext: "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr.Set(key, "5")

			err := l.Atomic(func() error {
				if err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(5)); err != nil {
					return err
				}
				if tt.advance != "" {
					mr.Set(key, tt.advance)
				}
				if tt.abort {
					return smartaccount.ErrInsufficientBalance
				}
				return nil
			})
			if tt.abort && !errors.Is(err, smartaccount.ErrInsufficientBalance) {
				t.Fatalf("expected the abort to surface, got %v", err)
			}
			if !tt.abort && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := mr.Get(key)
			if err != nil {
				t.Fatalf("failed to read nonce: %v", err)
			}
			if got != tt.wantNext {
				t.Errorf("expected nonce %s, got %s", tt.wantNext, got)
			}
		})
	}
}

func TestRedisCoordinator_CancelledRequestStillRestores(t *testing.T) {
	mr := miniredis.RunT(t)
	l := ledger.New()
	c := NewRedisCoordinatorFromAddr(mr.Addr(), "", 0, WithKeyPrefix("test:"), WithJournal(l))
	t.Cleanup(func() { _ = c.Close() })

	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ctx, cancel := context.WithCancel(context.Background())

	err := l.Atomic(func() error {
		if err := c.IncrementMinNonceIfEquals(ctx, account, big.NewInt(0)); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if got, _ := mr.Get("test:" + account.Hex()); got != "0" {
		t.Errorf("expected nonce 0 after restore, got %q", got)
	}
}
