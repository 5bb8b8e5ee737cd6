// Package ledger provides an in-memory host for smart accounts: balances,
// deployed contract handlers, system contracts and minimal nonces, with
// journaled writes so a failed transaction or call unwinds as a unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
)

// DefaultGasLimit is the resource budget reported by GasLeft.
const DefaultGasLimit = 30_000_000

// Contract is code deployed at an address. Returning a *smartaccount.RevertError
// reverts the call with its payload; any other error reverts without payload.
type Contract func(ctx context.Context, l *Ledger, msg smartaccount.Message) ([]byte, error)

type entryKind uint8

const (
	balanceEntry entryKind = iota
	nonceEntry
	undoEntry
)

type journalEntry struct {
	kind    entryKind
	addr    common.Address
	prev    *big.Int
	existed bool
	undo    func()
}

// Ledger is an in-memory smart account host. Transactions are serialized by
// Atomic; the other methods assume the caller holds that serialization.
type Ledger struct {
	mu sync.Mutex

	balances  map[common.Address]*big.Int
	nonces    map[common.Address]*big.Int
	contracts map[common.Address]Contract
	system    map[common.Address]Contract
	journal   []journalEntry

	gasLimit uint64
	logger   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithGasLimit sets the budget returned by GasLeft.
func WithGasLimit(gas uint64) Option {
	return func(l *Ledger) {
		l.gasLimit = gas
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]Contract),
		system:    make(map[common.Address]Contract),
		gasLimit:  DefaultGasLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deploy installs an ordinary contract at addr.
func (l *Ledger) Deploy(addr common.Address, c Contract) {
	l.contracts[addr] = c
}

// DeploySystem installs a contract reachable only through SystemCall.
func (l *Ledger) DeploySystem(addr common.Address, c Contract) {
	l.system[addr] = c
}

// Atomic runs fn as one transaction. The ledger is locked for its duration and
// every write made inside is reverted when fn returns an error. Atomic calls
// do not nest.
func (l *Ledger) Atomic(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.Snapshot()
	if err := fn(); err != nil {
		l.RevertToSnapshot(snap)
		l.logger.Debug("transaction reverted", "error", err)
		return err
	}
	l.journal = l.journal[:snap]
	return nil
}

// Snapshot returns an identifier for the current state.
func (l *Ledger) Snapshot() int {
	return len(l.journal)
}

// RevertToSnapshot undoes every write made after snap was taken.
func (l *Ledger) RevertToSnapshot(snap int) {
	for i := len(l.journal) - 1; i >= snap; i-- {
		entry := l.journal[i]
		if entry.kind == undoEntry {
			entry.undo()
			continue
		}
		target := l.balances
		if entry.kind == nonceEntry {
			target = l.nonces
		}
		if entry.existed {
			target[entry.addr] = entry.prev
		} else {
			delete(target, entry.addr)
		}
	}
	l.journal = l.journal[:snap]
}

// OnRevert records fn to run if the current transaction or call unwinds past
// this point. It lets state held outside the ledger, such as a shared nonce
// store, take part in the rollback.
func (l *Ledger) OnRevert(fn func()) {
	if fn == nil {
		return
	}
	l.journal = append(l.journal, journalEntry{kind: undoEntry, undo: fn})
}

// BalanceOf returns a copy of addr's balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// SetBalance overwrites addr's balance.
func (l *Ledger) SetBalance(addr common.Address, amount *big.Int) {
	l.write(balanceEntry, addr, new(big.Int).Set(amount))
}

// Call performs an ordinary call: value moves first, then the destination's
// code runs. Any failure reverts the call's writes.
func (l *Ledger) Call(ctx context.Context, msg smartaccount.Message) smartaccount.CallResult {
	return l.invoke(ctx, msg, l.contracts[msg.To])
}

// SystemCall performs the elevated call form. Destinations without system code
// fail.
func (l *Ledger) SystemCall(ctx context.Context, msg smartaccount.Message) smartaccount.CallResult {
	code, ok := l.system[msg.To]
	if !ok {
		return smartaccount.CallResult{Success: false}
	}
	return l.invoke(ctx, msg, code)
}

// GasLeft returns the configured budget.
func (l *Ledger) GasLeft(ctx context.Context) uint64 {
	return l.gasLimit
}

func (l *Ledger) invoke(ctx context.Context, msg smartaccount.Message, code Contract) smartaccount.CallResult {
	if err := ctx.Err(); err != nil {
		return smartaccount.CallResult{Success: false}
	}

	snap := l.Snapshot()
	if err := l.transfer(msg.From, msg.To, msg.Value); err != nil {
		l.RevertToSnapshot(snap)
		return smartaccount.CallResult{Success: false}
	}
	if code == nil {
		return smartaccount.CallResult{Success: true}
	}

	ret, err := code(ctx, l, msg)
	if err != nil {
		l.RevertToSnapshot(snap)
		var revert *smartaccount.RevertError
		if errors.As(err, &revert) {
			return smartaccount.CallResult{Success: false, ReturnData: revert.Data}
		}
		return smartaccount.CallResult{Success: false}
	}
	return smartaccount.CallResult{Success: true, ReturnData: ret}
}

func (l *Ledger) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	balance := l.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", smartaccount.ErrInsufficientBalance, balance, amount)
	}
	l.write(balanceEntry, from, balance.Sub(balance, amount))
	recipient := l.BalanceOf(to)
	l.write(balanceEntry, to, recipient.Add(recipient, amount))
	return nil
}

func (l *Ledger) write(kind entryKind, addr common.Address, value *big.Int) {
	target := l.balances
	if kind == nonceEntry {
		target = l.nonces
	}
	prev, existed := target[addr]
	l.journal = append(l.journal, journalEntry{kind: kind, addr: addr, prev: prev, existed: existed})
	target[addr] = value
}
