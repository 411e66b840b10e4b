// Package custody provides an in-memory implementation of core.Custody.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned when the ledger's own balance cannot
// cover a transfer.
var ErrInsufficientBalance = errors.New("insufficient balance")

// TransferHook runs after a transfer has been applied. It may call back into
// the order book.
type TransferHook func(ctx context.Context, asset, to common.Address, amount *uint256.Int)

// Ledger is an in-memory custody account. It holds the book's escrowed
// balances per asset and credits recipients on transfer. Unwrapping the
// wrapped-native asset debits it and credits the recipient's native balance.
type Ledger struct {
	mu            sync.Mutex
	wrappedNative common.Address
	escrow        map[common.Address]*uint256.Int
	balances      map[common.Address]map[common.Address]*uint256.Int
	native        map[common.Address]*uint256.Int
	onTransfer    TransferHook
}

// NewLedger creates an empty ledger. wrappedNative may be the zero address
// when the pair has no wrapped-native leg.
func NewLedger(wrappedNative common.Address) *Ledger {
	return &Ledger{
		wrappedNative: wrappedNative,
		escrow:        make(map[common.Address]*uint256.Int),
		balances:      make(map[common.Address]map[common.Address]*uint256.Int),
		native:        make(map[common.Address]*uint256.Int),
	}
}

// OnTransfer installs a hook run after every successful transfer
func (l *Ledger) OnTransfer(hook TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTransfer = hook
}

// Fund adds amount of asset to the escrow
func (l *Ledger) Fund(asset common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(l.escrow, asset, amount)
}

// Escrow returns the escrowed balance of asset
func (l *Ledger) Escrow(asset common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return get(l.escrow, asset)
}

// Balance returns the balance of asset credited to account
func (l *Ledger) Balance(asset, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return get(l.balances[asset], account)
}

// NativeBalance returns the native coin credited to account
func (l *Ledger) NativeBalance(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return get(l.native, account)
}

// Transfer moves amount of asset from the escrow to to
func (l *Ledger) Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	if err := l.debit(asset, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[common.Address]*uint256.Int)
	}
	l.credit(l.balances[asset], to, amount)
	hook := l.onTransfer
	l.mu.Unlock()

	if hook != nil {
		hook(ctx, asset, to, amount)
	}
	return nil
}

// UnwrapAndSend debits the wrapped-native escrow and credits to natively
func (l *Ledger) UnwrapAndSend(ctx context.Context, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	if l.wrappedNative == (common.Address{}) {
		l.mu.Unlock()
		return fmt.Errorf("%w: no wrapped native asset configured", core.ErrInvalidArgument)
	}
	if err := l.debit(l.wrappedNative, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	l.credit(l.native, to, amount)
	hook := l.onTransfer
	asset := l.wrappedNative
	l.mu.Unlock()

	if hook != nil {
		hook(ctx, asset, to, amount)
	}
	return nil
}

// WrappedNative returns the wrapped-native asset address
func (l *Ledger) WrappedNative() common.Address {
	return l.wrappedNative
}

func (l *Ledger) debit(asset common.Address, amount *uint256.Int) error {
	held := get(l.escrow, asset)
	if held.Lt(amount) {
		return fmt.Errorf("%w: %s of %s held, %s requested",
			ErrInsufficientBalance, held.Dec(), asset.Hex(), amount.Dec())
	}
	l.escrow[asset] = held.Sub(held, amount)
	return nil
}

func (l *Ledger) credit(m map[common.Address]*uint256.Int, key common.Address, amount *uint256.Int) {
	m[key] = new(uint256.Int).Add(get(m, key), amount)
}

// get returns a copy of m[key], zero when absent
func get(m map[common.Address]*uint256.Int, key common.Address) *uint256.Int {
	if v, ok := m[key]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

var _ core.Custody = (*Ledger)(nil)
