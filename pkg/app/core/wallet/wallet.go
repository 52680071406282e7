// Package wallet is the native asset's value-transfer primitive: per-address
// balances seeded from a genesis allocation, with optional receive hooks.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/journal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient native funds")
	ErrReceiverRejected  = errors.New("receiver rejected transfer")
	ErrGenesisOverflow   = errors.New("genesis allocation overflows")
)

// Receiver is notified after native value arrives at its address. Returning an
// error undoes the transfer.
type Receiver interface {
	OnReceive(ctx context.Context, from common.Address, amount *uint256.Int) error
}

type Balance struct {
	Address common.Address `json:"address"`
	Amount  *uint256.Int   `json:"amount"`
}

type Wallet struct {
	mu        sync.Mutex
	balances  map[common.Address]uint256.Int
	receivers map[common.Address]Receiver
}

// New seeds balances from alloc.
func New(alloc map[common.Address]*uint256.Int) (*Wallet, error) {
	w := &Wallet{
		balances:  make(map[common.Address]uint256.Int, len(alloc)),
		receivers: make(map[common.Address]Receiver),
	}
	total := new(uint256.Int)
	for addr, amt := range alloc {
		if amt == nil {
			continue
		}
		if _, overflow := total.AddOverflow(total, amt); overflow {
			return nil, ErrGenesisOverflow
		}
		w.balances[addr] = *amt
	}
	return w, nil
}

// Register installs r as the receive hook for addr.
func (w *Wallet) Register(addr common.Address, r Receiver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receivers[addr] = r
}

func (w *Wallet) BalanceOf(addr common.Address) *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.balances[addr]
	return &v
}

// Total returns the sum of all balances. It equals the genesis total.
func (w *Wallet) Total() *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := new(uint256.Int)
	for _, v := range w.balances {
		total.Add(total, &v)
	}
	return total
}

// Balances returns nonzero balances sorted by address.
func (w *Wallet) Balances() []Balance {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Balance, 0, len(w.balances))
	for addr, v := range w.balances {
		if v.IsZero() {
			continue
		}
		out = append(out, Balance{Address: addr, Amount: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Send moves amount from one address to another, then runs the receiver hook
// of to, if any. A failed hook leaves both balances unchanged.
func (w *Wallet) Send(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	ctx, j, owned := journal.Begin(ctx)
	snap := j.Snapshot()

	if err := w.move(j, from, to, amount); err != nil {
		return err
	}

	w.mu.Lock()
	r := w.receivers[to]
	w.mu.Unlock()
	if r != nil {
		if err := r.OnReceive(ctx, from, amount); err != nil {
			j.RevertTo(snap)
			return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
		}
	}
	if owned {
		j.Commit()
	}
	return nil
}

func (w *Wallet) move(j *journal.Journal, from, to common.Address, amount *uint256.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	src := w.balances[from]
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), src.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	dst := w.balances[to]
	w.set(from, *new(uint256.Int).Sub(&src, amount))
	w.set(to, *new(uint256.Int).Add(&dst, amount))

	j.Undo(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.set(from, src)
		w.set(to, dst)
	})
	return nil
}

func (w *Wallet) set(addr common.Address, v uint256.Int) {
	if v.IsZero() {
		delete(w.balances, addr)
		return
	}
	w.balances[addr] = v
}
