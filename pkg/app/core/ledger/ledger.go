// Package ledger holds per-asset, per-account escrow balances.
//
// The committed Table is only mutated through an Overlay: callers stage
// credits and debits in an overlay and either Commit it into its parent or
// drop it. Overlays nest, so a nested overlay acts as a savepoint.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
)

// Key addresses one balance entry.
type Key struct {
	Asset   common.Address
	Account common.Address
}

// Entry is a balance entry with its key.
type Entry struct {
	Key
	Amount uint256.Int
}

// View is the read side shared by Table and Overlay.
type View interface {
	Get(k Key) uint256.Int
}

type store interface {
	View
	lookup(k Key) (uint256.Int, bool)
	put(k Key, v uint256.Int)
	del(k Key)
}

// Table is the committed balance table. Not safe for concurrent use; the
// exchange serializes access.
type Table struct {
	entries map[Key]uint256.Int
}

func NewTable() *Table {
	return &Table{entries: make(map[Key]uint256.Int)}
}

// Get returns the entry for k, zero when absent.
func (t *Table) Get(k Key) uint256.Int {
	return t.entries[k]
}

func (t *Table) lookup(k Key) (uint256.Int, bool) {
	v, ok := t.entries[k]
	return v, ok
}

func (t *Table) put(k Key, v uint256.Int) {
	t.entries[k] = v
}

func (t *Table) del(k Key) {
	delete(t.entries, k)
}

// BalanceOf returns a copy of the balance of account in asset.
func (t *Table) BalanceOf(asset, account common.Address) *uint256.Int {
	v := t.Get(Key{Asset: asset, Account: account})
	return &v
}

// Sum returns the total held for asset across all accounts.
func (t *Table) Sum(asset common.Address) *uint256.Int {
	total := new(uint256.Int)
	for k, v := range t.entries {
		if k.Asset != asset {
			continue
		}
		total.Add(total, &v)
	}
	return total
}

// Entries returns all entries sorted by (asset, account).
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for k, v := range t.entries {
		out = append(out, Entry{Key: k, Amount: v})
	}
	sortEntries(out)
	return out
}

// Len returns the number of entries (including zero balances).
func (t *Table) Len() int {
	return len(t.entries)
}

// Begin opens an overlay on top of the committed table.
func (t *Table) Begin() *Overlay {
	return newOverlay(t)
}

// Overlay stages balance mutations over a parent view.
type Overlay struct {
	parent store
	writes map[Key]uint256.Int
}

func newOverlay(parent store) *Overlay {
	return &Overlay{parent: parent, writes: make(map[Key]uint256.Int)}
}

// Begin opens a nested overlay whose Commit flushes into o.
func (o *Overlay) Begin() *Overlay {
	return newOverlay(o)
}

func (o *Overlay) Get(k Key) uint256.Int {
	if v, ok := o.writes[k]; ok {
		return v
	}
	return o.parent.Get(k)
}

func (o *Overlay) lookup(k Key) (uint256.Int, bool) {
	if v, ok := o.writes[k]; ok {
		return v, true
	}
	return o.parent.lookup(k)
}

func (o *Overlay) put(k Key, v uint256.Int) {
	o.writes[k] = v
}

func (o *Overlay) del(k Key) {
	delete(o.writes, k)
}

// BalanceOf returns the staged balance of account in asset.
func (o *Overlay) BalanceOf(asset, account common.Address) *uint256.Int {
	v := o.Get(Key{Asset: asset, Account: account})
	return &v
}

// Credit adds amount to the entry, creating it at zero first if absent.
// Returns the new balance.
func (o *Overlay) Credit(asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	k := Key{Asset: asset, Account: account}
	cur := o.Get(k)
	next, overflow := new(uint256.Int).AddOverflow(&cur, orZero(amount))
	if overflow {
		return nil, fmt.Errorf("%w: credit %s to %s", ErrOverflow, orZero(amount).Dec(), account.Hex())
	}
	o.put(k, *next)
	return next.Clone(), nil
}

// Debit subtracts amount from the entry. The entry is left untouched when the
// balance is short. Returns the new balance.
func (o *Overlay) Debit(asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	k := Key{Asset: asset, Account: account}
	cur := o.Get(k)
	amt := orZero(amount)
	if cur.Lt(amt) {
		return nil, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, account.Hex(), cur.Dec(), amt.Dec())
	}
	next := new(uint256.Int).Sub(&cur, amt)
	o.put(k, *next)
	return next.Clone(), nil
}

// Changes returns the staged writes sorted by key.
func (o *Overlay) Changes() []Entry {
	out := make([]Entry, 0, len(o.writes))
	for k, v := range o.writes {
		out = append(out, Entry{Key: k, Amount: v})
	}
	sortEntries(out)
	return out
}

// Commit flushes staged writes into the parent and clears the overlay. The
// returned func restores the parent to its state before the flush.
func (o *Overlay) Commit() (undo func()) {
	type prior struct {
		v  uint256.Int
		ok bool
	}
	saved := make(map[Key]prior, len(o.writes))
	for k, v := range o.writes {
		old, ok := o.parent.lookup(k)
		saved[k] = prior{old, ok}
		o.parent.put(k, v)
	}
	o.writes = make(map[Key]uint256.Int)
	parent := o.parent
	return func() {
		for k, p := range saved {
			if p.ok {
				parent.put(k, p.v)
			} else {
				parent.del(k)
			}
		}
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if c := bytes.Compare(es[i].Asset[:], es[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(es[i].Account[:], es[j].Account[:]) < 0
	})
}
