// Package token implements a fixed-supply fungible token with ERC-20
// transfer, approve and transferFrom semantics.
package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/journal"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrInvalidSpender        = errors.New("invalid spender")
)

// Contract is the token surface other components call into.
type Contract interface {
	Address() common.Address
	Transfer(ctx context.Context, sender, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
	BalanceOf(owner common.Address) *uint256.Int
}

type Config struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   *uint256.Int // smallest units, minted to the deployer
}

type Holder struct {
	Address common.Address `json:"address"`
	Amount  *uint256.Int   `json:"amount"`
}

type allowanceKey struct {
	owner, spender common.Address
}

type Token struct {
	mu         sync.Mutex
	addr       common.Address
	cfg        Config
	balances   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
	subs       []func(Event)
}

// New deploys a token from deployer at the given account nonce. The whole
// supply is minted to the deployer.
func New(deployer common.Address, nonce uint64, cfg Config) *Token {
	supply := new(uint256.Int)
	if cfg.Supply != nil {
		supply = cfg.Supply.Clone()
	}
	cfg.Supply = supply
	t := &Token{
		addr:       crypto.CreateAddress(deployer, nonce),
		cfg:        cfg,
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
	}
	if !supply.IsZero() {
		t.balances[deployer] = *supply
	}
	return t
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Name() string            { return t.cfg.Name }
func (t *Token) Symbol() string          { return t.cfg.Symbol }
func (t *Token) Decimals() uint8         { return t.cfg.Decimals }
func (t *Token) TotalSupply() *uint256.Int {
	return t.cfg.Supply.Clone()
}

// Subscribe registers fn for events of committed operations.
func (t *Token) Subscribe(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.balances[owner]
	return &v
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.allowances[allowanceKey{owner, spender}]
	return &v
}

// Holders returns nonzero balances sorted by address.
func (t *Token) Holders() []Holder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Holder, 0, len(t.balances))
	for addr, v := range t.balances {
		if v.IsZero() {
			continue
		}
		out = append(out, Holder{Address: addr, Amount: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

func (t *Token) Transfer(ctx context.Context, sender, to common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	_, j, owned := journal.Begin(ctx)

	t.mu.Lock()
	err := t.move(j, sender, to, amount)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.emit(j, Transfer{Token: t.addr, From: sender, To: to, Value: amount.Clone()})
	if owned {
		j.Commit()
	}
	return nil
}

func (t *Token) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	if spender == (common.Address{}) {
		return ErrInvalidSpender
	}
	_, j, owned := journal.Begin(ctx)

	t.mu.Lock()
	k := allowanceKey{owner, spender}
	prev, had := t.allowances[k]
	t.allowances[k] = *amount
	j.Undo(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if had {
			t.allowances[k] = prev
		} else {
			delete(t.allowances, k)
		}
	})
	t.mu.Unlock()

	t.emit(j, Approval{Token: t.addr, Owner: owner, Spender: spender, Value: amount.Clone()})
	if owned {
		j.Commit()
	}
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// the allowance from granted to spender.
func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	_, j, owned := journal.Begin(ctx)
	snap := j.Snapshot()

	t.mu.Lock()
	k := allowanceKey{from, spender}
	allowed := t.allowances[k]
	if allowed.Lt(amount) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s approved %s for %s, needs %s",
			ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowed.Dec(), amount.Dec())
	}
	if err := t.move(j, from, to, amount); err != nil {
		t.mu.Unlock()
		j.RevertTo(snap)
		return err
	}
	t.allowances[k] = *new(uint256.Int).Sub(&allowed, amount)
	j.Undo(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.allowances[k] = allowed
	})
	t.mu.Unlock()

	t.emit(j, Transfer{Token: t.addr, From: from, To: to, Value: amount.Clone()})
	if owned {
		j.Commit()
	}
	return nil
}

// move must be called with t.mu held.
func (t *Token) move(j *journal.Journal, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	src := t.balances[from]
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), src.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	dst := t.balances[to]
	t.balances[from] = *new(uint256.Int).Sub(&src, amount)
	t.balances[to] = *new(uint256.Int).Add(&dst, amount)
	j.Undo(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.balances[from] = src
		t.balances[to] = dst
	})
	return nil
}

func (t *Token) emit(j *journal.Journal, ev Event) {
	j.Defer(func() {
		t.mu.Lock()
		subs := slices.Clone(t.subs)
		t.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	})
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
