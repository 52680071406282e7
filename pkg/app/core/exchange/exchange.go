// Package exchange is the custodial exchange core: escrow deposits and
// withdrawals for the native asset and tokens, resting orders, and fee-bearing
// bilateral settlement.
//
// Every operation is atomic. It either commits all of its ledger and order
// mutations and emits exactly one event, or returns an error and changes
// nothing, including collaborator state touched through the journal.
package exchange

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
	"github.com/uhyunpark/leskodex/pkg/app/core/ledger"
	"github.com/uhyunpark/leskodex/pkg/app/core/order"
	"github.com/uhyunpark/leskodex/pkg/app/core/token"
	"github.com/uhyunpark/leskodex/pkg/util"
)

// Wallet moves the native asset.
type Wallet interface {
	Send(ctx context.Context, from, to common.Address, amount *uint256.Int) error
}

// Tokens resolves token asset identifiers to contracts.
type Tokens interface {
	Lookup(addr common.Address) (token.Contract, bool)
}

// Config fixes the exchange's address and fee policy for its lifetime.
type Config struct {
	Address    common.Address
	FeeAccount common.Address
	FeePercent uint64
}

// Exchange holds escrow balances and resting orders on behalf of depositors.
type Exchange struct {
	// opMu serializes outermost operations. stateMu guards the committed
	// tables against readers while a frame is flushed.
	opMu    sync.Mutex
	stateMu sync.RWMutex

	addr       common.Address
	feeAccount common.Address
	feePercent uint256.Int

	ledger *ledger.Table
	orders *order.Table
	wallet Wallet
	tokens Tokens
	clock  util.Clock

	subsMu sync.Mutex
	subs   []func(Event)
}

// New creates an exchange with an empty ledger and order table. Native value
// reaches it through w, tokens through the contracts tokens resolves.
func New(cfg Config, w Wallet, tokens Tokens, clock util.Clock) *Exchange {
	if clock == nil {
		clock = util.RealClock{}
	}
	e := &Exchange{
		addr:       cfg.Address,
		feeAccount: cfg.FeeAccount,
		ledger:     ledger.NewTable(),
		orders:     order.NewTable(),
		wallet:     w,
		tokens:     tokens,
		clock:      clock,
	}
	e.feePercent.SetUint64(cfg.FeePercent)
	return e
}

// Subscribe registers fn for events of committed operations. Delivery is
// synchronous and in commit order.
func (e *Exchange) Subscribe(fn func(Event)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *Exchange) publish(events []Event) {
	e.subsMu.Lock()
	subs := slices.Clone(e.subs)
	e.subsMu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (e *Exchange) Address() common.Address    { return e.addr }
func (e *Exchange) FeeAccount() common.Address { return e.feeAccount }
func (e *Exchange) FeePercent() uint64         { return e.feePercent.Uint64() }

// Fee returns the fee a taker pays on top of amountGet.
func (e *Exchange) Fee(amountGet *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulOverflow(amountGet, &e.feePercent)
	if overflow {
		return nil, fmt.Errorf("%w: fee on %s", ErrOverflow, amountGet.Dec())
	}
	return fee.Div(fee, uint256.NewInt(100)), nil
}

// OnReceive accepts native value only as part of a DepositNative call.
func (e *Exchange) OnReceive(ctx context.Context, from common.Address, amount *uint256.Int) error {
	f, ok := e.frameFrom(ctx)
	if !ok || f.payable == nil || f.payable.from != from || !f.payable.amount.Eq(amount) {
		return ErrDirectTransfer
	}
	f.payable = nil
	return nil
}

func (e *Exchange) DepositNative(ctx context.Context, account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	if account == e.addr {
		return ErrSelfDeposit
	}
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		f.payable = &payment{from: account, amount: amount}
		err := e.wallet.Send(ctx, account, e.addr, amount)
		f.payable = nil
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
		}
		bal, err := f.ledger.Credit(asset.Native, account, amount)
		if err != nil {
			return err
		}
		f.emit(Deposit{Asset: asset.Native, Account: account, Amount: amount.Clone(), Balance: bal})
		return nil
	})
}

func (e *Exchange) WithdrawNative(ctx context.Context, account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		bal, err := f.ledger.Debit(asset.Native, account, amount)
		if err != nil {
			return err
		}
		if err := e.wallet.Send(ctx, e.addr, account, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		f.emit(Withdraw{Asset: asset.Native, Account: account, Amount: amount.Clone(), Balance: bal})
		return nil
	})
}

func (e *Exchange) DepositToken(ctx context.Context, tok, account common.Address, amount *uint256.Int) error {
	if asset.IsNative(tok) {
		return fmt.Errorf("%w: native asset is not a token", ErrInvalidAsset)
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	if account == e.addr {
		return ErrSelfDeposit
	}
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		c, err := e.contract(tok)
		if err != nil {
			return err
		}
		if err := c.TransferFrom(ctx, e.addr, account, e.addr, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		bal, err := f.ledger.Credit(tok, account, amount)
		if err != nil {
			return err
		}
		f.emit(Deposit{Asset: tok, Account: account, Amount: amount.Clone(), Balance: bal})
		return nil
	})
}

func (e *Exchange) WithdrawToken(ctx context.Context, tok, account common.Address, amount *uint256.Int) error {
	if asset.IsNative(tok) {
		return fmt.Errorf("%w: native asset is not a token", ErrInvalidAsset)
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		bal, err := f.ledger.Debit(tok, account, amount)
		if err != nil {
			return err
		}
		c, err := e.contract(tok)
		if err != nil {
			return err
		}
		if err := c.Transfer(ctx, e.addr, account, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		f.emit(Withdraw{Asset: tok, Account: account, Amount: amount.Clone(), Balance: bal})
		return nil
	})
}

func (e *Exchange) contract(tok common.Address) (token.Contract, error) {
	if e.tokens == nil {
		return nil, fmt.Errorf("%w: no contract at %s", ErrTransferRejected, tok.Hex())
	}
	c, ok := e.tokens.Lookup(tok)
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", ErrTransferRejected, tok.Hex())
	}
	return c, nil
}

// MakeOrder records a resting order. Escrow is not checked until fill.
func (e *Exchange) MakeOrder(ctx context.Context, maker, assetGet common.Address, amountGet *uint256.Int, assetGive common.Address, amountGive *uint256.Int) (order.Order, error) {
	if amountGet == nil || amountGive == nil {
		return order.Order{}, ErrInvalidAmount
	}
	var created order.Order
	err := e.run(ctx, func(ctx context.Context, f *frame) error {
		created = f.orders.Insert(order.Order{
			Maker:      maker,
			AssetGet:   assetGet,
			AmountGet:  amountGet.Clone(),
			AssetGive:  assetGive,
			AmountGive: amountGive.Clone(),
			CreatedAt:  e.clock.Now().UTC(),
		})
		f.emit(orderCreated(created))
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return created, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, caller common.Address, id uint64) error {
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		o, ok := f.orders.Get(id)
		if !ok || o.Maker == (common.Address{}) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		if caller != o.Maker {
			return fmt.Errorf("%w: %s is not the maker of order %d", ErrUnauthorized, caller.Hex(), id)
		}
		switch {
		case o.Filled:
			return fmt.Errorf("%w: %w", ErrAlreadyFinalized, ErrAlreadyFilled)
		case o.Cancelled:
			return fmt.Errorf("%w: %w", ErrAlreadyFinalized, ErrAlreadyCancelled)
		}

		o.Cancelled = true
		if err := f.orders.Update(o); err != nil {
			return err
		}
		f.emit(OrderCancelled{
			ID: o.ID, Maker: o.Maker,
			AssetGet: o.AssetGet, AmountGet: o.AmountGet,
			AssetGive: o.AssetGive, AmountGive: o.AmountGive,
			Timestamp: e.clock.Now().UTC(),
		})
		return nil
	})
}

// FillOrder settles order id against taker. The taker pays amount_get plus the
// fee in asset_get; the maker receives exactly amount_get and pays amount_give.
func (e *Exchange) FillOrder(ctx context.Context, taker common.Address, id uint64) error {
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		o, ok := f.orders.Get(id)
		if !ok {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		if o.Filled {
			return fmt.Errorf("%w: %d", ErrAlreadyFilled, id)
		}
		if o.Cancelled {
			return fmt.Errorf("%w: %d", ErrAlreadyCancelled, id)
		}

		fee, err := e.Fee(o.AmountGet)
		if err != nil {
			return err
		}
		cost, overflow := new(uint256.Int).AddOverflow(o.AmountGet, fee)
		if overflow {
			return fmt.Errorf("%w: cost of order %d", ErrOverflow, id)
		}

		if _, err := f.ledger.Debit(o.AssetGet, taker, cost); err != nil {
			return err
		}
		if _, err := f.ledger.Credit(o.AssetGet, o.Maker, o.AmountGet); err != nil {
			return err
		}
		if _, err := f.ledger.Credit(o.AssetGet, e.feeAccount, fee); err != nil {
			return err
		}
		if _, err := f.ledger.Debit(o.AssetGive, o.Maker, o.AmountGive); err != nil {
			return err
		}
		if _, err := f.ledger.Credit(o.AssetGive, taker, o.AmountGive); err != nil {
			return err
		}

		o.Filled = true
		if err := f.orders.Update(o); err != nil {
			return err
		}
		f.emit(Trade{
			ID: o.ID, Maker: o.Maker,
			AssetGet: o.AssetGet, AmountGet: o.AmountGet,
			AssetGive: o.AssetGive, AmountGive: o.AmountGive,
			Taker:     taker,
			Timestamp: e.clock.Now().UTC(),
		})
		return nil
	})
}

// BalanceOf returns the committed escrow balance.
func (e *Exchange) BalanceOf(assetID, account common.Address) *uint256.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ledger.BalanceOf(assetID, account)
}

// Sum returns the total escrowed in assetID across all accounts.
func (e *Exchange) Sum(assetID common.Address) *uint256.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ledger.Sum(assetID)
}

// Balances returns every ledger entry sorted by (asset, account).
func (e *Exchange) Balances() []ledger.Entry {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ledger.Entries()
}

func (e *Exchange) Order(id uint64) (order.Order, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.orders.Get(id)
}

func (e *Exchange) OrderCount() uint64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.orders.Count()
}

// Orders returns committed orders matching f in id order.
func (e *Exchange) Orders(f order.Filter) []order.Order {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.orders.List(f)
}
