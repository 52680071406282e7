// Package dex is the serialized state machine in front of the exchange. It
// authenticates signed transactions, runs them one at a time against the
// wallet, token and exchange, records every outcome in the durable log, and
// rebuilds state from that log on start.
package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/app/core/exchange"
	"github.com/uhyunpark/leskodex/pkg/app/core/journal"
	"github.com/uhyunpark/leskodex/pkg/app/core/token"
	"github.com/uhyunpark/leskodex/pkg/app/core/transaction"
	"github.com/uhyunpark/leskodex/pkg/app/core/wallet"
	"github.com/uhyunpark/leskodex/pkg/crypto"
	"github.com/uhyunpark/leskodex/pkg/events"
	"github.com/uhyunpark/leskodex/pkg/storage"
	"github.com/uhyunpark/leskodex/pkg/util"
)

var (
	ErrBadNonce       = errors.New("invalid nonce")
	ErrUnknownToken   = errors.New("unknown token")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrHalted         = errors.New("app halted")
	ErrReplayDiverged = errors.New("replay diverged from log")
)

type Config struct {
	Deployer   common.Address
	FeeAccount common.Address
	FeePercent uint64
	ChainID    uint64
	Token      token.Config
	Genesis    map[common.Address]*uint256.Int
}

// Publisher receives the events of each committed transaction, in order.
type Publisher interface {
	Publish(evs []events.Event)
}

type Option func(*App)

// WithClock sets the clock that timestamps new transactions.
func WithClock(c util.Clock) Option {
	return func(a *App) { a.now = c }
}

func WithPublisher(p Publisher) Option {
	return func(a *App) { a.out = p }
}

// Receipt is the outcome of one transaction in the global sequence.
type Receipt struct {
	Seq       uint64             `json:"seq"`
	Kind      transaction.TxType `json:"kind"`
	Account   common.Address     `json:"account"`
	Nonce     uint64             `json:"nonce"`
	Status    string             `json:"status"`
	Error     string             `json:"error,omitempty"`
	OrderID   uint64             `json:"order_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Events    []events.Event     `json:"events"`

	// Err is the execution error behind a failed status.
	Err error `json:"-"`
}

type App struct {
	mu    sync.RWMutex
	log   *zap.Logger
	store storage.Store
	out   Publisher

	now   util.Clock
	clock *util.ManualClock // pinned to the running transaction's timestamp

	wallet   *wallet.Wallet
	token    *token.Token
	tokens   *token.Registry
	exchange *exchange.Exchange
	domain   crypto.EIP712Domain
	verifier *transaction.Verifier
	chainID  uint64

	nonces  map[common.Address]uint64
	seq     uint64
	halted  error
	pending []events.Event

	// published is the last sequence handed to out; guarded by pubMu.
	pubMu     sync.Mutex
	pubCond   *sync.Cond
	published uint64
}

// New deploys the token and the exchange from cfg.Deployer, seeds the wallet,
// then replays store to restore the committed sequence.
func New(cfg Config, store storage.Store, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent %d out of range", cfg.FeePercent)
	}
	w, err := wallet.New(cfg.Genesis)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:     log,
		store:   store,
		now:     util.RealClock{},
		clock:   util.NewManualClock(time.Unix(0, 0).UTC()),
		wallet:  w,
		chainID: cfg.ChainID,
		nonces:  make(map[common.Address]uint64),
	}
	a.pubCond = sync.NewCond(&a.pubMu)
	for _, opt := range opts {
		opt(a)
	}

	a.token = token.New(cfg.Deployer, 0, cfg.Token)
	a.tokens = token.NewRegistry(a.token)
	a.exchange = exchange.New(exchange.Config{
		Address:    ethcrypto.CreateAddress(cfg.Deployer, 1),
		FeeAccount: cfg.FeeAccount,
		FeePercent: cfg.FeePercent,
	}, w, a.tokens, a.clock)
	w.Register(a.exchange.Address(), a.exchange)

	a.domain = crypto.DefaultDomain(a.exchange.Address())
	if cfg.ChainID != 0 {
		a.domain.ChainID = new(big.Int).SetUint64(cfg.ChainID)
	}
	a.chainID = a.domain.ChainID.Uint64()
	a.verifier = transaction.NewVerifier(a.domain)

	a.exchange.Subscribe(func(ev exchange.Event) {
		a.collect(ev.Kind(), exchange.Accounts(ev), ev)
	})
	a.token.Subscribe(func(ev token.Event) {
		a.collect(ev.Kind(), tokenAccounts(ev), ev)
	})

	if err := a.replay(); err != nil {
		return nil, err
	}
	a.published = a.seq
	return a, nil
}

// Apply runs one signed transaction. Transactions that fail to parse, verify
// or match the account nonce are rejected with an error and never sequenced.
// Every other transaction is sequenced and logged; execution failures are
// reported in the receipt.
func (a *App) Apply(ctx context.Context, raw []byte) (*Receipt, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return nil, err
	}
	act, err := a.verifier.Verify(tx)
	if err != nil {
		return nil, err
	}
	body, err := tx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transaction.ErrMalformed, err)
	}

	a.mu.Lock()
	r, err := a.sequence(ctx, act, body)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.publish(r)
	return r, nil
}

// publish hands r's events to the publisher once every earlier sequence has
// been handed over. It runs without a.mu so a slow publisher cannot stall
// sequencing or reads.
func (a *App) publish(r *Receipt) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	for a.published+1 != r.Seq {
		a.pubCond.Wait()
	}
	if a.out != nil {
		a.out.Publish(r.Events)
	}
	a.published = r.Seq
	a.pubCond.Broadcast()
}

// sequence checks the nonce, executes and logs one transaction. Callers
// hold a.mu.
func (a *App) sequence(ctx context.Context, act *transaction.Action, body []byte) (*Receipt, error) {
	if a.halted != nil {
		return nil, fmt.Errorf("%w: %w", ErrHalted, a.halted)
	}
	if err := a.checkNonce(act); err != nil {
		return nil, err
	}

	ts := a.now.Now().UTC()
	r := a.step(ctx, a.seq+1, ts, act)

	rec := storage.TxRecord{Seq: r.Seq, Timestamp: ts, Tx: body, Status: r.Status, Error: r.Error}
	if err := a.store.AppendTx(rec, eventRecords(r.Events)); err != nil {
		// Memory is now ahead of the log; refuse further work until restart.
		a.halted = err
		a.log.Error("tx_log_append_failed", zap.Uint64("seq", r.Seq), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrHalted, err)
	}

	a.log.Info("tx_applied",
		zap.Uint64("seq", r.Seq),
		zap.String("kind", string(r.Kind)),
		zap.String("account", r.Account.Hex()),
		zap.Uint64("nonce", r.Nonce),
		zap.String("status", r.Status),
		zap.String("error", r.Error),
		zap.Int("events", len(r.Events)),
	)
	return r, nil
}

func (a *App) checkNonce(act *transaction.Action) error {
	want := a.nonces[act.Account] + 1
	if act.Nonce != want {
		return fmt.Errorf("%w: account %s expected %d, got %d", ErrBadNonce, act.Account.Hex(), want, act.Nonce)
	}
	return nil
}

// step executes act as transaction seq at ts and advances the sequence.
// Callers hold a.mu.
func (a *App) step(ctx context.Context, seq uint64, ts time.Time, act *transaction.Action) *Receipt {
	a.clock.Set(ts)
	a.pending = a.pending[:0]

	orderID, err := a.execute(ctx, act)

	a.nonces[act.Account] = act.Nonce
	a.seq = seq

	r := &Receipt{
		Seq:       seq,
		Kind:      act.Type,
		Account:   act.Account,
		Nonce:     act.Nonce,
		Status:    storage.StatusOK,
		OrderID:   orderID,
		Timestamp: ts,
		Events:    make([]events.Event, 0, len(a.pending)),
	}
	if err != nil {
		r.Status = storage.StatusFailed
		r.Error = err.Error()
		r.Err = err
	}
	for i, ev := range a.pending {
		ev.Seq = seq
		ev.Index = i
		ev.Timestamp = ts
		r.Events = append(r.Events, ev)
	}
	a.pending = a.pending[:0]
	return r
}

// execute dispatches act under a fresh journal. Committing the journal
// delivers the events of every component the action touched.
func (a *App) execute(ctx context.Context, act *transaction.Action) (orderID uint64, err error) {
	ctx, j, _ := journal.Begin(ctx)
	defer func() {
		if err != nil {
			j.Revert()
			return
		}
		j.Commit()
	}()

	switch act.Type {
	case transaction.TxDepositNative:
		return 0, a.exchange.DepositNative(ctx, act.Account, act.Amount)

	case transaction.TxWithdrawNative:
		return 0, a.exchange.WithdrawNative(ctx, act.Account, act.Amount)

	case transaction.TxDepositToken:
		return 0, a.exchange.DepositToken(ctx, act.Asset, act.Account, act.Amount)

	case transaction.TxWithdrawToken:
		return 0, a.exchange.WithdrawToken(ctx, act.Asset, act.Account, act.Amount)

	case transaction.TxMakeOrder:
		o, err := a.exchange.MakeOrder(ctx, act.Account, act.AssetGet, act.AmountGet, act.AssetGive, act.AmountGive)
		if err != nil {
			return 0, err
		}
		return o.ID, nil

	case transaction.TxCancelOrder:
		return 0, a.exchange.CancelOrder(ctx, act.Account, act.OrderID)

	case transaction.TxFillOrder:
		return act.OrderID, a.exchange.FillOrder(ctx, act.Account, act.OrderID)

	case transaction.TxTokenTransfer:
		c, ok := a.tokens.Lookup(act.Asset)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownToken, act.Asset.Hex())
		}
		return 0, c.Transfer(ctx, act.Account, act.To, act.Amount)

	case transaction.TxTokenApprove:
		c, ok := a.tokens.Lookup(act.Asset)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownToken, act.Asset.Hex())
		}
		ap, ok := c.(approver)
		if !ok {
			return 0, fmt.Errorf("%w: %s does not support approvals", ErrUnknownToken, act.Asset.Hex())
		}
		return 0, ap.Approve(ctx, act.Account, act.To, act.Amount)

	case transaction.TxNativeTransfer:
		return 0, a.wallet.Send(ctx, act.Account, act.To, act.Amount)
	}
	return 0, fmt.Errorf("%w: unsupported type %q", transaction.ErrMalformed, act.Type)
}

type approver interface {
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
}

// collect buffers an event delivered by a component commit. It runs inside
// execute, under a.mu.
func (a *App) collect(kind string, accounts []common.Address, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.log.Error("event_encode_failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	a.pending = append(a.pending, events.Event{Kind: kind, Accounts: accounts, Data: data})
}

// replay re-executes the log. Each record must reproduce its logged outcome.
func (a *App) replay() error {
	recs, err := a.store.LoadTxs(1)
	if err != nil {
		return fmt.Errorf("load tx log: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	start := time.Now()
	for _, rec := range recs {
		if rec.Seq != a.seq+1 {
			return fmt.Errorf("%w: expected seq %d, found %d", ErrReplayDiverged, a.seq+1, rec.Seq)
		}
		tx, err := transaction.ParseTransaction(rec.Tx)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %w", ErrReplayDiverged, rec.Seq, err)
		}
		act, err := a.verifier.Verify(tx)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %w", ErrReplayDiverged, rec.Seq, err)
		}
		if err := a.checkNonce(act); err != nil {
			return fmt.Errorf("%w: seq %d: %w", ErrReplayDiverged, rec.Seq, err)
		}
		r := a.step(ctx, rec.Seq, rec.Timestamp, act)
		if r.Status != rec.Status {
			return fmt.Errorf("%w: seq %d logged %s, replayed %s (%s)", ErrReplayDiverged, rec.Seq, rec.Status, r.Status, r.Error)
		}
	}

	if len(recs) > 0 {
		a.log.Info("replay_complete",
			zap.Int("txs", len(recs)),
			zap.Uint64("seq", a.seq),
			zap.String("state_root", a.stateRoot().Hex()),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}

func tokenAccounts(ev token.Event) []common.Address {
	switch e := ev.(type) {
	case token.Transfer:
		if e.From == e.To {
			return []common.Address{e.From}
		}
		return []common.Address{e.From, e.To}
	case token.Approval:
		return []common.Address{e.Owner, e.Spender}
	}
	return nil
}

func eventRecords(evs []events.Event) []storage.EventRecord {
	out := make([]storage.EventRecord, len(evs))
	for i, ev := range evs {
		out[i] = storage.EventRecord{Seq: ev.Seq, Index: ev.Index, Kind: ev.Kind, Data: ev.Data}
	}
	return out
}
