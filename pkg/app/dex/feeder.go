package dex

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
	"github.com/uhyunpark/leskodex/pkg/app/core/transaction"
	"github.com/uhyunpark/leskodex/pkg/crypto"
	"github.com/uhyunpark/leskodex/pkg/storage"
)

// FeederConfig controls local traffic generation
type FeederConfig struct {
	Interval    time.Duration // How often to submit a batch
	BatchSize   int           // Transactions per batch
	NumAccounts int           // Number of simulated traders
	Seed        int64         // 0 seeds from the wall clock

	// Funder seeds each trader with native units and tokens. It must hold
	// both, e.g. the deployer key.
	Funder *crypto.Signer
}

// DefaultFeederConfig returns reasonable defaults for local testing
func DefaultFeederConfig(funder *crypto.Signer) FeederConfig {
	return FeederConfig{
		Interval:    500 * time.Millisecond,
		BatchSize:   5,
		NumAccounts: 8,
		Funder:      funder,
	}
}

// FeederStats counts submitted transactions by outcome.
type FeederStats struct {
	OK       int
	Failed   int
	Rejected int
}

// Feeder drives signed deposits and order flow through an App.
type Feeder struct {
	app  *App
	cfg  FeederConfig
	log  *zap.Logger
	rng  *rand.Rand
	tok  common.Address
	open []uint64 // orders made by the feeder that may still be live

	traders []*crypto.Signer
	owner   map[uint64]int // order id -> trader index
	stats   FeederStats
}

func NewFeeder(app *App, cfg FeederConfig, log *zap.Logger) (*Feeder, error) {
	if cfg.Funder == nil {
		return nil, fmt.Errorf("feeder: funder key required")
	}
	if cfg.NumAccounts < 2 {
		cfg.NumAccounts = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop()
	}

	traders := make([]*crypto.Signer, cfg.NumAccounts)
	for i := range traders {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		traders[i] = s
	}
	return &Feeder{
		app:     app,
		cfg:     cfg,
		log:     log,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		tok:     app.Token().Address(),
		traders: traders,
		owner:   make(map[uint64]int),
	}, nil
}

func (f *Feeder) Traders() []*crypto.Signer { return f.traders }

func (f *Feeder) Stats() FeederStats { return f.stats }

// Fund gives every trader native units and tokens from the funder, then
// deposits part of both into the exchange.
func (f *Feeder) Fund(ctx context.Context) error {
	exchangeAddr := f.app.Exchange().Address()
	for _, t := range f.traders {
		steps := []struct {
			s   *crypto.Signer
			act transaction.Action
		}{
			{f.cfg.Funder, transaction.Action{Type: transaction.TxNativeTransfer, To: t.Address(), Amount: asset.Units(10)}},
			{f.cfg.Funder, transaction.Action{Type: transaction.TxTokenTransfer, Asset: f.tok, To: t.Address(), Amount: asset.Units(1000)}},
			{t, transaction.Action{Type: transaction.TxDepositNative, Amount: asset.Units(5)}},
			{t, transaction.Action{Type: transaction.TxTokenApprove, Asset: f.tok, To: exchangeAddr, Amount: asset.Units(500)}},
			{t, transaction.Action{Type: transaction.TxDepositToken, Asset: f.tok, Amount: asset.Units(500)}},
		}
		for _, st := range steps {
			r, err := f.submit(ctx, st.s, st.act)
			if err != nil {
				return err
			}
			if r.Status != storage.StatusOK {
				return fmt.Errorf("feeder: funding %s: %s", t.Address().Hex(), r.Error)
			}
		}
	}
	f.log.Info("feeder_funded", zap.Int("traders", len(f.traders)))
	return nil
}

// Step submits one randomly chosen action: mostly new orders and fills,
// occasionally a cancel.
func (f *Feeder) Step(ctx context.Context) error {
	r := f.rng.Intn(100)
	switch {
	case len(f.open) > 0 && r < 40:
		return f.fill(ctx)
	case len(f.open) > 0 && r < 50:
		return f.cancel(ctx)
	default:
		return f.make(ctx)
	}
}

func (f *Feeder) make(ctx context.Context) error {
	i := f.rng.Intn(len(f.traders))
	// 0.01-0.1 native against 1-10 tokens, either direction
	native := scaled(uint64(f.rng.Intn(10)+1), 16)
	tokens := asset.Units(uint64(f.rng.Intn(10) + 1))
	act := transaction.Action{Type: transaction.TxMakeOrder, AssetGet: f.tok, AmountGet: tokens, AssetGive: asset.Native, AmountGive: native}
	if f.rng.Intn(2) == 1 {
		act.AssetGet, act.AmountGet, act.AssetGive, act.AmountGive = asset.Native, native, f.tok, tokens
	}
	r, err := f.submit(ctx, f.traders[i], act)
	if err != nil {
		return err
	}
	if r.Status == storage.StatusOK {
		f.open = append(f.open, r.OrderID)
		f.owner[r.OrderID] = i
	}
	return nil
}

func (f *Feeder) fill(ctx context.Context) error {
	k := f.rng.Intn(len(f.open))
	id := f.open[k]
	maker := f.owner[id]
	taker := f.rng.Intn(len(f.traders) - 1)
	if taker >= maker {
		taker++
	}
	_, err := f.submit(ctx, f.traders[taker], transaction.Action{Type: transaction.TxFillOrder, OrderID: id})
	f.retire(k)
	return err
}

func (f *Feeder) cancel(ctx context.Context) error {
	k := f.rng.Intn(len(f.open))
	id := f.open[k]
	_, err := f.submit(ctx, f.traders[f.owner[id]], transaction.Action{Type: transaction.TxCancelOrder, OrderID: id})
	f.retire(k)
	return err
}

// retire drops an order from the live set once a fill or cancel was tried
// on it; a failed fill leaves it final or unfillable by this feeder.
func (f *Feeder) retire(k int) {
	delete(f.owner, f.open[k])
	f.open = slices.Delete(f.open, k, k+1)
}

func (f *Feeder) submit(ctx context.Context, s *crypto.Signer, act transaction.Action) (*Receipt, error) {
	act.Account = s.Address()
	act.Nonce = f.app.Nonce(act.Account) + 1
	tx, err := transaction.Sign(s, f.app.Domain(), &act)
	if err != nil {
		return nil, err
	}
	raw, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	r, err := f.app.Apply(ctx, raw)
	if err != nil {
		f.stats.Rejected++
		return nil, fmt.Errorf("feeder: %s: %w", act.Type, err)
	}
	if r.Status == storage.StatusOK {
		f.stats.OK++
	} else {
		f.stats.Failed++
		f.log.Debug("feeder_tx_failed", zap.String("kind", string(act.Type)), zap.String("err", r.Error))
	}
	return r, nil
}

// Run funds the traders, then submits batches until ctx is done.
func (f *Feeder) Run(ctx context.Context) error {
	if err := f.Fund(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	lastLog := start
	for {
		select {
		case <-ctx.Done():
			f.log.Info("feeder_stopped", zap.Int("ok", f.stats.OK), zap.Int("failed", f.stats.Failed), zap.Duration("elapsed", time.Since(start).Round(time.Second)))
			return nil
		case <-ticker.C:
			for range f.cfg.BatchSize {
				if err := f.Step(ctx); err != nil {
					return err
				}
			}
			if time.Since(lastLog) >= 10*time.Second {
				lastLog = time.Now()
				f.log.Info("feeder_stats", zap.Int("ok", f.stats.OK), zap.Int("failed", f.stats.Failed), zap.Int("open", len(f.open)))
			}
		}
	}
}

func scaled(v uint64, exp uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(exp)))
}
