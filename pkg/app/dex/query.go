package dex

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
	"github.com/uhyunpark/leskodex/pkg/app/core/exchange"
	"github.com/uhyunpark/leskodex/pkg/app/core/order"
	"github.com/uhyunpark/leskodex/pkg/app/core/token"
	"github.com/uhyunpark/leskodex/pkg/app/core/wallet"
	"github.com/uhyunpark/leskodex/pkg/crypto"
	"github.com/uhyunpark/leskodex/pkg/storage"
)

type TokenInfo struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *uint256.Int   `json:"total_supply"`
}

type Info struct {
	Exchange   common.Address `json:"exchange"`
	FeeAccount common.Address `json:"fee_account"`
	FeePercent uint64         `json:"fee_percent"`
	ChainID    uint64         `json:"chain_id"`
	Token      TokenInfo      `json:"token"`
	OrderCount uint64         `json:"order_count"`
}

// AssetBalance splits an account's holding of one asset between the exchange
// escrow and what it holds directly.
type AssetBalance struct {
	Asset    common.Address `json:"asset"`
	Symbol   string         `json:"symbol"`
	Exchange *uint256.Int   `json:"exchange"`
	Wallet   *uint256.Int   `json:"wallet"`
}

type AccountBalances struct {
	Account common.Address `json:"account"`
	Assets  []AssetBalance `json:"assets"`
}

type StateInfo struct {
	Seq  uint64      `json:"seq"`
	Root common.Hash `json:"state_root"`
}

func (a *App) Info() Info {
	return Info{
		Exchange:   a.exchange.Address(),
		FeeAccount: a.exchange.FeeAccount(),
		FeePercent: a.exchange.FeePercent(),
		ChainID:    a.chainID,
		Token: TokenInfo{
			Address:     a.token.Address(),
			Name:        a.token.Name(),
			Symbol:      a.token.Symbol(),
			Decimals:    a.token.Decimals(),
			TotalSupply: a.token.TotalSupply(),
		},
		OrderCount: a.exchange.OrderCount(),
	}
}

func (a *App) Balances(account common.Address) AccountBalances {
	return AccountBalances{
		Account: account,
		Assets: []AssetBalance{
			{
				Asset:    asset.Native,
				Symbol:   asset.Name(asset.Native),
				Exchange: a.exchange.BalanceOf(asset.Native, account),
				Wallet:   a.wallet.BalanceOf(account),
			},
			{
				Asset:    a.token.Address(),
				Symbol:   a.token.Symbol(),
				Exchange: a.exchange.BalanceOf(a.token.Address(), account),
				Wallet:   a.token.BalanceOf(account),
			},
		},
	}
}

func (a *App) Order(id uint64) (order.Order, bool) {
	return a.exchange.Order(id)
}

// Orders returns committed orders matching every filter, in id order.
func (a *App) Orders(filters ...order.Filter) []order.Order {
	return a.exchange.Orders(order.All(filters...))
}

// Nonce returns the last nonce sequenced for account.
func (a *App) Nonce(account common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nonces[account]
}

// Events returns up to limit logged events of kind, newest first.
func (a *App) Events(kind string, limit int) ([]storage.EventRecord, error) {
	if !IsEventKind(kind) {
		return nil, ErrUnknownKind
	}
	return a.store.LoadEvents(kind, limit)
}

// IsEventKind reports whether kind is emitted by the exchange or the token.
func IsEventKind(kind string) bool {
	return slices.Contains(exchange.Kinds, kind) || kind == token.KindTransfer || kind == token.KindApproval
}

func (a *App) State() StateInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return StateInfo{Seq: a.seq, Root: a.stateRoot()}
}

// Domain is the EIP-712 domain clients sign against.
func (a *App) Domain() crypto.EIP712Domain { return a.domain }

func (a *App) Exchange() *exchange.Exchange { return a.exchange }
func (a *App) Token() *token.Token          { return a.token }
func (a *App) Wallet() *wallet.Wallet       { return a.wallet }
