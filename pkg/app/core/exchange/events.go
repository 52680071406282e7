package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/order"
)

const (
	KindDeposit        = "Deposit"
	KindWithdraw       = "Withdraw"
	KindOrderCreated   = "OrderCreated"
	KindOrderCancelled = "OrderCancelled"
	KindTrade          = "Trade"
)

// Kinds lists every event kind the exchange emits.
var Kinds = []string{KindDeposit, KindWithdraw, KindOrderCreated, KindOrderCancelled, KindTrade}

// Event is emitted once per successful operation, after it commits.
type Event interface {
	Kind() string
}

type Deposit struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

func (Deposit) Kind() string { return KindDeposit }

type Withdraw struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

func (Withdraw) Kind() string { return KindWithdraw }

type OrderCreated struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	AssetGet   common.Address `json:"asset_get"`
	AmountGet  *uint256.Int   `json:"amount_get"`
	AssetGive  common.Address `json:"asset_give"`
	AmountGive *uint256.Int   `json:"amount_give"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (OrderCreated) Kind() string { return KindOrderCreated }

type OrderCancelled struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	AssetGet   common.Address `json:"asset_get"`
	AmountGet  *uint256.Int   `json:"amount_get"`
	AssetGive  common.Address `json:"asset_give"`
	AmountGive *uint256.Int   `json:"amount_give"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (OrderCancelled) Kind() string { return KindOrderCancelled }

type Trade struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	AssetGet   common.Address `json:"asset_get"`
	AmountGet  *uint256.Int   `json:"amount_get"`
	AssetGive  common.Address `json:"asset_give"`
	AmountGive *uint256.Int   `json:"amount_give"`
	Taker      common.Address `json:"taker"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (Trade) Kind() string { return KindTrade }

// Accounts returns the accounts an event concerns, for per-account routing.
func Accounts(ev Event) []common.Address {
	switch e := ev.(type) {
	case Deposit:
		return []common.Address{e.Account}
	case Withdraw:
		return []common.Address{e.Account}
	case OrderCreated:
		return []common.Address{e.Maker}
	case OrderCancelled:
		return []common.Address{e.Maker}
	case Trade:
		if e.Taker == e.Maker {
			return []common.Address{e.Maker}
		}
		return []common.Address{e.Maker, e.Taker}
	}
	return nil
}

func orderCreated(o order.Order) OrderCreated {
	return OrderCreated{
		ID: o.ID, Maker: o.Maker,
		AssetGet: o.AssetGet, AmountGet: o.AmountGet,
		AssetGive: o.AssetGive, AmountGive: o.AmountGive,
		CreatedAt: o.CreatedAt,
	}
}
