// Package order holds the exchange's resting orders and their lifecycle flags.
package order

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Status is derived from the lifecycle flags.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// Order is immutable after creation except for Cancelled and Filled, which
// are mutually exclusive and set at most once.
type Order struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	AssetGet   common.Address `json:"asset_get"`
	AmountGet  *uint256.Int   `json:"amount_get"`
	AssetGive  common.Address `json:"asset_give"`
	AmountGive *uint256.Int   `json:"amount_give"`
	CreatedAt  time.Time      `json:"created_at"`
	Cancelled  bool           `json:"cancelled"`
	Filled     bool           `json:"filled"`
}

func (o Order) Status() Status {
	switch {
	case o.Filled:
		return StatusFilled
	case o.Cancelled:
		return StatusCancelled
	default:
		return StatusOpen
	}
}

// Final reports whether the order reached a terminal state.
func (o Order) Final() bool {
	return o.Filled || o.Cancelled
}

// Filter selects orders in List.
type Filter func(Order) bool

// ByStatus matches orders in status s. An empty status matches everything.
func ByStatus(s Status) Filter {
	return func(o Order) bool {
		return s == "" || o.Status() == s
	}
}

// ByAccount matches orders made by account.
func ByAccount(account common.Address) Filter {
	return func(o Order) bool {
		return o.Maker == account
	}
}

// All combines filters with logical AND.
func All(fs ...Filter) Filter {
	return func(o Order) bool {
		for _, f := range fs {
			if f != nil && !f(o) {
				return false
			}
		}
		return true
	}
}
