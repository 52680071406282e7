// Package asset identifies the assets held in escrow and converts amounts
// between base units and human-readable decimals.
package asset

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Native is the reserved identifier of the platform's native asset.
// Token assets are identified by their contract address.
var Native = common.Address{}

// Decimals is the precision of both the native asset and the exchange token.
const Decimals int32 = 18

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrPrecision      = errors.New("amount has more decimals than the asset supports")
	ErrAmountOverflow = errors.New("amount does not fit in 256 bits")
)

// IsNative reports whether id is the native asset sentinel.
func IsNative(id common.Address) bool {
	return id == Native
}

// Name returns a short label for logs and API responses.
func Name(id common.Address) string {
	if IsNative(id) {
		return "native"
	}
	return id.Hex()
}

// Units returns whole * 10^Decimals, e.g. Units(1) is one ether in wei.
func Units(whole uint64) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(Decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(whole), scale)
}

// ParseAmount converts a decimal string such as "0.1" into base units.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, s)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

// FormatAmount renders base units as a decimal string with trailing zeros trimmed.
func FormatAmount(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}
