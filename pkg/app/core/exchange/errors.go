package exchange

import (
	"errors"

	"github.com/uhyunpark/leskodex/pkg/app/core/ledger"
)

var (
	ErrInvalidAsset        = errors.New("invalid asset")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrOverflow            = ledger.ErrOverflow
	ErrTransferRejected    = errors.New("transfer rejected")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyFilled       = errors.New("order already filled")
	ErrAlreadyCancelled    = errors.New("order already cancelled")
	ErrAlreadyFinalized    = errors.New("order already finalized")
	ErrDirectTransfer      = errors.New("direct native transfer not accepted")
	ErrInvalidAmount       = errors.New("invalid amount")
	// ErrSelfDeposit rejects deposits credited to the exchange itself.
	ErrSelfDeposit         = errors.New("exchange cannot deposit into its own escrow")
)
