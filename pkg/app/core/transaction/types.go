package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/crypto"
)

var (
	ErrMalformed        = errors.New("malformed transaction")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signer does not match account")
)

// TxType names the action a transaction carries
type TxType string

const (
	TxDepositNative  TxType = "deposit_native"
	TxWithdrawNative TxType = "withdraw_native"
	TxDepositToken   TxType = "deposit_token"
	TxWithdrawToken  TxType = "withdraw_token"
	TxMakeOrder      TxType = "make_order"
	TxCancelOrder    TxType = "cancel_order"
	TxFillOrder      TxType = "fill_order"
	TxTokenTransfer  TxType = "token_transfer"
	TxTokenApprove   TxType = "token_approve"
	TxNativeTransfer TxType = "native_transfer"
)

// Types lists every accepted transaction type.
var Types = []TxType{
	TxDepositNative, TxWithdrawNative, TxDepositToken, TxWithdrawToken,
	TxMakeOrder, TxCancelOrder, TxFillOrder,
	TxTokenTransfer, TxTokenApprove, TxNativeTransfer,
}

// SignedTransaction is the wire envelope: {type, action, signature}
type SignedTransaction struct {
	Type      TxType        `json:"type"`
	Action    ActionPayload `json:"action"`
	Signature string        `json:"signature"` // Hex-encoded (0x...)
}

// ActionPayload carries the signed fields. Amounts, ids and nonces are
// base-10 integers as strings; amounts are in the asset's smallest unit.
type ActionPayload struct {
	Account    string `json:"account"`
	Asset      string `json:"asset,omitempty"`
	To         string `json:"to,omitempty"`
	Amount     string `json:"amount,omitempty"`
	AssetGet   string `json:"asset_get,omitempty"`
	AmountGet  string `json:"amount_get,omitempty"`
	AssetGive  string `json:"asset_give,omitempty"`
	AmountGive string `json:"amount_give,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Nonce      string `json:"nonce"`
}

// Action is a decoded, typed payload.
type Action struct {
	Type       TxType
	Account    common.Address
	Asset      common.Address
	To         common.Address
	Amount     *uint256.Int
	AssetGet   common.Address
	AmountGet  *uint256.Int
	AssetGive  common.Address
	AmountGive *uint256.Int
	OrderID    uint64
	Nonce      uint64
}

// Decode parses the payload fields required by the transaction type.
func (tx *SignedTransaction) Decode() (*Action, error) {
	p := tx.Action
	a := &Action{Type: tx.Type}
	var err error

	if a.Account, err = parseAddress("account", p.Account, true); err != nil {
		return nil, err
	}
	if a.Nonce, err = parseUint64("nonce", p.Nonce); err != nil {
		return nil, err
	}

	switch tx.Type {
	case TxDepositNative, TxWithdrawNative:
		a.Amount, err = parseAmount("amount", p.Amount)
	case TxDepositToken, TxWithdrawToken:
		if a.Asset, err = parseAddress("asset", p.Asset, true); err != nil {
			return nil, err
		}
		a.Amount, err = parseAmount("amount", p.Amount)
	case TxTokenTransfer, TxTokenApprove:
		if a.Asset, err = parseAddress("asset", p.Asset, true); err != nil {
			return nil, err
		}
		if a.To, err = parseAddress("to", p.To, true); err != nil {
			return nil, err
		}
		a.Amount, err = parseAmount("amount", p.Amount)
	case TxNativeTransfer:
		if a.To, err = parseAddress("to", p.To, true); err != nil {
			return nil, err
		}
		a.Amount, err = parseAmount("amount", p.Amount)
	case TxMakeOrder:
		if a.AssetGet, err = parseAddress("asset_get", p.AssetGet, false); err != nil {
			return nil, err
		}
		if a.AmountGet, err = parseAmount("amount_get", p.AmountGet); err != nil {
			return nil, err
		}
		if a.AssetGive, err = parseAddress("asset_give", p.AssetGive, false); err != nil {
			return nil, err
		}
		a.AmountGive, err = parseAmount("amount_give", p.AmountGive)
	case TxCancelOrder, TxFillOrder:
		a.OrderID, err = parseUint64("order_id", p.OrderID)
	case "":
		return nil, fmt.Errorf("%w: missing transaction type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown transaction type: %s", ErrMalformed, tx.Type)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ToEIP712 converts the decoded action into its signable form
func (a *Action) ToEIP712() *crypto.ActionEIP712 {
	return &crypto.ActionEIP712{
		Kind:       string(a.Type),
		Account:    a.Account,
		Asset:      a.Asset,
		To:         a.To,
		Amount:     toBig(a.Amount),
		AssetGet:   a.AssetGet,
		AmountGet:  toBig(a.AmountGet),
		AssetGive:  a.AssetGive,
		AmountGive: toBig(a.AmountGive),
		OrderID:    new(big.Int).SetUint64(a.OrderID),
		Nonce:      new(big.Int).SetUint64(a.Nonce),
	}
}

// Payload renders the action back into wire form
func (a *Action) Payload() ActionPayload {
	p := ActionPayload{
		Account: a.Account.Hex(),
		Nonce:   strconv.FormatUint(a.Nonce, 10),
	}
	switch a.Type {
	case TxDepositNative, TxWithdrawNative:
		p.Amount = dec(a.Amount)
	case TxDepositToken, TxWithdrawToken:
		p.Asset = a.Asset.Hex()
		p.Amount = dec(a.Amount)
	case TxTokenTransfer, TxTokenApprove:
		p.Asset = a.Asset.Hex()
		p.To = a.To.Hex()
		p.Amount = dec(a.Amount)
	case TxNativeTransfer:
		p.To = a.To.Hex()
		p.Amount = dec(a.Amount)
	case TxMakeOrder:
		p.AssetGet = a.AssetGet.Hex()
		p.AmountGet = dec(a.AmountGet)
		p.AssetGive = a.AssetGive.Hex()
		p.AmountGive = dec(a.AmountGive)
	case TxCancelOrder, TxFillOrder:
		p.OrderID = strconv.FormatUint(a.OrderID, 10)
	}
	return p
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &tx, nil
}

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("%w: missing transaction type", ErrMalformed)
	}
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	_, err := tx.Decode()
	return err
}

// ParseTransaction deserializes and validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

func parseAddress(field, s string, required bool) (common.Address, error) {
	if s == "" {
		if required {
			return common.Address{}, fmt.Errorf("%w: missing %s", ErrMalformed, field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid %s: %s", ErrMalformed, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %s", ErrMalformed, field, s)
	}
	return v, nil
}

func parseUint64(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %q", ErrMalformed, field, s)
	}
	return v, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// Example (deposit 1 token):
//   {
//     "type": "deposit_token",
//     "action": {
//       "account": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
//       "asset": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
//       "amount": "1000000000000000000",
//       "nonce": "1"
//     },
//     "signature": "0x..."
//   }

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
