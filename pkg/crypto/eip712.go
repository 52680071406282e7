package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/deployments
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "LeskoDEX")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local)
	VerifyingContract common.Address // Exchange address
}

// ActionEIP712 is the typed data users sign for every state-changing request.
// Fields that a kind does not use are zero.
type ActionEIP712 struct {
	Kind       string
	Account    common.Address
	Asset      common.Address
	To         common.Address
	Amount     *big.Int
	AssetGet   common.Address
	AmountGet  *big.Int
	AssetGive  common.Address
	AmountGive *big.Int
	OrderID    *big.Int
	Nonce      *big.Int
}

var actionFields = []apitypes.Type{
	{Name: "kind", Type: "string"},
	{Name: "account", Type: "address"},
	{Name: "asset", Type: "address"},
	{Name: "to", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "assetGet", Type: "address"},
	{Name: "amountGet", Type: "uint256"},
	{Name: "assetGive", Type: "address"},
	{Name: "amountGive", Type: "uint256"},
	{Name: "orderId", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// EIP712Signer handles EIP-712 typed data signing for actions
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the local-dev domain bound to the exchange address
func DefaultDomain(exchange common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "LeskoDEX",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: exchange,
	}
}

func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func (e *EIP712Signer) typedData(a *ActionEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			"Action":       actionFields,
		},
		PrimaryType: "Action",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"kind":       a.Kind,
			"account":    a.Account.Hex(),
			"asset":      a.Asset.Hex(),
			"to":         a.To.Hex(),
			"amount":     bigString(a.Amount),
			"assetGet":   a.AssetGet.Hex(),
			"amountGet":  bigString(a.AmountGet),
			"assetGive":  a.AssetGive.Hex(),
			"amountGive": bigString(a.AmountGive),
			"orderId":    bigString(a.OrderID),
			"nonce":      bigString(a.Nonce),
		},
	}
}

// HashAction returns the EIP-712 digest of an action
func (e *EIP712Signer) HashAction(a *ActionEIP712) ([]byte, error) {
	typedData := e.typedData(a)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

func (e *EIP712Signer) SignAction(signer *Signer, a *ActionEIP712) ([]byte, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return nil, fmt.Errorf("failed to hash action: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}
	return signature, nil
}

// RecoverActionSigner recovers the address that signed an action
func (e *EIP712Signer) RecoverActionSigner(a *ActionEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash action: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// ActionToJSON renders the typed data for eth_signTypedData_v4
func (e *EIP712Signer) ActionToJSON(a *ActionEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
