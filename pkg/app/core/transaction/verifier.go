package transaction

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/leskodex/pkg/crypto"
)

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify decodes tx and checks that it was signed by its account
func (v *Verifier) Verify(tx *SignedTransaction) (*Action, error) {
	action, err := tx.Decode()
	if err != nil {
		return nil, err
	}

	signer, err := v.recover(action, tx.Signature)
	if err != nil {
		return nil, err
	}
	if signer != action.Account {
		return nil, fmt.Errorf("%w: signed by %s, account %s", ErrSignerMismatch, signer.Hex(), action.Account.Hex())
	}
	return action, nil
}

// RecoverSigner recovers the address that signed a transaction
// Useful for debugging or extracting the signer without prior knowledge
func (v *Verifier) RecoverSigner(tx *SignedTransaction) (common.Address, error) {
	action, err := tx.Decode()
	if err != nil {
		return common.Address{}, err
	}
	return v.recover(action, tx.Signature)
}

func (v *Verifier) recover(action *Action, signature string) (common.Address, error) {
	sigBytes, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := v.eip712Signer.RecoverActionSigner(action.ToEIP712(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return signer, nil
}

// Sign builds a signed envelope for action
func Sign(signer *crypto.Signer, domain crypto.EIP712Domain, action *Action) (*SignedTransaction, error) {
	sig, err := crypto.NewEIP712Signer(domain).SignAction(signer, action.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Type:      action.Type,
		Action:    action.Payload(),
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %w", ErrInvalidSignature, err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidSignature, len(sigBytes))
	}
	return sigBytes, nil
}
