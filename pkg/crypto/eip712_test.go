package crypto

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var exchangeAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

func testAction(owner common.Address) *ActionEIP712 {
	return &ActionEIP712{
		Kind:       "make_order",
		Account:    owner,
		AssetGet:   common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		AmountGet:  big.NewInt(1_000_000_000_000_000_000),
		AmountGive: big.NewInt(1_000_000_000_000_000_000),
		Nonce:      big.NewInt(1),
	}
}

func TestSignAndRecoverAction(t *testing.T) {
	signer, _ := GenerateKey()
	eip := NewEIP712Signer(DefaultDomain(exchangeAddr))
	action := testAction(signer.Address())

	sig, err := eip.SignAction(signer, action)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	got, err := eip.RecoverActionSigner(action, sig)
	if err != nil {
		t.Fatalf("RecoverActionSigner: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("signer = %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestHashActionBindsFields(t *testing.T) {
	eip := NewEIP712Signer(DefaultDomain(exchangeAddr))
	owner := common.HexToAddress("0x1000000000000000000000000000000000000001")
	base, err := eip.HashAction(testAction(owner))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(a *ActionEIP712)
	}{
		{"kind", func(a *ActionEIP712) { a.Kind = "fill_order" }},
		{"amount get", func(a *ActionEIP712) { a.AmountGet = big.NewInt(2) }},
		{"nonce", func(a *ActionEIP712) { a.Nonce = big.NewInt(2) }},
		{"asset give", func(a *ActionEIP712) { a.AssetGive = owner }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAction(owner)
			tt.mutate(a)
			h, err := eip.HashAction(a)
			if err != nil {
				t.Fatal(err)
			}
			if bytes.Equal(h, base) {
				t.Errorf("hash unchanged after mutating %s", tt.name)
			}
		})
	}

	other := NewEIP712Signer(DefaultDomain(owner))
	h, _ := other.HashAction(testAction(owner))
	if bytes.Equal(h, base) {
		t.Error("hash unchanged across domains")
	}
}

func TestActionToJSON(t *testing.T) {
	eip := NewEIP712Signer(DefaultDomain(exchangeAddr))
	out, err := eip.ActionToJSON(testAction(exchangeAddr))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"primaryType": "Action"`, `"LeskoDEX"`, `"make_order"`} {
		if !strings.Contains(out, want) {
			t.Errorf("JSON missing %s", want)
		}
	}
}
