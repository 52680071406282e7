package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/journal"
)

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob      = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newToken() *Token {
	return New(deployer, 0, Config{Name: "ESKO", Symbol: "ESKO", Decimals: 18, Supply: uint256.NewInt(1000)})
}

func TestDeploy(t *testing.T) {
	tok := newToken()
	if want := crypto.CreateAddress(deployer, 0); tok.Address() != want {
		t.Errorf("address = %s, want %s", tok.Address().Hex(), want.Hex())
	}
	if got := tok.BalanceOf(deployer).Uint64(); got != 1000 {
		t.Errorf("deployer balance = %d, want 1000", got)
	}
	if got := tok.TotalSupply().Uint64(); got != 1000 {
		t.Errorf("total supply = %d, want 1000", got)
	}
	if tok.Name() != "ESKO" || tok.Symbol() != "ESKO" || tok.Decimals() != 18 {
		t.Errorf("metadata = %s/%s/%d", tok.Name(), tok.Symbol(), tok.Decimals())
	}
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		to      common.Address
		amount  uint64
		wantErr error
	}{
		{"ok", alice, 100, nil},
		{"insufficient", alice, 1001, ErrInsufficientFunds},
		{"zero recipient", common.Address{}, 1, ErrInvalidRecipient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newToken()
			var events []Event
			tok.Subscribe(func(ev Event) { events = append(events, ev) })

			err := tok.Transfer(context.Background(), deployer, tt.to, uint256.NewInt(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if got := tok.BalanceOf(deployer).Uint64(); got != 1000 {
					t.Errorf("deployer = %d, want 1000", got)
				}
				if len(events) != 0 {
					t.Errorf("events = %d, want 0", len(events))
				}
				return
			}
			if got := tok.BalanceOf(tt.to).Uint64(); got != tt.amount {
				t.Errorf("recipient = %d, want %d", got, tt.amount)
			}
			if len(events) != 1 || events[0].Kind() != KindTransfer {
				t.Fatalf("events = %+v, want one Transfer", events)
			}
		})
	}
}

func TestApproveRejectsZeroSpender(t *testing.T) {
	tok := newToken()
	err := tok.Approve(context.Background(), deployer, common.Address{}, uint256.NewInt(1))
	if !errors.Is(err, ErrInvalidSpender) {
		t.Errorf("err = %v, want ErrInvalidSpender", err)
	}
}

func TestTransferFrom(t *testing.T) {
	tok := newToken()
	ctx := context.Background()
	if err := tok.Approve(ctx, deployer, alice, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	err := tok.TransferFrom(ctx, alice, deployer, bob, uint256.NewInt(101))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("over-allowance err = %v, want ErrInsufficientAllowance", err)
	}

	if err := tok.TransferFrom(ctx, alice, deployer, bob, uint256.NewInt(100)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := tok.BalanceOf(bob).Uint64(); got != 100 {
		t.Errorf("bob = %d, want 100", got)
	}
	if got := tok.Allowance(deployer, alice).Uint64(); got != 0 {
		t.Errorf("allowance after spend = %d, want 0", got)
	}
}

func TestTransferFromInsufficientBalanceKeepsAllowance(t *testing.T) {
	tok := newToken()
	ctx := context.Background()
	tok.Approve(ctx, alice, bob, uint256.NewInt(10))

	err := tok.TransferFrom(ctx, bob, alice, bob, uint256.NewInt(10))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := tok.Allowance(alice, bob).Uint64(); got != 10 {
		t.Errorf("allowance = %d, want 10", got)
	}
}

func TestEnclosingRevertDropsEffects(t *testing.T) {
	tok := newToken()
	var events int
	tok.Subscribe(func(Event) { events++ })

	ctx, j, _ := journal.Begin(context.Background())
	tok.Approve(ctx, deployer, alice, uint256.NewInt(5))
	tok.Transfer(ctx, deployer, bob, uint256.NewInt(5))
	j.Revert()

	if got := tok.BalanceOf(deployer).Uint64(); got != 1000 {
		t.Errorf("deployer = %d, want 1000", got)
	}
	if got := tok.Allowance(deployer, alice).Uint64(); got != 0 {
		t.Errorf("allowance = %d, want 0", got)
	}
	if events != 0 {
		t.Errorf("events delivered = %d, want 0", events)
	}
}

func TestRegistry(t *testing.T) {
	tok := newToken()
	r := NewRegistry(tok)
	if c, ok := r.Lookup(tok.Address()); !ok || c.Address() != tok.Address() {
		t.Error("registered token not found")
	}
	if _, ok := r.Lookup(alice); ok {
		t.Error("unregistered address resolved")
	}
}
