package dex

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// stateRoot computes a Keccak-256 digest of the full application state.
// Callers hold a.mu.
//
// Components hashed, each behind a tag and in a fixed order:
//  1. Exchange ledger entries, sorted by (asset, account)
//  2. Orders by id, including status flags and creation time
//  3. Wallet balances, sorted by address
//  4. Token balances, sorted by address
//  5. Account nonces, sorted by address
//
// Two apps that applied the same log report the same root.
func (a *App) stateRoot() common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte

	putUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putAmount := func(v *uint256.Int) {
		if v == nil {
			v = new(uint256.Int)
		}
		b := v.Bytes32()
		h.Write(b[:])
	}

	h.Write([]byte("ledger"))
	for _, e := range a.exchange.Balances() {
		h.Write(e.Asset[:])
		h.Write(e.Account[:])
		putAmount(&e.Amount)
	}

	h.Write([]byte("orders"))
	for _, o := range a.exchange.Orders(nil) {
		putUint64(o.ID)
		h.Write(o.Maker[:])
		h.Write(o.AssetGet[:])
		putAmount(o.AmountGet)
		h.Write(o.AssetGive[:])
		putAmount(o.AmountGive)
		putUint64(uint64(o.CreatedAt.UnixNano()))
		var flags byte
		if o.Cancelled {
			flags |= 1
		}
		if o.Filled {
			flags |= 2
		}
		h.Write([]byte{flags})
	}

	h.Write([]byte("wallet"))
	for _, b := range a.wallet.Balances() {
		h.Write(b.Address[:])
		putAmount(b.Amount)
	}

	h.Write([]byte("token"))
	for _, b := range a.token.Holders() {
		h.Write(b.Address[:])
		putAmount(b.Amount)
	}

	h.Write([]byte("nonces"))
	accounts := make([]common.Address, 0, len(a.nonces))
	for addr := range a.nonces {
		accounts = append(accounts, addr)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})
	for _, addr := range accounts {
		h.Write(addr[:])
		putUint64(a.nonces[addr])
	}

	return common.BytesToHash(h.Sum(nil))
}
