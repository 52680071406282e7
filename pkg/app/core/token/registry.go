package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry resolves token addresses to deployed contracts.
type Registry struct {
	mu        sync.RWMutex
	contracts map[common.Address]Contract
}

func NewRegistry(cs ...Contract) *Registry {
	r := &Registry{contracts: make(map[common.Address]Contract)}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Address()] = c
}

func (r *Registry) Lookup(addr common.Address) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[addr]
	return c, ok
}
