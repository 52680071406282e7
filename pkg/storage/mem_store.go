package storage

import (
	"fmt"
	"sync"
)

// MemStore keeps the log in memory. Used when no data directory is
// configured, and in tests.
type MemStore struct {
	mu     sync.Mutex
	txs    []TxRecord
	events map[string][]EventRecord
}

func NewMemStore() *MemStore {
	return &MemStore{events: make(map[string][]EventRecord)}
}

func (s *MemStore) AppendTx(rec TxRecord, events []EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := uint64(len(s.txs)) + 1; rec.Seq != want {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, rec.Seq, want)
	}
	s.txs = append(s.txs, rec)
	for _, ev := range events {
		ev.Seq = rec.Seq
		s.events[ev.Kind] = append(s.events[ev.Kind], ev)
	}
	return nil
}

func (s *MemStore) LastSeq() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.txs)), nil
}

func (s *MemStore) LoadTxs(fromSeq uint64) ([]TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fromSeq == 0 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(s.txs)) {
		return nil, nil
	}
	return append([]TxRecord(nil), s.txs[fromSeq-1:]...), nil
}

func (s *MemStore) LoadEvents(kind string, limit int) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.events[kind]
	var out []EventRecord
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
