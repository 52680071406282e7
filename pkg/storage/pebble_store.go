package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var ErrOutOfOrder = errors.New("transaction sequence out of order")

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// AppendTx writes a transaction record, its events and the new sequence
// number in one atomic batch. rec.Seq must be LastSeq()+1.
func (s *PebbleStore) AppendTx(rec TxRecord, events []EventRecord) error {
	last, err := s.LastSeq()
	if err != nil {
		return err
	}
	if rec.Seq != last+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, rec.Seq, last+1)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tx: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(txKey(rec.Seq), data, nil); err != nil {
		return fmt.Errorf("failed to stage tx: %w", err)
	}
	for _, ev := range events {
		ev.Seq = rec.Seq
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := batch.Set(eventKey(ev.Kind, ev.Seq, ev.Index), data, nil); err != nil {
			return fmt.Errorf("failed to stage event: %w", err)
		}
	}
	if err := batch.Set(seqKey(), encodeUint64(rec.Seq), nil); err != nil {
		return fmt.Errorf("failed to stage seq: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit tx %d: %w", rec.Seq, err)
	}
	return nil
}

// LastSeq returns the sequence number of the last record, 0 when empty
func (s *PebbleStore) LastSeq() (uint64, error) {
	val, closer, err := s.db.Get(seqKey())
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seq: %w", err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

// LoadTxs loads transaction records with Seq >= fromSeq in order
func (s *PebbleStore) LoadTxs(fromSeq uint64) ([]TxRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: txKey(fromSeq),
		UpperBound: keyUpperBound([]byte(prefixTx)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []TxRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec TxRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tx at %s: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

// LoadEvents loads the most recent events of a kind, newest first
func (s *PebbleStore) LoadEvents(kind string, limit int) ([]EventRecord, error) {
	prefix := eventPrefix(kind)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var events []EventRecord
	for iter.Last(); iter.Valid() && (limit <= 0 || len(events) < limit); iter.Prev() {
		var ev EventRecord
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, iter.Error()
}

var _ Store = (*PebbleStore)(nil)
