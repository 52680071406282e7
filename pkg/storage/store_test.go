package storage

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"pebble": func(t *testing.T) Store {
			s, err := NewPebbleStore(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"mem": func(t *testing.T) Store { return NewMemStore() },
	}
}

func txRecord(seq uint64, status string) TxRecord {
	return TxRecord{
		Seq:       seq,
		Timestamp: time.Date(2024, 1, 1, 0, 0, int(seq), 0, time.UTC),
		Tx:        json.RawMessage(fmt.Sprintf(`{"n":%d}`, seq)),
		Status:    status,
	}
}

func event(kind string, index int) EventRecord {
	return EventRecord{Index: index, Kind: kind, Data: json.RawMessage(fmt.Sprintf(`{"i":%d}`, index))}
}

func TestAppendAndLoad(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			seq, err := s.LastSeq()
			require.NoError(t, err)
			assert.Equal(t, uint64(0), seq)

			require.NoError(t, s.AppendTx(txRecord(1, StatusOK), []EventRecord{event("Deposit", 0)}))
			require.NoError(t, s.AppendTx(txRecord(2, StatusFailed), nil))
			require.NoError(t, s.AppendTx(txRecord(3, StatusOK), []EventRecord{event("Deposit", 0), event("Trade", 1)}))

			seq, err = s.LastSeq()
			require.NoError(t, err)
			assert.Equal(t, uint64(3), seq)

			txs, err := s.LoadTxs(1)
			require.NoError(t, err)
			require.Len(t, txs, 3)
			for i, rec := range txs {
				assert.Equal(t, uint64(i+1), rec.Seq)
			}
			assert.Equal(t, StatusFailed, txs[1].Status)
			assert.JSONEq(t, `{"n":3}`, string(txs[2].Tx))
			assert.True(t, txs[0].Timestamp.Equal(txRecord(1, "").Timestamp))

			tail, err := s.LoadTxs(3)
			require.NoError(t, err)
			require.Len(t, tail, 1)
			assert.Equal(t, uint64(3), tail[0].Seq)

			none, err := s.LoadTxs(4)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAppendOutOfOrder(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			require.NoError(t, s.AppendTx(txRecord(1, StatusOK), nil))
			assert.ErrorIs(t, s.AppendTx(txRecord(1, StatusOK), nil), ErrOutOfOrder)
			assert.ErrorIs(t, s.AppendTx(txRecord(3, StatusOK), nil), ErrOutOfOrder)
		})
	}
}

func TestLoadEventsNewestFirst(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			for seq := uint64(1); seq <= 4; seq++ {
				require.NoError(t, s.AppendTx(txRecord(seq, StatusOK), []EventRecord{event("Trade", 0)}))
			}
			require.NoError(t, s.AppendTx(txRecord(5, StatusOK), []EventRecord{event("TradeX", 0)}))

			evs, err := s.LoadEvents("Trade", 2)
			require.NoError(t, err)
			require.Len(t, evs, 2)
			assert.Equal(t, uint64(4), evs[0].Seq)
			assert.Equal(t, uint64(3), evs[1].Seq)

			all, err := s.LoadEvents("Trade", 0)
			require.NoError(t, err)
			assert.Len(t, all, 4)

			missing, err := s.LoadEvents("Withdraw", 10)
			require.NoError(t, err)
			assert.Empty(t, missing)
		})
	}
}

func TestPebbleReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.AppendTx(txRecord(1, StatusOK), []EventRecord{event("Deposit", 0)}))
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	seq, err := s.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	evs, err := s.LoadEvents("Deposit", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.JSONEq(t, `{"i":0}`, string(evs[0].Data))
}
