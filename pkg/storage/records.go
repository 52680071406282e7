package storage

import (
	"encoding/json"
	"time"
)

// Store is the durable transaction log and event index.
type Store interface {
	AppendTx(rec TxRecord, events []EventRecord) error
	LastSeq() (uint64, error)
	LoadTxs(fromSeq uint64) ([]TxRecord, error)
	LoadEvents(kind string, limit int) ([]EventRecord, error)
	Close() error
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// TxRecord is one verified transaction in the global sequence, with its
// outcome. Failed transactions are logged too: they consume the nonce.
type TxRecord struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Tx        json.RawMessage `json:"tx"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// EventRecord is an event emitted by the transaction at Seq.
type EventRecord struct {
	Seq   uint64          `json:"seq"`
	Index int             `json:"index"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
}
