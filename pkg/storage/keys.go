package storage

import (
	"fmt"
)

// Key schema for Pebble storage:
//
//   tx:{seq}              → TxRecord
//   ev:{kind}:{seq}:{i}   → EventRecord
//   meta:seq              → last sequence number (8-byte big endian)
//
// Numbers are zero-padded so lexicographic order is numeric order.

const (
	prefixTx    = "tx:"
	prefixEvent = "ev:"
)

// txKey returns the key for a transaction record
// Format: "tx:{seq}"
func txKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTx, seq))
}

// eventKey returns the key for an event record
// Format: "ev:{kind}:{seq}:{index}"
func eventKey(kind string, seq uint64, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%06d", prefixEvent, kind, seq, index))
}

// eventPrefix returns the prefix for all events of a kind
// Format: "ev:{kind}:"
func eventPrefix(kind string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixEvent, kind))
}

func seqKey() []byte { return []byte("meta:seq") }

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
