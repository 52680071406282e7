package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/leskodex/pkg/events"
)

func init() {
	gob.Register(EventWire{})
}

// EventWire is the gossip payload. Version lets nodes drop messages from an
// incompatible build instead of misreading them.
type EventWire struct {
	Version uint8
	Event   []byte // gob-encoded events.Event
}

const wireVersion = 1

func encodeEvent(ev events.Event) ([]byte, error) {
	eb, err := gobEncode(ev)
	if err != nil {
		return nil, err
	}
	return gobEncode(EventWire{Version: wireVersion, Event: eb})
}

func decodeEvent(data []byte) (events.Event, error) {
	var w EventWire
	if err := gobDecode(data, &w); err != nil {
		return events.Event{}, err
	}
	if w.Version != wireVersion {
		return events.Event{}, fmt.Errorf("unsupported wire version %d", w.Version)
	}
	var ev events.Event
	if err := gobDecode(w.Event, &ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
