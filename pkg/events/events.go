// Package events carries committed exchange and token events from the app to
// external sinks (websocket hub, Kafka, p2p gossip).
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Event is the envelope every sink receives. Seq is the sequence number of the
// transaction that produced it; Index orders events within that transaction.
type Event struct {
	Seq       uint64           `json:"seq"`
	Index     int              `json:"index"`
	Kind      string           `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Accounts  []common.Address `json:"accounts,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

// Sink publishes events somewhere outside the process.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Bus fans committed events out to sinks from a single goroutine so that
// every sink sees events in commit order.
type Bus struct {
	log   *zap.Logger
	queue chan []Event

	mu    sync.RWMutex
	sinks []Sink
}

func NewBus(log *zap.Logger, buffer int, sinks ...Sink) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{log: log, queue: make(chan []Event, buffer), sinks: sinks}
}

func (b *Bus) Add(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish enqueues a batch without blocking. When the queue is full, e.g.
// behind a stalled sink or after Run has stopped, the batch is dropped and
// logged; the events stay in the store.
func (b *Bus) Publish(evs []Event) {
	if len(evs) == 0 {
		return
	}
	select {
	case b.queue <- evs:
	default:
		b.log.Warn("event_queue_full",
			zap.Uint64("seq", evs[0].Seq),
			zap.Int("dropped", len(evs)),
		)
	}
}

// Run delivers queued batches until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-b.queue:
			b.deliver(ctx, batch)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, batch []Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, ev := range batch {
		for _, s := range sinks {
			if err := s.Publish(ctx, ev); err != nil {
				b.log.Warn("sink_publish_failed",
					zap.String("sink", s.Name()),
					zap.String("kind", ev.Kind),
					zap.Uint64("seq", ev.Seq),
					zap.Error(err),
				)
			}
		}
	}
}
