package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	name string
	fail bool

	mu  sync.Mutex
	got []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	if s.fail {
		return errors.New("broker down")
	}
	return nil
}

func (s *recordingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func TestBusDeliversInOrder(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	bus := NewBus(nil, 4, a)
	bus.Add(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish([]Event{{Seq: 1, Index: 0, Kind: "Deposit"}, {Seq: 1, Index: 1, Kind: "Transfer"}})
	bus.Publish(nil)
	bus.Publish([]Event{{Seq: 2, Kind: "Trade"}})

	require.Eventually(t, func() bool { return len(b.events()) == 3 }, time.Second, 5*time.Millisecond)
	for _, s := range []*recordingSink{a, b} {
		got := s.events()
		assert.Equal(t, uint64(1), got[0].Seq)
		assert.Equal(t, "Transfer", got[1].Kind)
		assert.Equal(t, uint64(2), got[2].Seq)
	}
}

func TestBusLogsSinkFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bad := &recordingSink{name: "bad", fail: true}
	good := &recordingSink{name: "good"}
	bus := NewBus(zap.New(core), 1, bad, good)

	bus.deliver(context.Background(), []Event{{Seq: 7, Kind: "Withdraw"}})

	assert.Len(t, good.events(), 1)
	entries := logs.FilterMessage("sink_publish_failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].ContextMap()["sink"])
	assert.Equal(t, uint64(7), entries[0].ContextMap()["seq"])
}

type stalledSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stalledSink) Name() string { return "stalled" }

func (s *stalledSink) Publish(ctx context.Context, _ Event) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestBusPublishDropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &stalledSink{started: make(chan struct{}), release: make(chan struct{})}
	bus := NewBus(zap.New(core), 2, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)
	defer close(sink.release)

	// The first batch is taken off the queue and wedges the sink.
	bus.Publish([]Event{{Seq: 1, Kind: "Deposit"}})
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("sink never received the first batch")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for seq := uint64(2); seq <= 6; seq++ {
			bus.Publish([]Event{{Seq: seq, Kind: "Deposit"}, {Seq: seq, Index: 1, Kind: "Transfer"}})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked behind a stalled sink")
	}

	entries := logs.FilterMessage("event_queue_full").All()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(4), entries[0].ContextMap()["seq"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["dropped"])
}
