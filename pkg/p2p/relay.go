package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/events"
)

const TopicEvents = "leskodex/events/1"

// Relay gossips committed events to peers and hands events gossiped by other
// nodes to an optional handler. Followers use it to mirror a sequencer's
// event stream.
type Relay struct {
	h     host.Host
	ps    *pubsub.PubSub
	log   *zap.SugaredLogger
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	muH     sync.RWMutex
	onEvent func(peer.ID, events.Event)
}

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

func NewRelay(ctx context.Context, cfg Config) (*Relay, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	r := &Relay{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := Connect(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if r.topic, err = ps.Join(TopicEvents); err != nil {
		h.Close()
		return nil, err
	}
	if r.sub, err = r.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	go r.handleInbound(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", TopicEvents)
	return r, nil
}

// Connect dials a peer given its full /p2p multiaddr.
func Connect(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (r *Relay) Host() host.Host { return r.h }

// OnEvent installs the handler for events gossiped by other peers.
func (r *Relay) OnEvent(fn func(from peer.ID, ev events.Event)) {
	r.muH.Lock()
	r.onEvent = fn
	r.muH.Unlock()
}

func (r *Relay) Name() string { return "p2p:" + TopicEvents }

// Publish implements events.Sink.
func (r *Relay) Publish(ctx context.Context, ev events.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return r.topic.Publish(ctx, data)
}

func (r *Relay) Close() error {
	r.sub.Cancel()
	if err := r.topic.Close(); err != nil {
		r.log.Warnw("topic_close_failed", "err", err)
	}
	return r.h.Close()
}

func (r *Relay) handleInbound(ctx context.Context) {
	for {
		msg, err := r.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == r.h.ID() {
			continue
		}
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			r.log.Debugw("bad_event_message", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}

		r.muH.RLock()
		fn := r.onEvent
		r.muH.RUnlock()
		if fn != nil {
			fn(msg.ReceivedFrom, ev)
		}
	}
}

var _ events.Sink = (*Relay)(nil)
