package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/leskodex/pkg/events"
)

// API response types for REST endpoints and WebSocket messages. Receipts,
// balances, orders and exchange info are served in their app form.

// ==============================
// REST Response Types
// ==============================

type NonceResponse struct {
	Account common.Address `json:"account"`
	Nonce   uint64         `json:"nonce"` // last sequenced nonce; sign the next one with nonce+1
}

type HealthResponse struct {
	Status string `json:"status"`
	Seq    uint64 `json:"seq"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

const (
	ChannelEvents        = "events"
	channelKindPrefix    = "events:"
	channelAccountPrefix = "account:"
)

// WSMessage is pushed to subscribers of any matching channel.
type WSMessage struct {
	Type  string       `json:"type"` // "event"
	Event events.Event `json:"event"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["events", "events:Trade", "account:0x..."]
}

// WSAck confirms a subscription change.
type WSAck struct {
	Type     string   `json:"type"` // "subscribed", "unsubscribed" or "error"
	Channels []string `json:"channels,omitempty"`
	Message  string   `json:"message,omitempty"`
}
