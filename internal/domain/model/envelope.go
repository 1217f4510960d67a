package model

import (
	"encoding/json"
	"time"
)

// EnvelopeKind discriminates how the handler dispatcher (4.N) routes an
// Envelope once classified off the wire. Rather than one flat struct with
// optional fields per kind, every frame carries a Kind and only the fields
// that kind defines are populated.
type EnvelopeKind int

const (
	KindSystem EnvelopeKind = iota
	KindBusiness
	KindGateway
	KindError
)

func (k EnvelopeKind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindBusiness:
		return "business"
	case KindGateway:
		return "gateway"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Priority classifies an Envelope for ordering inside the priority queue (4.D).
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// Envelope is the canonical in-process representation of a single routed
// message: either an inbound frame freshly classified off a client socket,
// or an outbound frame headed back to one. The wire shape it mirrors is
// the client protocol's `{type, data, timestamp, id?, reply_to?}`
// envelope; MsgID/Sequence/PlayerID are only meaningful when Kind is
// KindBusiness or KindGateway, since both live inside `data` on the wire.
type Envelope struct {
	Kind     EnvelopeKind
	Priority Priority

	// Type is the wire-level `type` discriminator: inbound, one of
	// ping/heartbeat/auth/frame; outbound, one of
	// pong/heartbeat_ack/auth_response/forward_ack/error/echo/... .
	Type string

	MsgID    int32
	Sequence string
	PlayerID string

	Code      int32
	ErrorCode string
	Message   string

	ID      string
	ReplyTo string

	// Timestamp is the client-supplied wire timestamp on inbound frames,
	// echoed verbatim on replies that must match it (e.g. pong).
	Timestamp int64

	Data       json.RawMessage
	Metadata   map[string]string
	EnqueuedAt time.Time
}

// Hash returns a short content fingerprint used by the deduplicator (4.D).
// It deliberately mirrors the original gateway's own dedup key: msg id,
// sequence, and player id, not the payload bytes, since two retries of the
// same logical message may re-serialize to different bytes.
func (e *Envelope) Hash() string {
	return dedupKey(e.MsgID, e.Sequence, e.PlayerID)
}
