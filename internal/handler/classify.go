// Package handler classifies a raw inbound client frame into an Envelope
// and marshals outbound Envelopes back to the wire. Every frame, in both
// directions, uses the same envelope shape: a `type` discriminator, a
// `data` payload, a `timestamp`, and optional `id`/`reply_to` correlation
// fields. Business and gateway frames carry their routing fields
// (msg_id, sequence, player_id) inside `data` rather than at the top
// level, alongside a free-form `body`.
package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// wireFrame is the client-facing JSON envelope shape.
type wireFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	ID        string          `json:"id,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
}

// businessData is the shape of `data` for type:"frame" envelopes: the
// only wire type that carries a msg_id, since system types (ping,
// heartbeat, auth) are self-describing via Type alone.
type businessData struct {
	MsgID    int32           `json:"msg_id"`
	Sequence string          `json:"sequence,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// GatewayMsgIDFloor is the lowest msg_id routed to the gateway-local
// handler (4.N's Gateway branch) rather than forwarded to a backend.
const GatewayMsgIDFloor = 9000

// Classify parses a raw client frame into an Envelope. Priority defaults
// to High for system frames and Normal for business/gateway frames;
// handleBusiness overrides it based on the msg_id range.
func Classify(raw []byte) (*model.Envelope, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("handler: malformed frame: %w", err)
	}

	env := &model.Envelope{
		Type:       f.Type,
		ID:         f.ID,
		ReplyTo:    f.ReplyTo,
		Timestamp:  f.Timestamp,
		EnqueuedAt: time.Now(),
	}

	switch f.Type {
	case "ping", "heartbeat", "auth":
		env.Kind = model.KindSystem
		env.Data = f.Data
		env.Priority = model.PriorityHigh
	case "frame":
		var bd businessData
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &bd); err != nil {
				return nil, fmt.Errorf("handler: malformed frame data: %w", err)
			}
		}
		env.MsgID = bd.MsgID
		env.Sequence = bd.Sequence
		env.PlayerID = bd.PlayerID
		env.Data = bd.Body
		if env.MsgID >= GatewayMsgIDFloor {
			env.Kind = model.KindGateway
		} else {
			env.Kind = model.KindBusiness
		}
		env.Priority = model.PriorityNormal
	default:
		return nil, fmt.Errorf("handler: unknown frame type %q", f.Type)
	}

	return env, nil
}

// Marshal serializes an outbound Envelope back to the client-facing wire
// shape. Callers are expected to have already populated Data with the
// reply's payload; a KindError envelope with no Data gets one synthesized
// from ErrorCode/Message as a convenience.
func Marshal(env *model.Envelope) ([]byte, error) {
	f := wireFrame{
		Type:      env.Type,
		Data:      env.Data,
		Timestamp: env.Timestamp,
		ID:        env.ID,
		ReplyTo:   env.ReplyTo,
	}

	if env.Kind == model.KindError && len(f.Data) == 0 {
		payload, err := json.Marshal(struct {
			ErrorCode string `json:"error_code"`
			Message   string `json:"message,omitempty"`
		}{ErrorCode: env.ErrorCode, Message: env.Message})
		if err != nil {
			return nil, fmt.Errorf("handler: marshal error payload: %w", err)
		}
		f.Data = payload
	}

	return json.Marshal(f)
}
