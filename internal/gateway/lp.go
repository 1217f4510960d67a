package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kestrel-games/arcade-gateway/internal/conn"
	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/handler"
)

// lpTransport is a no-op socket: long-poll clients never get a persistent
// byte stream to read from, only the request body (handled separately by
// Submit) and the response buffer drained by Poll.
type lpTransport struct{}

func (lpTransport) ReadFrame() ([]byte, error) { return nil, io.EOF }
func (lpTransport) WriteFrame([]byte) error    { return nil }
func (lpTransport) Close() error               { return nil }

// LPHandler offers request/poll long-polling semantics for clients that
// cannot hold a WebSocket open: a 30s long-poll hold, returning the first
// queued event plus up to 15 more per poll.
type LPHandler struct {
	gw *Gateway
}

func NewLPHandler(gw *Gateway) *LPHandler {
	return &LPHandler{gw: gw}
}

// Submit accepts one classified client frame and routes it immediately,
// without waiting for a response -- the response (if any) arrives on a
// subsequent Poll.
func (h *LPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	connID, err := uuid.Parse(chi.URLParam(r, "connID"))
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return
	}
	c, ok := h.gw.connections.Get(connID)
	if !ok {
		http.Error(w, "unknown connection", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	env, err := handler.Classify(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.gw.HandleInbound(r.Context(), c, env)
	w.WriteHeader(http.StatusAccepted)
}

// Open allocates a new long-poll-backed connection and returns its ID so
// subsequent Submit/Poll calls can address it.
func (h *LPHandler) Open(w http.ResponseWriter, r *http.Request) {
	c := conn.New(r.Context(), lpTransport{}, conn.DefaultMailboxSize)
	if err := h.gw.connections.Acquire(c); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"conn_id": c.ID().String()})
}

// Poll holds the request until an outbound envelope arrives, the client
// disconnects, or 30s elapses, batching up to 15 additional buffered
// envelopes into the same response.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	connID, err := uuid.Parse(chi.URLParam(r, "connID"))
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return
	}
	c, ok := h.gw.connections.Get(connID)
	if !ok {
		http.Error(w, "unknown connection", http.StatusNotFound)
		return
	}

	var envelopes []*model.Envelope

	select {
	case <-r.Context().Done():
		return
	case <-time.After(30 * time.Second):
		w.WriteHeader(http.StatusNoContent)
		return
	case env, ok := <-c.Outbound():
		if !ok {
			return
		}
		envelopes = append(envelopes, env)

	drainLoop:
		for i := 0; i < 15; i++ {
			select {
			case next, ok := <-c.Outbound():
				if !ok {
					break drainLoop
				}
				envelopes = append(envelopes, next)
			default:
				break drainLoop
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelopes)
}
