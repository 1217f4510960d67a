package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrel-games/arcade-gateway/internal/conn"
	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/handler"
)

const serverVersion = "1.0.0"

// wsTransport adapts *websocket.Conn to conn.Transport.
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteFrame(b []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, b)
}

func (t *wsTransport) Close() error { return t.ws.Close() }

// WSHandler upgrades and pumps one client socket: an inbound goroutine
// reads, classifies, and routes frames; the calling goroutine drains the
// connection's outbound mailbox back to the socket, a split read/write
// pump for bidirectional client traffic.
type WSHandler struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	gw       *Gateway
}

func NewWSHandler(logger *slog.Logger, gw *Gateway) *WSHandler {
	return &WSHandler{
		logger: logger,
		gw:     gw,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", slog.Any("err", err))
		return
	}

	c := conn.New(r.Context(), &wsTransport{ws: ws}, conn.DefaultMailboxSize)
	if err := h.gw.connections.Acquire(c); err != nil {
		h.logger.Warn("WS_REJECTED_POOL_EXHAUSTED", slog.Any("err", err))
		c.Close()
		return
	}
	defer h.gw.connections.Release(c.ID())

	l := h.logger.With(slog.String("conn_id", c.ID().String()))
	l.Info("WS_CONNECTED")

	hello, _ := json.Marshal(model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  c.ID().String(),
		ServerVersion: serverVersion,
	})
	c.Send(&model.Envelope{Kind: model.KindSystem, Type: "connected", Priority: model.PriorityHigh, Data: hello}, 250*time.Millisecond)

	go h.readLoop(r, c, l)
	h.writeLoop(r, c, l)
}

func (h *WSHandler) readLoop(r *http.Request, c *conn.Connection, l *slog.Logger) {
	for {
		frame, err := c.ReadFrame(r.Context())
		if err != nil {
			return
		}
		env, err := handler.Classify(frame)
		if err != nil {
			l.Warn("WS_MALFORMED_FRAME", slog.Any("err", err))
			continue
		}
		h.gw.HandleInbound(r.Context(), c, env)
	}
}

func (h *WSHandler) writeLoop(r *http.Request, c *conn.Connection, l *slog.Logger) {
	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-c.Outbound():
			if !ok {
				return
			}
			data, err := handler.Marshal(env)
			if err != nil {
				l.Error("WS_MARSHAL_FAILED", slog.Any("err", err))
				continue
			}
			if err := c.WriteFrame(data); err != nil {
				l.Warn("WS_WRITE_FAILED", slog.Any("err", err))
				return
			}
		}
	}
}
