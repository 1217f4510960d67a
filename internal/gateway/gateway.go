// Package gateway is the composition root: it owns every subsystem
// (connection pool, session manager, router, dispatcher, registry, queue)
// and the HTTP/WebSocket surfaces that front them.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"

	"github.com/kestrel-games/arcade-gateway/internal/conn"
	"github.com/kestrel-games/arcade-gateway/internal/connpool"
	"github.com/kestrel-games/arcade-gateway/internal/dispatcher"
	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/handler"
	"github.com/kestrel-games/arcade-gateway/internal/queue"
	"github.com/kestrel-games/arcade-gateway/internal/registry"
	"github.com/kestrel-games/arcade-gateway/internal/routecache"
	"github.com/kestrel-games/arcade-gateway/internal/session"
	"github.com/kestrel-games/arcade-gateway/internal/transport/pool"
)

// gatewayMsgID enumerates the gateway-local msg_id offsets served by
// handleGatewayOp, relative to handler.GatewayMsgIDFloor (9000).
const (
	gatewayMsgStatus = handler.GatewayMsgIDFloor + iota
	gatewayMsgStats
	gatewayMsgConnectionInfo
	gatewayMsgSessionInfo
)

// businessHighPriorityFloor is the low end of the msg_id range (3000-4999)
// promoted to High priority in the queue; everything else business-side
// enqueues Normal.
const businessHighPriorityFloor = 3000
const businessHighPriorityCeil = 4999

// Gateway holds every subsystem the HTTP/WS/long-poll surfaces front.
type Gateway struct {
	logger      *slog.Logger
	connections *connpool.Pool
	sessions    *session.Manager
	dispatcher  *dispatcher.Dispatcher
	registry    *registry.Registry
	routeCache  *routecache.Cache
	rpcPool     *pool.Pool
	queue       *queue.Queue
	startedAt   time.Time
}

func New(
	logger *slog.Logger,
	connections *connpool.Pool,
	sessions *session.Manager,
	disp *dispatcher.Dispatcher,
	reg *registry.Registry,
	routeCache *routecache.Cache,
	rpcPool *pool.Pool,
	q *queue.Queue,
) *Gateway {
	return &Gateway{
		logger:      logger,
		connections: connections,
		sessions:    sessions,
		dispatcher:  disp,
		registry:    reg,
		routeCache:  routeCache,
		rpcPool:     rpcPool,
		queue:       q,
		startedAt:   time.Now(),
	}
}

// HandleInbound is the single entry point every transport (WS,
// long-poll) funnels classified frames through.
func (g *Gateway) HandleInbound(ctx context.Context, c *conn.Connection, env *model.Envelope) {
	switch env.Kind {
	case model.KindSystem:
		g.handleSystem(ctx, c, env)
	case model.KindGateway:
		g.handleGatewayOp(ctx, c, env)
	case model.KindBusiness:
		g.handleBusiness(ctx, c, env)
	default:
		g.replyError(c, env, "MESSAGE_PROCESSING_ERROR", "unknown envelope kind")
	}
}

type pingPayload struct {
	ServerTime int64 `json:"server_time"`
}

type authRequestPayload struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	PlayerID string `json:"player_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
}

type authResponsePayload struct {
	Success         bool            `json:"success"`
	SessionID       string          `json:"session_id,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	OfflineMessages json.RawMessage `json:"offline_messages,omitempty"`
}

// handleSystem answers ping/heartbeat/auth locally; every other system
// type is surfaced as a processing error without dropping the connection.
func (g *Gateway) handleSystem(ctx context.Context, c *conn.Connection, env *model.Envelope) {
	switch env.Type {
	case "ping":
		c.Send(&model.Envelope{Kind: model.KindSystem, Type: "pong", Priority: model.PriorityHigh, Timestamp: env.Timestamp}, 250*time.Millisecond)
	case "heartbeat":
		c.TouchPing()
		payload, _ := json.Marshal(pingPayload{ServerTime: time.Now().UnixMilli()})
		c.Send(&model.Envelope{Kind: model.KindSystem, Type: "heartbeat_ack", Priority: model.PriorityHigh, Data: payload}, 250*time.Millisecond)
	case "auth":
		g.handleAuth(ctx, c, env)
	default:
		g.replyError(c, env, "MESSAGE_PROCESSING_ERROR", fmt.Sprintf("unsupported system type %q", env.Type))
	}
}

// handleAuth authenticates a fresh connection: a valid user_id/token pair
// opens a new session through the session manager's CreateSession and
// binds it to the connection with the connection pool's BindSession.
func (g *Gateway) handleAuth(ctx context.Context, c *conn.Connection, env *model.Envelope) {
	var req authRequestPayload
	if err := json.Unmarshal(env.Data, &req); err != nil || req.UserID == "" || req.Token == "" {
		g.replyAuthFailed(c, "AUTH_FAILED")
		return
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = req.UserID
	}

	s, err := g.sessions.CreateSession(ctx, playerID)
	if err != nil {
		g.logger.Warn("AUTH_SESSION_CREATE_FAILED", slog.Any("err", err))
		g.replyAuthFailed(c, "AUTH_FAILED")
		return
	}

	g.connections.BindSession(c.ID(), s.ID)

	payload, _ := json.Marshal(authResponsePayload{Success: true, SessionID: s.ID.String()})
	c.Send(&model.Envelope{Kind: model.KindSystem, Type: "auth_response", Priority: model.PriorityHigh, Data: payload}, 250*time.Millisecond)
}

func (g *Gateway) replyAuthFailed(c *conn.Connection, errorCode string) {
	payload, _ := json.Marshal(authResponsePayload{Success: false, ErrorCode: errorCode})
	c.Send(&model.Envelope{Kind: model.KindSystem, Type: "auth_response", Priority: model.PriorityHigh, Data: payload}, 250*time.Millisecond)
}

type statusPayload struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type connectionInfoPayload struct {
	ConnectionID string `json:"connection_id"`
	HasSession   bool   `json:"has_session"`
	SessionID    string `json:"session_id,omitempty"`
}

type sessionInfoPayload struct {
	SessionID string    `json:"session_id"`
	PlayerID  string    `json:"player_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleGatewayOp serves gateway-local msg_ids (9000-9999): status, stats,
// connection info, session info. Anything outside that small, known set
// is UNKNOWN_GATEWAY_MESSAGE.
func (g *Gateway) handleGatewayOp(ctx context.Context, c *conn.Connection, env *model.Envelope) {
	switch env.MsgID {
	case gatewayMsgStatus:
		payload, _ := json.Marshal(statusPayload{Status: "ok", UptimeSeconds: time.Since(g.startedAt).Seconds()})
		g.replyGateway(c, payload)

	case gatewayMsgStats:
		cs := g.connections.Stats()
		rs := g.routeCache.Stats()
		payload, _ := json.Marshal(struct {
			Connections connpool.Stats  `json:"connections"`
			RouteCache  routecache.Stats `json:"route_cache"`
		}{Connections: cs, RouteCache: rs})
		g.replyGateway(c, payload)

	case gatewayMsgConnectionInfo:
		sessionID, hasSession := c.SessionID()
		p := connectionInfoPayload{ConnectionID: c.ID().String(), HasSession: hasSession}
		if hasSession {
			p.SessionID = sessionID.String()
		}
		payload, _ := json.Marshal(p)
		g.replyGateway(c, payload)

	case gatewayMsgSessionInfo:
		sessionID, hasSession := c.SessionID()
		if !hasSession {
			g.replyError(c, env, "NOT_AUTHENTICATED", "connection has no bound session")
			return
		}
		s, err := g.sessions.GetSession(ctx, sessionID.String())
		if err != nil {
			g.replyError(c, env, "SESSION_NOT_FOUND", err.Error())
			return
		}
		payload, _ := json.Marshal(sessionInfoPayload{SessionID: s.ID.String(), PlayerID: s.PlayerID, ExpiresAt: s.ExpiresAt})
		g.replyGateway(c, payload)

	default:
		g.replyError(c, env, "UNKNOWN_GATEWAY_MESSAGE", fmt.Sprintf("unknown gateway msg_id %d", env.MsgID))
	}
}

func (g *Gateway) replyGateway(c *conn.Connection, payload []byte) {
	c.Send(&model.Envelope{Kind: model.KindGateway, Type: "gateway_response", Priority: model.PriorityHigh, Data: payload}, 250*time.Millisecond)
}

type forwardAckPayload struct {
	OriginalMsgID int32  `json:"original_msg_id"`
	Sequence      string `json:"sequence,omitempty"`
}

// handleBusiness enqueues an authenticated business message into 4.D and
// replies based on the enqueue outcome alone -- forward_ack means the
// message is queued for delivery, not that it has been delivered.
func (g *Gateway) handleBusiness(ctx context.Context, c *conn.Connection, env *model.Envelope) {
	sessionID, hasSession := c.SessionID()
	if !hasSession {
		g.replyError(c, env, "NOT_AUTHENTICATED", "business messages require an authenticated session")
		return
	}

	if env.PlayerID == "" {
		if s, err := g.sessions.GetSession(ctx, sessionID.String()); err == nil {
			env.PlayerID = s.PlayerID
		}
	}

	if env.MsgID >= businessHighPriorityFloor && env.MsgID <= businessHighPriorityCeil {
		env.Priority = model.PriorityHigh
	} else {
		env.Priority = model.PriorityNormal
	}

	item := &queue.Item{Priority: int(env.Priority), Hash: env.Hash(), Payload: env}
	err := g.queue.Enqueue(item)
	switch {
	case err == nil:
		g.replyForwardAck(c, env)
	case errors.Is(err, queue.ErrRejected):
		g.replyError(c, env, "QUEUE_FULL", "message queue is at capacity")
	default:
		g.logger.Error("ENQUEUE_FAILED", slog.Int("msg_id", int(env.MsgID)), slog.Any("err", err))
		g.replyError(c, env, "MESSAGE_PROCESSING_ERROR", err.Error())
	}
}

func (g *Gateway) replyForwardAck(c *conn.Connection, env *model.Envelope) {
	payload, _ := json.Marshal(forwardAckPayload{OriginalMsgID: env.MsgID, Sequence: env.Sequence})
	c.Send(&model.Envelope{Kind: model.KindBusiness, Type: "forward_ack", Priority: model.PriorityHigh, Data: payload}, 250*time.Millisecond)
}

func (g *Gateway) replyError(c *conn.Connection, env *model.Envelope, errorCode, message string) {
	payload, _ := json.Marshal(struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message,omitempty"`
	}{ErrorCode: errorCode, Message: message})
	c.Send(&model.Envelope{
		Kind:      model.KindError,
		Type:      "error",
		MsgID:     env.MsgID,
		Sequence:  env.Sequence,
		ErrorCode: errorCode,
		Message:   message,
		Data:      payload,
		Priority:  model.PriorityHigh,
	}, 250*time.Millisecond)
}

// HTTPRouter exposes the HTTP observability surface: /health, /stats,
// /routing/stats, /admin/shutdown.
func (g *Gateway) HTTPRouter(shutdown func()) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		cs := g.connections.Stats()
		rs := g.routeCache.Stats()
		writeJSON(w, model.GatewayStats{
			Uptime: time.Since(g.startedAt),
			Connections: model.ConnectionStats{
				Active:           cs.Active,
				TotalCreated:     cs.TotalCreated,
				TotalDestroyed:   cs.TotalDestroyed,
				PeakConcurrent:   cs.PeakConcurrent,
				ConnectionErrors: cs.ConnectionErrors,
			},
			RouteCache: model.RouteCacheStats{
				Hits:   rs.Hits,
				Misses: rs.Misses,
				Size:   rs.Size,
			},
		})
	})

	r.Get("/routing/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, g.routeCache.Stats())
	})

	r.Post("/admin/shutdown", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		go shutdown()
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown stops every background subsystem in order, aggregating any
// failures with hashicorp/go-multierror rather than returning only the
// first one, since an operator needs to see every subsystem that failed
// to drain cleanly. Closing the queue first unblocks the dispatcher's
// run-loop so FlushAll sees its final, complete set of processors.
func (g *Gateway) Shutdown(_ context.Context) error {
	var result *multierror.Error

	g.queue.Close()
	g.dispatcher.FlushAll()
	g.connections.CloseAll()
	g.connections.Stop()
	g.sessions.Stop()
	g.registry.Stop()

	if err := g.rpcPool.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
