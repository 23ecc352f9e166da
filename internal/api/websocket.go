package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/bateson-coach/internal/identity"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is an inbound websocket frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsReply is an outbound websocket frame.
type wsReply struct {
	Type   string      `json:"type"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WebSocketHandler runs coach turns over a websocket connection.
type WebSocketHandler struct {
	*Handler
	sockets       *SocketManager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(base *Handler, sockets *SocketManager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{Handler: base, sockets: sockets, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if sessionID == "" {
		Error(w, http.StatusBadRequest, errMissingSession.Error())
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	// Hijacked connections outlive the request context, so shutdown cancels
	// turns through the socket manager.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	release := h.sockets.Register(sessionID, ws, cancel)
	defer release()

	h.readLoop(ctx, ws, sessionID)
	slog.Info("Coach websocket ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(ctx, ws, wsReply{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "turn":
			h.handleTurn(ctx, ws, sessionID, msg.Content)
		case "ping":
			h.reply(ctx, ws, wsReply{Type: "pong"})
		default:
			h.reply(ctx, ws, wsReply{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) handleTurn(ctx context.Context, ws *websocket.Conn, sessionID, content string) {
	if h.limiter != nil && !h.limiter.Allow(sessionID) {
		h.reply(ctx, ws, wsReply{Type: "error", Error: "rate limit exceeded"})
		return
	}

	// Looked up per turn so a reset over HTTP takes effect on open sockets.
	sess := h.sessions.GetOrCreate(sessionID)
	res, err := h.coach.Turn(ctx, sess, content)
	if err != nil {
		if turnErrorStatus(err) >= http.StatusInternalServerError {
			slog.Error("Coach turn failed", "error", err, "session_id", sessionID)
		}
		h.reply(ctx, ws, wsReply{Type: "error", Error: err.Error()})
		return
	}
	h.reply(ctx, ws, wsReply{Type: "turn_result", Result: res})
}

func (h *WebSocketHandler) reply(ctx context.Context, ws *websocket.Conn, v wsReply) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal websocket reply", "error", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := ws.Write(wctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err, "type", v.Type)
	}
}
