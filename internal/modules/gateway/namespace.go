package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/oa-space/admin-core/internal/modules/auth/session"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// socketConn adapts a socket.io socket to the Conn interface.
type socketConn struct {
	s *socketio.Socket
}

func (c *socketConn) ID() string { return string(c.s.Id()) }

func (c *socketConn) Emit(event string, payload interface{}) error {
	return c.s.Emit(event, payload)
}

func (c *socketConn) Close() { c.s.Disconnect(true) }

func (h *Hub) registerNamespace() {
	webNS := h.sio.Of(namespaceWeb, nil)
	_ = webNS.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(client))
		if token == "" || h.validate == nil {
			_ = client.Emit("message", gatewayPayload{Type: eventAuthFailed, Data: "auth failed"})
			client.Disconnect(true)
			return
		}
		userID, err := h.validate(token)
		if err != nil {
			_ = client.Emit("message", gatewayPayload{Type: eventAuthFailed, Data: "auth failed"})
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		h.Register(userID, &socketConn{s: client})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.store.UpdateConnection(ctx, userID, sid); err != nil && err != session.ErrNotFound {
			h.logger.Warn("更新会话连接信息失败", zap.String("user_id", userID), zap.Error(err))
		}
		cancel()

		_ = client.Emit("message", gatewayPayload{Type: eventConnect, Data: "WebSocket connected"})

		_ = client.On("disconnect", func(_ ...any) {
			h.RemoveByConn(sid)
		})
	})
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(handshake.Headers, "authorization")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
