package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oa-space/admin-core/internal/modules/auth/session"
	pkgredis "github.com/oa-space/admin-core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// NewHub builds the socket.io hub. rc may be nil for single-instance setups.
func NewHub(store SessionStore, rc *pkgredis.Client, logger *zap.Logger, validate TokenValidator) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		userConn: make(map[string]Conn),
		store:    store,
		rc:       rc,
		logger:   logger.Named("GatewayHub"),
		sio:      socketio.NewServer(nil, nil),
		validate: validate,
	}
	h.registerNamespace()
	return h
}

// Run blocks until ctx is cancelled, servicing the cluster fan-out channel.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}
	<-ctx.Done()
	h.sio.Close(nil)
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

// Register upserts the user's live connection. A reconnect simply replaces
// the previous handle.
func (h *Hub) Register(userID string, conn Conn) {
	h.mu.Lock()
	h.userConn[userID] = conn
	h.mu.Unlock()
}

// RemoveByConn removes the mapping holding the given connection id. The
// disconnect event carries only the handle, so this is a reverse scan over
// the values; linear in active connections.
func (h *Hub) RemoveByConn(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conn := range h.userConn {
		if conn.ID() == connID {
			delete(h.userConn, userID)
			return
		}
	}
}

// ConnOf returns the user's live connection, if any.
func (h *Hub) ConnOf(userID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.userConn[userID]
	return conn, ok
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConn)
}

// ForceLogout pushes a forced-logout notice to the user's live connection
// (if any), removes the registry entry and marks the stored session. Push
// failures are logged and swallowed: the stored flag stays authoritative
// for the next request even when the client is offline.
func (h *Hub) ForceLogout(ctx context.Context, userID string) error {
	h.mu.Lock()
	conn, ok := h.userConn[userID]
	if ok {
		delete(h.userConn, userID)
	}
	h.mu.Unlock()

	if ok {
		if err := conn.Emit("message", gatewayPayload{Type: eventForceLogout, Data: "账号在其他位置被下线"}); err != nil {
			h.logger.Warn("强制下线推送失败", zap.String("user_id", userID), zap.Error(err))
		}
		conn.Close()
	} else if h.rc != nil {
		// The socket may be homed on another instance.
		data, _ := json.Marshal(forceLogoutNotice{UserID: userID})
		if err := h.rc.Publish(ctx, redisChanForceLogout, string(data)); err != nil {
			h.logger.Warn("强制下线广播失败", zap.String("user_id", userID), zap.Error(err))
		}
	}

	if err := h.store.MarkForcedLogout(ctx, userID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.logger.Info("强制下线时未找到会话", zap.String("user_id", userID))
			return nil
		}
		return err
	}
	return nil
}

// subscribeRedis delivers forced-logout pushes originated on other instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanForceLogout)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var notice forceLogoutNotice
			if err := json.Unmarshal([]byte(redisMsg.Payload), &notice); err != nil {
				continue
			}

			h.mu.Lock()
			conn, ok := h.userConn[notice.UserID]
			if ok {
				delete(h.userConn, notice.UserID)
			}
			h.mu.Unlock()

			if ok {
				if err := conn.Emit("message", gatewayPayload{Type: eventForceLogout, Data: "账号在其他位置被下线"}); err != nil {
					h.logger.Warn("强制下线推送失败", zap.String("user_id", notice.UserID), zap.Error(err))
				}
				conn.Close()
			}
		}
	}
}
