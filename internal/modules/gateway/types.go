package gateway

import (
	"context"
	"sync"

	pkgredis "github.com/oa-space/admin-core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceWeb = "/web"

	eventConnect     = "GATEWAY_CONNECT"
	eventAuthFailed  = "AUTH_FAILED"
	eventForceLogout = "forceLogout"

	redisChanForceLogout = "core:gateway:force_logout"
)

// Conn is the push side of one live client connection.
type Conn interface {
	ID() string
	Emit(event string, payload interface{}) error
	Close()
}

// SessionStore is the slice of the session store the hub drives.
type SessionStore interface {
	UpdateConnection(ctx context.Context, userID, connectionID string) error
	MarkForcedLogout(ctx context.Context, userID string) error
}

// TokenValidator resolves a raw bearer token to a user id.
type TokenValidator func(token string) (string, error)

// gatewayPayload is the envelope pushed to clients.
type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// forceLogoutNotice is the cluster fan-out message for forced logouts.
type forceLogoutNotice struct {
	UserID string `json:"user_id"`
}

// Hub tracks the live push channel per user and delivers forced-logout
// notices. The user map is mutated concurrently by connects, disconnects and
// admin actions; all access goes through the hub mutex.
type Hub struct {
	mu       sync.RWMutex
	userConn map[string]Conn

	store    SessionStore
	rc       *pkgredis.Client // nil disables cluster fan-out
	logger   *zap.Logger
	sio      *socketio.Server
	validate TokenValidator
}
