package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/observability"
	"github.com/fixmyward/ward-service/internal/wardroom"
)

const wsUserKey = "ws_user_id"

// RealtimeHandler upgrades authenticated requests to ward-room websockets.
type RealtimeHandler struct {
	authn   *auth.AuthMiddleware
	hub     *wardroom.Hub
	opts    wardroom.ClientOptions
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(authn *auth.AuthMiddleware, hub *wardroom.Hub, opts wardroom.ClientOptions, metrics *observability.Metrics, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{authn: authn, hub: hub, opts: opts, metrics: metrics, logger: logger}
}

// Upgrade authenticates the handshake. Browsers cannot set headers on a
// websocket, so the token may also arrive as ?token=.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		var err error
		if token, err = auth.BearerToken(c.Get(fiber.HeaderAuthorization)); err != nil {
			return err
		}
	}
	principal, err := h.authn.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(wsUserKey, principal.UserID)
	return c.Next()
}

// Serve GET /ws.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(wsUserKey).(string)

		h.metrics.ConnectionOpened()
		defer h.metrics.ConnectionClosed()

		client := wardroom.NewClient(conn, h.hub, userID, h.opts, h.logger)
		h.logger.Debug("websocket connected", zap.String("conn_id", client.ID()), zap.String("user_id", userID))
		client.Run()
		h.logger.Debug("websocket closed", zap.String("conn_id", client.ID()))
	})
}
