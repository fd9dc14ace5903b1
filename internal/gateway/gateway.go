// Package gateway turns inbound websocket connections into authenticated,
// identity-tagged event channels and keeps the presence registry in step
// with each connection's lifecycle.
package gateway

import (
	"context"
	"net/http"
	"time"

	"decormart/messaging-service/internal/auth"
	"decormart/messaging-service/internal/events"
	"decormart/messaging-service/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventHandler consumes decoded inbound events. Satisfied by
// service.EventRouter.
type EventHandler interface {
	HandleEvent(ctx context.Context, sender presence.Conn, ev events.Inbound)
}

type Config struct {
	SendBuffer   int
	ReadLimit    int64
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

func (c *Config) withDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 8192
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
}

func (c Config) pingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

type Gateway struct {
	sessions *auth.Sessions
	registry *presence.Registry
	router   EventHandler
	logger   *logrus.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

func NewGateway(sessions *auth.Sessions, registry *presence.Registry, router EventHandler, cfg Config, logger *logrus.Logger) *Gateway {
	cfg.withDefaults()
	return &Gateway{
		sessions: sessions,
		registry: registry,
		router:   router,
		logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Session auth is the access control; the storefront and the
			// service run on different origins in every deployment.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS authenticates the handshake, upgrades, registers the connection
// and services it until it closes. An invalid session is rejected before
// any event can be exchanged; there is no in-gateway retry.
func (g *Gateway) HandleWS(c *gin.Context) {
	claims, err := g.sessions.Validate(auth.TokenFromRequest(c.Request))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := newClient(claims.UserID, ws, g.cfg, g.logger)

	// Last-connected-wins: a reconnect replaces any previous entry.
	g.registry.Register(client.userID, client)
	g.logger.WithFields(logrus.Fields{
		"user_id": client.userID,
		"online":  g.registry.Count(),
	}).Info("Connection established")

	go client.writePump()
	client.readPump(c.Request.Context(), g.router)

	// Stale-close guard: only drops the entry if it still points at this
	// connection, so a newer registration survives this one's close.
	g.registry.Unregister(client.userID, client)
	client.close()
	g.logger.WithFields(logrus.Fields{
		"user_id": client.userID,
		"online":  g.registry.Count(),
	}).Info("Connection closed")
}
