package gateway

import (
	"context"
	"sync"
	"time"

	"decormart/messaging-service/internal/events"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one authenticated websocket connection. Writes go through a
// buffered channel drained by a single writer goroutine; the read loop
// processes inbound events sequentially, which is what gives each
// connection its run-to-completion ordering.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan events.Outbound
	logger *logrus.Logger
	cfg    Config

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(userID string, conn *websocket.Conn, cfg Config, logger *logrus.Logger) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan events.Outbound, cfg.SendBuffer),
		logger: logger,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() string {
	return c.userID
}

// Send enqueues an outbound event. Delivery is at-most-once: when the
// buffer is full or the connection is shutting down the event is dropped
// and Send reports false.
func (c *Client) Send(ev events.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.logger.WithFields(logrus.Fields{
			"user_id": c.userID,
			"event":   ev.Event,
		}).Warn("Send buffer full, dropping event")
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump is the connection's only writer. It also owns the keepalive
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.WithError(err).WithField("user_id", c.userID).Debug("Write failed, closing connection")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks until the connection dies. Every frame is decoded into
// its typed event and handed to the router; a frame that does not decode
// earns an error push but keeps the connection alive.
func (c *Client) readPump(ctx context.Context, router EventHandler) {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.WithError(err).WithField("user_id", c.userID).Debug("Connection read error")
			}
			return
		}

		ev, err := events.Decode(raw)
		if err != nil {
			c.logger.WithError(err).WithField("user_id", c.userID).Debug("Dropping undecodable frame")
			c.Send(events.NewErrorPush("invalid event"))
			continue
		}

		router.HandleEvent(ctx, c, ev)
	}
}
