// Package notify is the fire-and-forget hook toward the notification
// service: every persisted message is announced so a durable notification
// record can be created out of band. Failures never affect message
// delivery.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"decormart/messaging-service/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	MessageCreated(ctx context.Context, msg *models.Message) error
	Close()
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) MessageCreated(context.Context, *models.Message) error { return nil }
func (Noop) Close()                                                {}

// messageCreatedEvent is the payload published for the notification
// service.
type messageCreatedEvent struct {
	Type      string          `json:"type"`
	Message   *models.Message `json:"message"`
	EmittedAt time.Time       `json:"emitted_at"`
}

type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

func NewNATSNotifier(url, subject string, logger *logrus.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("messaging-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}, nil
}

func (n *NATSNotifier) MessageCreated(_ context.Context, msg *models.Message) error {
	payload, err := json.Marshal(messageCreatedEvent{
		Type:      "message.created",
		Message:   msg,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"subject":    n.subject,
	}).Debug("Notification event published")

	return nil
}

func (n *NATSNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
