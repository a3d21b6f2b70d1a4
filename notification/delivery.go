package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"social-consistency/events"
	models "social-consistency/model"
)

// NATSDelivery publishes surviving notifications onto the delivery subject
// consumed by the out-of-band push/inbox services.
type NATSDelivery struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSDelivery(url string, log *zap.Logger) (*NATSDelivery, error) {
	if log == nil {
		log = zap.NewNop()
	}

	opts := []nats.Option{
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSDelivery{conn: conn, log: log}, nil
}

func (d *NATSDelivery) Deliver(ctx context.Context, n *models.Notification) error {
	event := events.NotificationCreatedEvent{
		NotificationID:   n.ID,
		RecipientID:      n.RecipientID,
		SenderID:         n.SenderID,
		Type:             n.Type,
		RelatedContentID: n.RelatedContentID,
		Message:          n.Message,
		CreatedAt:        n.CreatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := d.conn.Publish(events.NotificationCreated, data); err != nil {
		return err
	}
	d.log.Debug("published notification",
		zap.String("subject", events.NotificationCreated),
		zap.String("notification_id", n.ID.String()))
	return nil
}

func (d *NATSDelivery) Close() {
	if d.conn != nil {
		d.conn.Close()
	}
}
