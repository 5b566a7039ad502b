package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ava-labs/event-publisher/pkg/session"
)

// publishing builds the AMQP message for msg: fixed content type and
// encoding, configured app id, delivery mode, priority and headers, plus the
// per-message id, type, timestamp and headers.
func (s *Session) publishing(msg session.Message) amqp.Publishing {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return amqp.Publishing{
		Headers:         amqp.Table(s.cfg.Headers.Merge(msg.Headers)),
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		DeliveryMode:    s.cfg.DeliveryMode,
		Priority:        s.cfg.Priority,
		MessageId:       msg.ID,
		Timestamp:       ts,
		Type:            msg.Type,
		AppId:           s.cfg.AppID,
		Body:            msg.Body,
	}
}
