package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is the subset of *amqp.Connection the session uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Channel is the subset of *amqp.Channel the session uses.
type Channel interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(ctx context.Context, uri string, cfg amqp.Config) (Connection, error)
}

// AMQPDialer dials real brokers with amqp091-go.
type AMQPDialer struct {
	// Confirm puts every channel opened on the connection in confirm mode.
	Confirm bool
	// Timeout bounds TCP connect and the protocol handshake.
	Timeout time.Duration
}

func (d AMQPDialer) Dial(ctx context.Context, uri string, cfg amqp.Config) (Connection, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	cfg.Dial = func(network, addr string) (net.Conn, error) {
		nd := net.Dialer{Timeout: timeout}
		conn, err := nd.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		// Heartbeating has not started yet; do not stall forever on a dead server.
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close() //nolint:errcheck // already returning an error
			return nil, err
		}
		return conn, nil
	}

	conn, err := amqp.DialConfig(uri, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn, confirm: d.Confirm}, nil
}

type amqpConnection struct {
	conn    *amqp.Connection
	confirm bool
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if c.confirm {
		if err := ch.Confirm(false); err != nil {
			ch.Close() //nolint:errcheck // already returning an error
			return nil, fmt.Errorf("enable confirm mode: %w", err)
		}
	}
	return &amqpChannel{ch: ch, confirm: c.confirm}, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) IsClosed() bool { return c.conn.IsClosed() }

func (c *amqpConnection) Close() error { return c.conn.Close() }

type amqpChannel struct {
	ch      *amqp.Channel
	confirm bool
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if !c.confirm {
		return c.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
	}

	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

func (c *amqpChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.ch.NotifyClose(receiver)
}

func (c *amqpChannel) IsClosed() bool { return c.ch.IsClosed() }

func (c *amqpChannel) Close() error { return c.ch.Close() }
