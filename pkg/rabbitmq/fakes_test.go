package rabbitmq

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	closed     bool
	notify     []chan *amqp.Error
	publishErr error
	closeErr   error
	sent       []published
}

func (c *fakeChannel) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.shutdown(nil)
	return c.closeErr
}

// shutdown marks the channel closed and notifies listeners, with cause when
// the broker initiated it.
func (c *fakeChannel) shutdown(cause *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	notify := c.notify
	c.notify = nil
	c.mu.Unlock()

	for _, n := range notify {
		if cause != nil {
			n <- cause
		}
		close(n)
	}
}

func (c *fakeChannel) Sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]published, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeConn struct {
	mu          sync.Mutex
	closed      bool
	closeCalls  int
	notify      []chan *amqp.Error
	channels    []*fakeChannel
	channelErr  error
	nextChannel *fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	ch := c.nextChannel
	c.nextChannel = nil
	if ch == nil {
		ch = &fakeChannel{}
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *fakeConn) shutdown(cause *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	notify := c.notify
	c.notify = nil
	channels := c.channels
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(cause)
	}
	for _, n := range notify {
		if cause != nil {
			n <- cause
		}
		close(n)
	}
}

func (c *fakeConn) failChannels(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelErr = err
}

func (c *fakeConn) Channels() []*fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

func (c *fakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
	uris  []string
	cfgs  []amqp.Config
	next  *fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, uri string, cfg amqp.Config) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uris = append(d.uris, uri)
	d.cfgs = append(d.cfgs, cfg)
	if d.err != nil {
		return nil, d.err
	}
	conn := d.next
	d.next = nil
	if conn == nil {
		conn = &fakeConn{}
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uris)
}

func (d *fakeDialer) Last() (*fakeConn, amqp.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1], d.cfgs[len(d.cfgs)-1]
}

var errIO = errors.New("write: broken pipe")
