package publisher

import (
	"context"
	"time"
)

// monitor reconnects the session whenever it is not ready. The first check
// runs after StartupDelay, then one check per MonitorInterval.
func (p *Publisher) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(p.cfg.StartupDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		p.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Publisher) check(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("connection check panicked", "panic", r)
		}
	}()

	if p.sess.IsReady() {
		return
	}
	p.connect(ctx)
}

func (p *Publisher) connect(ctx context.Context) bool {
	if err := p.sess.Connect(ctx); err != nil {
		if ctx.Err() == nil {
			p.log.Warnw("failed to connect to broker, will retry", "error", err)
		}
		return false
	}
	p.log.Info("connected to broker")
	p.signalReady()
	return true
}

func (p *Publisher) signalReady() {
	select {
	case p.readyCh <- struct{}{}:
	default:
	}
}
