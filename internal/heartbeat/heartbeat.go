package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/heartbeat-keeper/internal/caller"
	"github.com/angeloszaimis/heartbeat-keeper/internal/connstate"
	"github.com/angeloszaimis/heartbeat-keeper/internal/metrics"
	"github.com/angeloszaimis/heartbeat-keeper/internal/session"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

type Caller interface {
	Call(ctx context.Context, endpoint string, payload any, proxy, token string) caller.Result
}

// Sessions exposes the per-proxy session state a Pinger reads and demotes.
type Sessions interface {
	Authorized(proxy string) bool
	Record(proxy string) (session.Record, bool)
	Deauthenticate(proxy string)
}

type Options struct {
	Endpoints []string
	Interval  time.Duration
	Version   string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Payload is the body of one heartbeat request.
type Payload struct {
	ID        string `json:"id"`
	BrowserID string `json:"browser_id"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

type Pinger struct {
	caller   Caller
	sessions Sessions
	tracker  *connstate.Tracker
	metrics  *metrics.Collector
	opts     Options
	logger   *slog.Logger

	mutex    sync.Mutex
	lastTick map[string]time.Time
}

func New(
	c Caller,
	sessions Sessions,
	tracker *connstate.Tracker,
	collector *metrics.Collector,
	opts Options,
	log *slog.Logger,
) *Pinger {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pinger{
		caller:   c,
		sessions: sessions,
		tracker:  tracker,
		metrics:  collector,
		opts:     opts,
		logger:   log.With(slog.String("component", "heartbeat")),
		lastTick: make(map[string]time.Time),
	}
}

// Run heartbeats proxy until ctx is cancelled or the proxy is
// de-authenticated. Tick errors are logged and never end the loop.
func (p *Pinger) Run(ctx context.Context, proxy, token string) {
	log := p.logger.With(logger.ProxyAttr(proxy))
	log.Info("Heartbeat started", slog.Duration("interval", p.opts.Interval))

	timer := time.NewTimer(p.opts.Interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if err := p.Tick(ctx, proxy, token); err != nil {
			if ctx.Err() != nil {
				log.Info("Heartbeat stopped")
				return
			}
			log.Error("Heartbeat tick failed", slog.String("error", err.Error()))
		}

		if !p.sessions.Authorized(proxy) {
			log.Info("Heartbeat ended, proxy is no longer authorized")
			return
		}

		timer.Reset(p.opts.Interval)
		select {
		case <-ctx.Done():
			log.Info("Heartbeat stopped")
			return
		case <-timer.C:
		}
	}
}

// Tick sends one heartbeat for proxy. It returns nil when the tick was
// debounced or its outcome was recorded, session.ErrNoSession when proxy
// has no session and the context error when cancelled mid-tick.
func (p *Pinger) Tick(ctx context.Context, proxy, token string) error {
	rec, ok := p.sessions.Record(proxy)
	if !ok {
		return fmt.Errorf("heartbeat %s: %w", logger.RedactProxy(proxy), session.ErrNoSession)
	}

	now := p.opts.Now()
	if !p.claim(proxy, now) {
		p.logger.Debug("Heartbeat debounced", logger.ProxyAttr(proxy))
		return nil
	}

	payload := Payload{
		ID:        rec.UserID,
		BrowserID: rec.BrowserID,
		Timestamp: now.Unix(),
		Version:   p.opts.Version,
	}

	last := caller.Result{Outcome: caller.OutcomeNoResponse}
	for _, endpoint := range p.opts.Endpoints {
		res := p.caller.Call(ctx, endpoint, payload, proxy, token)

		switch {
		case res.Outcome == caller.OutcomeCanceled:
			return ctxErr(ctx, res.Err)
		case res.OK() && res.Reply.Success():
			p.tracker.RecordSuccess()
			p.metrics.Emit(metrics.MetricEvent{Type: metrics.EventHeartbeatSucceeded, Proxy: proxy})
			p.logger.Info("Heartbeat successful",
				logger.ProxyAttr(proxy),
				slog.String("endpoint", endpoint))
			return nil
		}

		last = res
		p.logger.Warn("Heartbeat endpoint failed",
			logger.ProxyAttr(proxy),
			slog.String("endpoint", endpoint),
			slog.String("outcome", res.Outcome.String()),
			slog.Int("code", res.Reply.StatusCode()))

		if res.Unauthorized() {
			break
		}
	}

	p.handleFailure(proxy, last)
	return nil
}

// Forget drops the debounce entry of proxy so its next tick runs at once.
func (p *Pinger) Forget(proxy string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.lastTick, proxy)
}

func (p *Pinger) claim(proxy string, now time.Time) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if last, ok := p.lastTick[proxy]; ok && now.Sub(last) < p.opts.Interval {
		return false
	}
	p.lastTick[proxy] = now
	return true
}

func (p *Pinger) handleFailure(proxy string, last caller.Result) {
	unauthorized := last.Unauthorized()
	failures := p.tracker.RecordFailure(unauthorized)
	p.metrics.Emit(metrics.MetricEvent{Type: metrics.EventHeartbeatFailed, Proxy: proxy})

	if unauthorized {
		p.logger.Warn("Heartbeat rejected, de-authenticating proxy",
			logger.ProxyAttr(proxy),
			slog.Int("consecutive_failures", failures))
		// A re-authenticated session heartbeats at once.
		p.Forget(proxy)
		p.sessions.Deauthenticate(proxy)
		return
	}

	p.logger.Error("Heartbeat failed on all endpoints",
		logger.ProxyAttr(proxy),
		slog.String("outcome", last.Outcome.String()),
		slog.Int("consecutive_failures", failures))
}

func ctxErr(ctx context.Context, err error) error {
	if ctxe := ctx.Err(); ctxe != nil {
		return ctxe
	}
	if err == nil {
		return errors.New("heartbeat canceled")
	}
	return err
}
