package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventAuthenticated      EventType = "authenticated"
	EventDeauthenticated    EventType = "deauthenticated"
	EventHeartbeatSucceeded EventType = "heartbeat_succeeded"
	EventHeartbeatFailed    EventType = "heartbeat_failed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Proxy     string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues an event without blocking. A nil collector ignores events so
// components can run without metrics.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventAuthenticated:
		c.metrics.RecordAuthentication(event.Proxy)
	case EventDeauthenticated:
		c.metrics.RecordDeauthentication(event.Proxy)
	case EventHeartbeatSucceeded:
		c.metrics.RecordHeartbeat(event.Proxy, true, event.Timestamp)
	case EventHeartbeatFailed:
		c.metrics.RecordHeartbeat(event.Proxy, false, event.Timestamp)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
