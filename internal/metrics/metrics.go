package metrics

import (
	"sync"
	"time"

	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

type Metrics struct {
	mutex             sync.RWMutex
	authentications   map[string]int64
	deauthentications map[string]int64
	heartbeatsOK      map[string]int64
	heartbeatsFailed  map[string]int64
	lastHeartbeat     map[string]time.Time
	startTime         time.Time
}

type Snapshot struct {
	Uptime          time.Duration           `json:"uptime"`
	TotalHeartbeats int64                   `json:"total_heartbeats"`
	TotalFailures   int64                   `json:"total_failures"`
	Proxies         map[string]ProxyMetrics `json:"proxies"`
}

type ProxyMetrics struct {
	Authentications   int64     `json:"authentications"`
	Deauthentications int64     `json:"deauthentications"`
	Heartbeats        int64     `json:"heartbeats"`
	Failures          int64     `json:"failures"`
	LastHeartbeat     time.Time `json:"last_heartbeat,omitempty"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		authentications:   make(map[string]int64),
		deauthentications: make(map[string]int64),
		heartbeatsOK:      make(map[string]int64),
		heartbeatsFailed:  make(map[string]int64),
		lastHeartbeat:     make(map[string]time.Time),
		startTime:         time.Now(),
	}
}

func (m *Metrics) RecordAuthentication(proxy string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.authentications[proxy]++
}

func (m *Metrics) RecordDeauthentication(proxy string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.deauthentications[proxy]++
}

func (m *Metrics) RecordHeartbeat(proxy string, ok bool, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !ok {
		m.heartbeatsFailed[proxy]++
		return
	}

	m.heartbeatsOK[proxy]++
	if at.After(m.lastHeartbeat[proxy]) {
		m.lastHeartbeat[proxy] = at
	}
}

// Snapshot copies the current counters. Proxy keys are redacted so the
// snapshot can be served without exposing proxy credentials; counters of
// proxies that redact to the same key are summed.
func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:  time.Since(m.startTime),
		Proxies: make(map[string]ProxyMetrics),
	}

	allProxies := make(map[string]bool)
	for _, counters := range []map[string]int64{m.authentications, m.deauthentications, m.heartbeatsOK, m.heartbeatsFailed} {
		for proxy := range counters {
			allProxies[proxy] = true
		}
	}

	for proxy := range allProxies {
		pm := ProxyMetrics{
			Authentications:   m.authentications[proxy],
			Deauthentications: m.deauthentications[proxy],
			Heartbeats:        m.heartbeatsOK[proxy],
			Failures:          m.heartbeatsFailed[proxy],
			LastHeartbeat:     m.lastHeartbeat[proxy],
		}
		snap.TotalHeartbeats += pm.Heartbeats
		snap.TotalFailures += pm.Failures

		// Proxies differing only in password share a redacted key.
		key := logger.RedactProxy(proxy)
		if prev, ok := snap.Proxies[key]; ok {
			pm.Authentications += prev.Authentications
			pm.Deauthentications += prev.Deauthentications
			pm.Heartbeats += prev.Heartbeats
			pm.Failures += prev.Failures
			if prev.LastHeartbeat.After(pm.LastHeartbeat) {
				pm.LastHeartbeat = prev.LastHeartbeat
			}
		}
		snap.Proxies[key] = pm
	}

	return snap
}
