package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/heartbeat-keeper/internal/connstate"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

// Authorized lists the proxies that currently hold a session.
type Authorized interface {
	AuthorizedProxies() []string
}

// Workers reports the occupied worker slots.
type Workers interface {
	Active() int
}

type Status struct {
	State               connstate.State `json:"state"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Degraded            bool            `json:"degraded"`
	LastChange          *time.Time      `json:"last_change,omitempty"`
	AuthorizedProxies   []string        `json:"authorized_proxies"`
	ActiveWorkers       int             `json:"active_workers"`
}

type StatusHandler struct {
	tracker    *connstate.Tracker
	authorized Authorized
	workers    Workers
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func NewStatusHandler(tracker *connstate.Tracker, authorized Authorized, workers Workers) *StatusHandler {
	return &StatusHandler{
		tracker:    tracker,
		authorized: authorized,
		workers:    workers,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Status collects the current view. Proxy credentials are redacted.
func (h *StatusHandler) Status() Status {
	snap := h.tracker.Snapshot()

	status := Status{
		State:               snap.State,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		Degraded:            snap.Degraded,
		AuthorizedProxies:   []string{},
	}
	if !snap.LastChange.IsZero() {
		status.LastChange = &snap.LastChange
	}

	if h.authorized != nil {
		for _, proxy := range h.authorized.AuthorizedProxies() {
			status.AuthorizedProxies = append(status.AuthorizedProxies, logger.RedactProxy(proxy))
		}
	}
	if h.workers != nil {
		status.ActiveWorkers = h.workers.Active()
	}

	return status
}

// Logging logs every request with its status and duration.
func Logging(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info("Handled request",
			slog.String("from", extractClientIP(r)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)))
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
