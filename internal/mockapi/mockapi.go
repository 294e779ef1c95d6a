// Package mockapi is an in-process stand-in for the session and heartbeat
// service, used by tests and by scripts/mockapi for local runs.
package mockapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const (
	SessionPath = "/session"
	PingPath    = "/ping"
)

// API answers session requests with a fixed profile and heartbeat requests
// with a configurable code.
type API struct {
	userID string
	logger *slog.Logger

	mutex         sync.Mutex
	sessionStatus int
	pingStatus    int
	pingCode      int
	sessions      int
	pings         []Ping
}

// Ping is a heartbeat as received by the API.
type Ping struct {
	ID        string `json:"id"`
	BrowserID string `json:"browser_id"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"msg,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func New(userID string, log *slog.Logger) *API {
	return &API{
		userID:        userID,
		logger:        log.With(slog.String("component", "mockapi")),
		sessionStatus: http.StatusOK,
		pingStatus:    http.StatusOK,
	}
}

// SetSessionStatus makes /session answer with the given HTTP status.
func (a *API) SetSessionStatus(status int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.sessionStatus = status
}

// SetPing makes /ping answer with the given HTTP status and payload code.
func (a *API) SetPing(status, code int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.pingStatus = status
	a.pingCode = code
}

func (a *API) Sessions() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.sessions
}

func (a *API) Pings() []Ping {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]Ping(nil), a.pings...)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer")) == "" {
		writeJSON(w, http.StatusOK, envelope{Code: http.StatusUnauthorized, Message: "missing token"})
		return
	}

	switch r.URL.Path {
	case SessionPath:
		a.serveSession(w)
	case PingPath:
		a.servePing(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) serveSession(w http.ResponseWriter) {
	a.mutex.Lock()
	a.sessions++
	status := a.sessionStatus
	a.mutex.Unlock()

	a.logger.Debug("Session request", slog.Int("status", status))

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: 0, Data: map[string]string{"uid": a.userID}})
}

func (a *API) servePing(w http.ResponseWriter, r *http.Request) {
	var ping Ping
	if err := json.NewDecoder(r.Body).Decode(&ping); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	a.mutex.Lock()
	a.pings = append(a.pings, ping)
	status, code := a.pingStatus, a.pingCode
	a.mutex.Unlock()

	a.logger.Debug("Ping request",
		slog.String("id", ping.ID),
		slog.String("browser_id", ping.BrowserID),
		slog.Int("status", status))

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
