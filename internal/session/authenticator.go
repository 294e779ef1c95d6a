package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/heartbeat-keeper/internal/caller"
	"github.com/angeloszaimis/heartbeat-keeper/internal/metrics"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

// Caller is the subset of caller.Caller the authenticator needs.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload any, proxy, token string) caller.Result
}

type Authenticator struct {
	caller   Caller
	registry *Registry
	store    Store
	endpoint string
	metrics  *metrics.Collector
	logger   *slog.Logger

	newBrowserID func() string
	now          func() time.Time
}

func NewAuthenticator(
	c Caller,
	registry *Registry,
	store Store,
	endpoint string,
	collector *metrics.Collector,
	log *slog.Logger,
) *Authenticator {
	return &Authenticator{
		caller:       c,
		registry:     registry,
		store:        store,
		endpoint:     endpoint,
		metrics:      collector,
		logger:       log.With(slog.String("component", "authenticator")),
		newBrowserID: uuid.NewString,
		now:          time.Now,
	}
}

func (a *Authenticator) Registry() *Registry {
	return a.registry
}

func (a *Authenticator) Authorized(proxy string) bool {
	return a.registry.Authorized(proxy)
}

func (a *Authenticator) Record(proxy string) (Record, bool) {
	return a.registry.Record(proxy)
}

// Authenticate obtains a session for proxy unless one is already cached.
// Transport failures leave the proxy unauthenticated; a profile without a
// user id de-authenticates it. The returned error reports only persistence
// failures, the session stays valid in memory when saving fails.
func (a *Authenticator) Authenticate(ctx context.Context, proxy, token string) error {
	if a.registry.Authorized(proxy) {
		return nil
	}

	log := a.logger.With(logger.ProxyAttr(proxy))

	previous, err := a.store.Load(ctx, proxy)
	if err != nil {
		log.Warn("Failed to load saved session", slog.String("error", err.Error()))
	}

	browserID := a.newBrowserID()
	res := a.caller.Call(ctx, a.endpoint, struct{}{}, proxy, token)
	if !res.OK() {
		log.Warn("Authentication got no usable response", slog.String("outcome", res.Outcome.String()))
		return nil
	}

	userID, err := userIDFromProfile(res.Reply.Data)
	if err != nil || userID == "" {
		log.Warn("Session profile has no user id")
		a.Deauthenticate(proxy)
		return nil
	}

	rec := Record{
		Proxy:     proxy,
		UserID:    userID,
		BrowserID: browserID,
		Profile:   append(json.RawMessage(nil), res.Reply.Data...),
		CreatedAt: a.now(),
	}
	a.registry.Authorize(rec)
	a.metrics.Emit(metrics.MetricEvent{Type: metrics.EventAuthenticated, Proxy: proxy})

	if previous != nil && previous.UserID != userID {
		log.Warn("Proxy now authenticates a different account",
			slog.String("previous_user_id", previous.UserID),
			slog.String("user_id", userID))
	}

	log.Info("Authentication successful",
		slog.String("user_id", userID),
		slog.String("browser_id", browserID))

	if err := a.store.Save(ctx, &rec); err != nil {
		log.Error("Failed to save session", slog.String("error", err.Error()))
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// Deauthenticate drops the cached authorization and session of proxy. The
// owning worker notices the cleared flag and stops heartbeating.
func (a *Authenticator) Deauthenticate(proxy string) {
	if a.registry.Revoke(proxy) {
		a.metrics.Emit(metrics.MetricEvent{Type: metrics.EventDeauthenticated, Proxy: proxy})
	}
	a.logger.Warn("Proxy de-authenticated", logger.ProxyAttr(proxy))
}

func userIDFromProfile(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	var profile map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&profile); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}

	switch uid := profile["uid"].(type) {
	case string:
		return uid, nil
	case json.Number:
		return uid.String(), nil
	default:
		return "", nil
	}
}
