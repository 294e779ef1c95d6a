package caller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

// ErrInvalidResponse marks a reply that arrived but carries no usable code.
var ErrInvalidResponse = errors.New("invalid response")

type Options struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     Backoff
	// Sleep waits between attempts; defaults to Sleep.
	Sleep SleepFunc
}

// Caller wraps a Transport with retries. It keeps no state between calls
// and is safe for concurrent use.
type Caller struct {
	transport Transport
	opts      Options
	logger    *slog.Logger
}

func New(transport Transport, opts Options, log *slog.Logger) *Caller {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Backoff.Base <= 0 || opts.Backoff.Unit <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}

	return &Caller{
		transport: transport,
		opts:      opts,
		logger:    log.With(slog.String("component", "caller")),
	}
}

// Call posts payload to endpoint through proxy, retrying retryable failures
// up to MaxAttempts times. A 403 or a malformed reply ends the call at once.
func (c *Caller) Call(ctx context.Context, endpoint string, payload any, proxy, token string) Result {
	log := c.logger.With(logger.ProxyAttr(proxy), slog.String("endpoint", endpoint))

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.opts.Sleep(ctx, c.opts.Backoff.Delay(attempt-1)); err != nil {
				return Result{Outcome: OutcomeCanceled, Attempts: attempt, Err: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{Outcome: OutcomeCanceled, Attempts: attempt, Err: err}
		}

		n := attempt + 1
		reply, err := c.attempt(ctx, Request{
			Endpoint: endpoint,
			Payload:  payload,
			Proxy:    proxy,
			Token:    token,
		})

		if err == nil {
			if !reply.valid() {
				log.Error("Invalid response",
					slog.Int("attempt", n),
					slog.Int("code", reply.StatusCode()))
				return Result{Outcome: OutcomeInvalid, Reply: reply, Attempts: n, Err: ErrInvalidResponse}
			}

			log.Debug("Request succeeded",
				slog.Int("attempt", n),
				slog.Int("code", reply.StatusCode()))
			return Result{Outcome: OutcomeOK, Reply: reply, Attempts: n}
		}

		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Outcome: OutcomeCanceled, Attempts: n, Err: ctxErr}
		}

		var statusErr *StatusError
		var netErr net.Error
		switch {
		case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden:
			log.Error("Forbidden, giving up", slog.Int("attempt", n))
			return Result{Outcome: OutcomeForbidden, Attempts: n, Err: err}
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
			log.Warn("Timeout, retrying",
				slog.Int("attempt", n),
				slog.Int("max_attempts", c.opts.MaxAttempts))
		case errors.As(err, &netErr):
			log.Warn("Connection error, retrying",
				slog.Int("attempt", n),
				slog.Int("max_attempts", c.opts.MaxAttempts),
				slog.String("error", err.Error()))
		default:
			log.Error("Request failed, retrying",
				slog.Int("attempt", n),
				slog.Int("max_attempts", c.opts.MaxAttempts),
				slog.String("error", err.Error()))
		}
	}

	log.Error("No response after retries", slog.Int("attempts", c.opts.MaxAttempts))
	return Result{Outcome: OutcomeNoResponse, Attempts: c.opts.MaxAttempts, Err: lastErr}
}

func (c *Caller) attempt(ctx context.Context, req Request) (*Reply, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.transport.Post(attemptCtx, req)
	if err != nil {
		return nil, err
	}

	var reply Reply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &reply, nil
}
