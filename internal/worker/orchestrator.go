package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/angeloszaimis/heartbeat-keeper/internal/accounts"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

type Authenticator interface {
	Authenticate(ctx context.Context, proxy, token string) error
	Authorized(proxy string) bool
}

type Heartbeater interface {
	Run(ctx context.Context, proxy, token string)
}

type Options struct {
	MaxConcurrent int64
	// ReauthDelay re-runs a worker that lost its session after the delay.
	// Zero ends the worker instead.
	ReauthDelay time.Duration
}

type Orchestrator struct {
	auth      Authenticator
	heartbeat Heartbeater
	sem       *semaphore.Weighted
	opts      Options
	logger    *slog.Logger

	mutex   sync.Mutex
	cancels map[string]context.CancelFunc
	active  int64
}

func New(auth Authenticator, hb Heartbeater, opts Options, log *slog.Logger) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 100
	}

	return &Orchestrator{
		auth:      auth,
		heartbeat: hb,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		opts:      opts,
		logger:    log.With(slog.String("component", "orchestrator")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Run starts one worker per unique proxy and blocks until every worker has
// exited. Workers beyond the ceiling wait for a free slot; cancelling ctx
// stops the waiting and the running ones alike.
func (o *Orchestrator) Run(ctx context.Context, accts []accounts.Account) {
	var wg sync.WaitGroup
	defer wg.Wait()

	o.logger.Info("Starting workers",
		slog.Int("accounts", len(accts)),
		slog.Int64("max_concurrent", o.opts.MaxConcurrent))

	seen := make(map[string]bool, len(accts))
	for _, acct := range accts {
		if seen[acct.Proxy] {
			o.logger.Warn("Duplicate proxy skipped", logger.ProxyAttr(acct.Proxy))
			continue
		}
		seen[acct.Proxy] = true

		workerCtx, ok := o.register(ctx, acct.Proxy)
		if !ok {
			o.logger.Warn("Proxy already has a worker", logger.ProxyAttr(acct.Proxy))
			continue
		}

		if err := o.sem.Acquire(workerCtx, 1); err != nil {
			o.unregister(acct.Proxy)
			if ctx.Err() != nil {
				o.logger.Info("Dispatch stopped", slog.String("reason", ctx.Err().Error()))
				return
			}
			continue
		}
		o.adjustActive(1)

		wg.Add(1)
		go func(acct accounts.Account) {
			defer wg.Done()
			defer o.sem.Release(1)
			defer o.adjustActive(-1)
			defer o.unregister(acct.Proxy)

			o.work(workerCtx, acct)
		}(acct)
	}
}

// Stop cancels the worker of proxy, whether running or waiting for a slot.
// It reports whether such a worker existed.
func (o *Orchestrator) Stop(proxy string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	cancel, ok := o.cancels[proxy]
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of occupied worker slots.
func (o *Orchestrator) Active() int {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return int(o.active)
}

func (o *Orchestrator) work(ctx context.Context, acct accounts.Account) {
	log := o.logger.With(logger.ProxyAttr(acct.Proxy))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()

	log.Info("Worker started")
	defer log.Info("Worker exited")

	for {
		if err := o.auth.Authenticate(ctx, acct.Proxy, acct.Token); err != nil {
			log.Error("Authentication error", slog.String("error", err.Error()))
		}

		if o.auth.Authorized(acct.Proxy) {
			o.heartbeat.Run(ctx, acct.Proxy, acct.Token)
		}

		if ctx.Err() != nil || o.opts.ReauthDelay <= 0 {
			return
		}

		log.Info("Retrying authentication", slog.Duration("delay", o.opts.ReauthDelay))
		timer := time.NewTimer(o.opts.ReauthDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) register(parent context.Context, proxy string) (context.Context, bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.cancels[proxy]; exists {
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	o.cancels[proxy] = cancel
	return ctx, true
}

func (o *Orchestrator) unregister(proxy string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if cancel, ok := o.cancels[proxy]; ok {
		cancel()
		delete(o.cancels, proxy)
	}
}

func (o *Orchestrator) adjustActive(delta int64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.active += delta
}
