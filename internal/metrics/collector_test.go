package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/heartbeat-keeper/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Emit", func() {
		It("should process heartbeat events", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventHeartbeatSucceeded, Proxy: "http://p1:80"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventHeartbeatFailed, Proxy: "http://p1:80"})

			Eventually(func() int64 {
				return collector.Snapshot().Proxies["http://p1:80"].Failures
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().Proxies["http://p1:80"].Heartbeats).To(Equal(int64(1)))
		})

		It("should process authentication events", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventAuthenticated, Proxy: "http://p1:80"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventDeauthenticated, Proxy: "http://p1:80"})

			Eventually(func() int64 {
				return collector.Snapshot().Proxies["http://p1:80"].Deauthentications
			}).Should(Equal(int64(1)))
		})

		It("should not block when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			small.Emit(metrics.MetricEvent{Type: metrics.EventAuthenticated, Proxy: "p"})
			small.Emit(metrics.MetricEvent{Type: metrics.EventAuthenticated, Proxy: "p"})
		})

		It("should ignore events on a nil collector", func() {
			var nilCollector *metrics.Collector
			Expect(func() {
				nilCollector.Emit(metrics.MetricEvent{Type: metrics.EventAuthenticated})
			}).NotTo(Panic())
		})
	})

	Describe("Start", func() {
		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.EventChannel() <- metrics.MetricEvent{
					Type:      metrics.EventHeartbeatSucceeded,
					Timestamp: time.Now(),
					Proxy:     "http://p1:80",
				}
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return collector.Snapshot().TotalHeartbeats
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventHeartbeatSucceeded, Proxy: "http://p1:80"})
			Eventually(func() int64 { return collector.Snapshot().TotalHeartbeats }).Should(Equal(int64(1)))

			w := httptest.NewRecorder()
			collector.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(w.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalHeartbeats).To(Equal(int64(1)))
		})
	})
})
