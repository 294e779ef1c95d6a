package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/heartbeat-keeper/internal/connstate"
	"github.com/angeloszaimis/heartbeat-keeper/internal/handler"
	"github.com/angeloszaimis/heartbeat-keeper/internal/session"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

type fixedWorkers int

func (f fixedWorkers) Active() int { return int(f) }

var _ = Describe("StatusHandler", func() {
	var (
		tracker  *connstate.Tracker
		registry *session.Registry
		h        *handler.StatusHandler
	)

	BeforeEach(func() {
		tracker = connstate.NewTracker(2)
		registry = session.NewRegistry()
		h = handler.NewStatusHandler(tracker, registry, fixedWorkers(3))
	})

	get := func() (*httptest.ResponseRecorder, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return rec, body
	}

	It("should report a fresh pool", func() {
		rec, body := get()

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(body["state"]).To(Equal("NOT_CONNECTED"))
		Expect(body["consecutive_failures"]).To(BeEquivalentTo(0))
		Expect(body["authorized_proxies"]).To(BeEmpty())
		Expect(body["active_workers"]).To(BeEquivalentTo(3))
		Expect(body).NotTo(HaveKey("last_change"))
	})

	It("should report failures and redacted proxies", func() {
		registry.Authorize(session.Record{Proxy: "http://user:secret@p1:80"})
		tracker.RecordFailure(false)
		tracker.RecordFailure(false)

		_, body := get()

		Expect(body["state"]).To(Equal("DISCONNECTED"))
		Expect(body["consecutive_failures"]).To(BeEquivalentTo(2))
		Expect(body["degraded"]).To(BeTrue())
		Expect(body).To(HaveKey("last_change"))
		Expect(body["authorized_proxies"]).To(ConsistOf("http://user:xxxxx@p1:80"))
	})

	It("should reject other methods", func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should work without registry or workers", func() {
		status := handler.NewStatusHandler(tracker, nil, nil).Status()

		Expect(status.AuthorizedProxies).To(BeEmpty())
		Expect(status.ActiveWorkers).To(BeZero())
	})
})

var _ = Describe("Logging", func() {
	It("should log the request with its status", func() {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&buf, "info", false, "dev")
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.Logging(next, log).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusTeapot))
		Expect(buf.String()).To(ContainSubstring("Handled request"))
		Expect(buf.String()).To(ContainSubstring("status=418"))
		Expect(buf.String()).To(ContainSubstring("from=10.0.0.9"))
		Expect(buf.String()).To(ContainSubstring("path=/status"))
	})
})
