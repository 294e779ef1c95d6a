package caller_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/heartbeat-keeper/internal/caller"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

type step struct {
	body string
	err  error
}

// scriptedTransport replays steps in order and repeats the last one.
type scriptedTransport struct {
	mutex    sync.Mutex
	steps    []step
	requests []caller.Request
}

func (s *scriptedTransport) Post(ctx context.Context, req caller.Request) (*caller.Response, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.requests = append(s.requests, req)
	st := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	if st.err != nil {
		return nil, st.err
	}
	return &caller.Response{StatusCode: 200, Body: []byte(st.body)}, nil
}

func (s *scriptedTransport) calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.requests)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

var _ = Describe("Caller", func() {
	var (
		transport *scriptedTransport
		delays    []time.Duration
		c         *caller.Caller
		ctx       context.Context
	)

	recordSleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}

	BeforeEach(func() {
		ctx = context.Background()
		delays = nil
		transport = &scriptedTransport{}
		c = caller.New(transport, caller.Options{
			MaxAttempts: 5,
			Timeout:     time.Second,
			Backoff:     caller.Backoff{Base: 2, Unit: time.Second},
			Sleep:       recordSleep,
		}, logger.Discard())
	})

	Describe("Backoff", func() {
		It("should grow exponentially from the unit", func() {
			b := caller.Backoff{Base: 2, Unit: time.Second}
			Expect(b.Delay(0)).To(Equal(1 * time.Second))
			Expect(b.Delay(1)).To(Equal(2 * time.Second))
			Expect(b.Delay(2)).To(Equal(4 * time.Second))
			Expect(b.Delay(3)).To(Equal(8 * time.Second))
		})

		It("should interrupt a sleep on cancellation", func() {
			cctx, cancel := context.WithCancel(context.Background())
			cancel()
			start := time.Now()
			err := caller.Sleep(cctx, time.Hour)
			Expect(err).To(MatchError(context.Canceled))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})
	})

	Describe("Call", func() {
		Context("when the first attempt succeeds", func() {
			BeforeEach(func() {
				transport.steps = []step{{body: `{"code":0,"data":{"uid":"u1"}}`}}
			})

			It("should return the reply without sleeping", func() {
				res := c.Call(ctx, "https://api.example.com/session", struct{}{}, "http://p1:80", "tok")
				Expect(res.OK()).To(BeTrue())
				Expect(res.Attempts).To(Equal(1))
				Expect(res.Reply.StatusCode()).To(Equal(0))
				Expect(string(res.Reply.Data)).To(Equal(`{"uid":"u1"}`))
				Expect(delays).To(BeEmpty())
			})

			It("should forward endpoint, proxy and token to the transport", func() {
				c.Call(ctx, "https://api.example.com/session", struct{}{}, "http://p1:80", "tok")
				Expect(transport.requests).To(HaveLen(1))
				Expect(transport.requests[0].Endpoint).To(Equal("https://api.example.com/session"))
				Expect(transport.requests[0].Proxy).To(Equal("http://p1:80"))
				Expect(transport.requests[0].Token).To(Equal("tok"))
			})
		})

		Context("when every attempt fails with a retryable error", func() {
			BeforeEach(func() {
				transport.steps = []step{{err: errors.New("connection reset")}}
			})

			It("should back off 1,2,4,8 between five attempts", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.Outcome).To(Equal(caller.OutcomeNoResponse))
				Expect(transport.calls()).To(Equal(5))
				Expect(delays).To(Equal([]time.Duration{
					1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
				}))
			})
		})

		Context("when a retryable failure is followed by success", func() {
			BeforeEach(func() {
				transport.steps = []step{
					{err: timeoutError{}},
					{err: context.DeadlineExceeded},
					{body: `{"code":0}`},
				}
			})

			It("should succeed on the third attempt", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.OK()).To(BeTrue())
				Expect(res.Attempts).To(Equal(3))
				Expect(delays).To(Equal([]time.Duration{1 * time.Second, 2 * time.Second}))
			})
		})

		Context("when the service answers 403", func() {
			BeforeEach(func() {
				transport.steps = []step{{err: &caller.StatusError{StatusCode: 403}}}
			})

			It("should stop after exactly one network call", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.Outcome).To(Equal(caller.OutcomeForbidden))
				Expect(res.Unauthorized()).To(BeTrue())
				Expect(transport.calls()).To(Equal(1))
				Expect(delays).To(BeEmpty())
			})
		})

		Context("when another HTTP status is returned", func() {
			BeforeEach(func() {
				transport.steps = []step{
					{err: &caller.StatusError{StatusCode: 502}},
					{body: `{"code":0}`},
				}
			})

			It("should retry", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.OK()).To(BeTrue())
				Expect(transport.calls()).To(Equal(2))
			})
		})

		DescribeTable("malformed replies end the call immediately",
			func(body string) {
				transport.steps = []step{{body: body}}
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.Outcome).To(Equal(caller.OutcomeInvalid))
				Expect(res.Err).To(MatchError(caller.ErrInvalidResponse))
				Expect(transport.calls()).To(Equal(1))
			},
			Entry("missing code", `{"data":{}}`),
			Entry("negative code", `{"code":-1}`),
			Entry("null body", `null`),
		)

		Context("when the body is not JSON", func() {
			BeforeEach(func() {
				transport.steps = []step{{body: `<html>`}, {body: `{"code":0}`}}
			})

			It("should treat it as retryable", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.OK()).To(BeTrue())
				Expect(res.Attempts).To(Equal(2))
			})
		})

		Context("when the reply carries a non-zero code", func() {
			BeforeEach(func() {
				transport.steps = []step{{body: `{"code":403}`}}
			})

			It("should return it as a valid reply flagged unauthorized", func() {
				res := c.Call(ctx, "https://api.example.com/ping", nil, "p", "t")
				Expect(res.OK()).To(BeTrue())
				Expect(res.Reply.Success()).To(BeFalse())
				Expect(res.Unauthorized()).To(BeTrue())
			})
		})

		Context("when the context is cancelled during backoff", func() {
			It("should stop without further calls", func() {
				transport.steps = []step{{err: errors.New("refused")}}
				cctx, cancel := context.WithCancel(context.Background())
				c = caller.New(transport, caller.Options{
					MaxAttempts: 5,
					Backoff:     caller.Backoff{Base: 2, Unit: time.Hour},
				}, logger.Discard())

				done := make(chan caller.Result)
				go func() { done <- c.Call(cctx, "https://api.example.com/ping", nil, "p", "t") }()

				Eventually(transport.calls).Should(Equal(1))
				cancel()

				var res caller.Result
				Eventually(done).Should(Receive(&res))
				Expect(res.Outcome).To(Equal(caller.OutcomeCanceled))
				Expect(transport.calls()).To(Equal(1))
			})
		})
	})
})
