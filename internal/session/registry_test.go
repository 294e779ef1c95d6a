package session_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/heartbeat-keeper/internal/session"
)

var _ = Describe("Registry", func() {
	var registry *session.Registry

	BeforeEach(func() {
		registry = session.NewRegistry()
	})

	It("should report unknown proxies as unauthorized", func() {
		Expect(registry.Authorized("http://p1:80")).To(BeFalse())
		_, ok := registry.Record("http://p1:80")
		Expect(ok).To(BeFalse())
	})

	It("should keep the flag and the record together", func() {
		registry.Authorize(session.Record{Proxy: "http://p1:80", UserID: "u1", BrowserID: "b1"})

		Expect(registry.Authorized("http://p1:80")).To(BeTrue())
		rec, ok := registry.Record("http://p1:80")
		Expect(ok).To(BeTrue())
		Expect(rec.UserID).To(Equal("u1"))

		Expect(registry.Revoke("http://p1:80")).To(BeTrue())
		Expect(registry.Authorized("http://p1:80")).To(BeFalse())
		_, ok = registry.Record("http://p1:80")
		Expect(ok).To(BeFalse())
	})

	It("should report whether a revoked proxy was authorized", func() {
		Expect(registry.Revoke("http://p1:80")).To(BeFalse())
	})

	It("should isolate proxies from each other", func() {
		registry.Authorize(session.Record{Proxy: "http://p1:80", UserID: "u1"})
		registry.Authorize(session.Record{Proxy: "http://p2:80", UserID: "u2"})

		registry.Revoke("http://p1:80")

		Expect(registry.Authorized("http://p2:80")).To(BeTrue())
		rec, _ := registry.Record("http://p2:80")
		Expect(rec.UserID).To(Equal("u2"))
		Expect(registry.AuthorizedProxies()).To(Equal([]string{"http://p2:80"}))
	})

	It("should list authorized proxies in order", func() {
		registry.Authorize(session.Record{Proxy: "http://b:80"})
		registry.Authorize(session.Record{Proxy: "http://a:80"})

		Expect(registry.AuthorizedProxies()).To(Equal([]string{"http://a:80", "http://b:80"}))
	})

	It("should be safe for concurrent writers on distinct proxies", func() {
		proxies := []string{"http://p1:80", "http://p2:80", "http://p3:80", "http://p4:80"}

		var wg sync.WaitGroup
		for _, p := range proxies {
			wg.Add(1)
			go func(proxy string) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					registry.Authorize(session.Record{Proxy: proxy})
					registry.Authorized(proxy)
					registry.Revoke(proxy)
				}
				registry.Authorize(session.Record{Proxy: proxy})
			}(p)
		}
		wg.Wait()

		Expect(registry.AuthorizedProxies()).To(ConsistOf(proxies))
	})
})

var _ = Describe("MemoryStore", func() {
	It("should return nil for an unknown proxy", func() {
		store := session.NewMemoryStore()

		rec, err := store.Load(context.Background(), "http://p1:80")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())
	})

	It("should return the last saved record", func() {
		store := session.NewMemoryStore()
		ctx := context.Background()

		Expect(store.Save(ctx, &session.Record{Proxy: "http://p1:80", UserID: "u1"})).To(Succeed())
		Expect(store.Save(ctx, &session.Record{Proxy: "http://p1:80", UserID: "u2"})).To(Succeed())

		rec, err := store.Load(ctx, "http://p1:80")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.UserID).To(Equal("u2"))
	})
})
