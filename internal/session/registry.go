package session

import (
	"sort"
	"sync"
)

type Registry struct {
	mutex      sync.RWMutex
	authorized map[string]bool
	records    map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{
		authorized: make(map[string]bool),
		records:    make(map[string]Record),
	}
}

func (r *Registry) Authorized(proxy string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.authorized[proxy]
}

// Record returns the current session of proxy.
func (r *Registry) Record(proxy string) (Record, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, ok := r.records[proxy]
	return rec, ok
}

// Authorize marks rec.Proxy authorized and installs rec as its session.
func (r *Registry) Authorize(rec Record) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.authorized[rec.Proxy] = true
	r.records[rec.Proxy] = rec
}

// Revoke clears the authorization and session of proxy. It reports whether
// the proxy was authorized before the call.
func (r *Registry) Revoke(proxy string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	was := r.authorized[proxy]
	r.authorized[proxy] = false
	delete(r.records, proxy)
	return was
}

// AuthorizedProxies lists authorized proxies in lexical order.
func (r *Registry) AuthorizedProxies() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	proxies := make([]string, 0, len(r.records))
	for proxy, ok := range r.authorized {
		if ok {
			proxies = append(proxies, proxy)
		}
	}
	sort.Strings(proxies)
	return proxies
}
