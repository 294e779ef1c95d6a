package caller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"
)

const maxResponseBytes = 1 << 20

// Request is one outbound POST routed through Proxy.
type Request struct {
	Endpoint string
	Payload  any
	Proxy    string
	Token    string
}

type Response struct {
	StatusCode int
	Body       []byte
}

// Transport delivers a single request. It must honour ctx for both
// cancellation and the per-attempt deadline.
type Transport interface {
	Post(ctx context.Context, req Request) (*Response, error)
}

// StatusError is returned for any non-2xx HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Headers are the static request headers sent with every call.
type Headers struct {
	UserAgent      string
	AcceptLanguage string
	Referer        string
}

// HTTPTransport posts JSON over net/http, keeping one client per proxy so
// connections are pooled per egress path.
type HTTPTransport struct {
	headers Headers
	mutex   sync.Mutex
	clients map[string]*http.Client
}

func NewHTTPTransport(headers Headers) *HTTPTransport {
	return &HTTPTransport{
		headers: headers,
		clients: make(map[string]*http.Client),
	}
}

func (t *HTTPTransport) Post(ctx context.Context, req Request) (*Response, error) {
	client, err := t.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	t.setHeaders(httpReq, req.Token)

	res, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp := &Response{StatusCode: res.StatusCode, Body: data}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return resp, &StatusError{StatusCode: res.StatusCode}
	}

	return resp, nil
}

func (t *HTTPTransport) setHeaders(r *http.Request, token string) {
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	if t.headers.UserAgent != "" {
		r.Header.Set("User-Agent", t.headers.UserAgent)
	}
	if t.headers.AcceptLanguage != "" {
		r.Header.Set("Accept-Language", t.headers.AcceptLanguage)
	}
	if t.headers.Referer != "" {
		r.Header.Set("Referer", t.headers.Referer)
	}
}

func (t *HTTPTransport) client(proxy string) (*http.Client, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if c, ok := t.clients[proxy]; ok {
		return c, nil
	}

	transport, err := newRoundTripper(proxy)
	if err != nil {
		return nil, err
	}

	c := &http.Client{Transport: transport}
	t.clients[proxy] = c
	return c, nil
}

// CloseIdleConnections releases pooled connections of every proxy client.
func (t *HTTPTransport) CloseIdleConnections() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, c := range t.clients {
		c.CloseIdleConnections()
	}
}

func newRoundTripper(proxy string) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxy == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy: %w", err)
	}

	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		d, err := xproxy.FromURL(proxyURL, dialer)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := d.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", proxyURL.Host)
		}
		transport.DialContext = contextDialer.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	return transport, nil
}
