// Package httpclient builds the pooled outbound HTTP client used for
// third-party APIs. SDKs that accept an *http.Client get one from
// StandardClient and inherit the injected headers and response hook.
package httpclient

import (
	"cmp"
	"maps"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests if not specified.
	DefaultTimeout = 30 * time.Second

	// Default connection pool settings
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second

	// Default timeouts for various HTTP operations
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultDialTimeout           = 30 * time.Second
	defaultDialKeepAlive         = 30 * time.Second

	// Default User-Agent
	defaultUserAgent = "OncoDerma"
)

// Client owns the pooled transport. Safe for concurrent use.
type Client struct {
	transport      *hookTransport
	defaultTimeout time.Duration
}

// Config holds configuration for creating an HTTP client.
type Config struct {
	// DefaultTimeout bounds each request made through StandardClient
	DefaultTimeout time.Duration

	// UserAgent is added to all requests that do not set one
	UserAgent string

	// Headers are set on every request, e.g. API key headers.
	// Values already present on a request are not overwritten.
	Headers map[string]string

	// Transport replaces the pooled transport, e.g. with an httpmock transport in tests
	Transport http.RoundTripper

	// MaxIdleConns controls connection pool size (default: 100)
	MaxIdleConns int

	// MaxIdleConnsPerHost controls per-host connection pool (default: 10)
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections stay in pool (default: 90s)
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout is timeout for TLS handshake (default: 10s)
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is timeout waiting for response headers.
	// Zero leaves it to the request deadline; generation APIs can take a while to answer.
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:      DefaultTimeout,
		UserAgent:           defaultUserAgent,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.DefaultTimeout = cmp.Or(c.DefaultTimeout, d.DefaultTimeout)
	c.UserAgent = cmp.Or(c.UserAgent, d.UserAgent)
	c.MaxIdleConns = cmp.Or(c.MaxIdleConns, d.MaxIdleConns)
	c.MaxIdleConnsPerHost = cmp.Or(c.MaxIdleConnsPerHost, d.MaxIdleConnsPerHost)
	c.IdleConnTimeout = cmp.Or(c.IdleConnTimeout, d.IdleConnTimeout)
	c.TLSHandshakeTimeout = cmp.Or(c.TLSHandshakeTimeout, d.TLSHandshakeTimeout)
	return c
}

// New creates a client. A nil cfg means DefaultConfig; cfg itself is not modified.
func New(cfg *Config) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	base := c.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   defaultDialTimeout,
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          c.MaxIdleConns,
			MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
			IdleConnTimeout:       c.IdleConnTimeout,
			TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
			ResponseHeaderTimeout: c.ResponseHeaderTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		}
	}

	transport := &hookTransport{
		base:      base,
		userAgent: c.UserAgent,
		headers:   maps.Clone(c.Headers),
	}

	return &Client{
		transport:      transport,
		defaultTimeout: c.DefaultTimeout,
	}
}

// StandardClient returns an *http.Client for SDKs that take one. It shares
// the transport, headers and hooks; DefaultTimeout becomes the client timeout.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{
		Transport: c.transport,
		Timeout:   c.defaultTimeout,
	}
}

// OnResponse sets a function called after every round trip with the outcome.
// It may be replaced while requests are in flight.
func (c *Client) OnResponse(fn func(*http.Request, *http.Response, error)) {
	c.transport.hookMu.Lock()
	defer c.transport.hookMu.Unlock()
	c.transport.afterResponse = fn
}

// Close drops idle pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// hookTransport injects headers and runs the observability hooks.
type hookTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string

	hookMu        sync.RWMutex
	afterResponse func(*http.Request, *http.Response, error)
}

func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	t.hookMu.RLock()
	after := t.afterResponse
	t.hookMu.RUnlock()

	resp, err := t.base.RoundTrip(req)

	if after != nil {
		after(req, resp, err)
	}
	return resp, err
}

func (t *hookTransport) CloseIdleConnections() {
	if ci, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
