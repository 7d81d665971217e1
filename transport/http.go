package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultDialTimeout         = 30 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultMaxIdleConns        = 100
)

// Config configures HTTPTransport.
type Config struct {
	// TLS configures client TLS. Nil uses system defaults.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`

	// Proxy is the default proxy URL. A proxy set on the request context
	// with WithProxy takes precedence. Empty falls back to the environment.
	Proxy string `yaml:"proxy" mapstructure:"proxy"`

	// DialTimeout bounds connection establishment. Defaults to 30s.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// MaxIdleConns caps pooled idle connections. Defaults to 100.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`

	// DisableHTTP2 keeps every connection on HTTP/1.1.
	DisableHTTP2 bool `yaml:"disable_http2" mapstructure:"disable_http2"`

	// DisableCookies turns off the shared cookie jar.
	DisableCookies bool `yaml:"disable_cookies" mapstructure:"disable_cookies"`

	// DisableRedirects returns 3xx responses instead of following them.
	DisableRedirects bool `yaml:"disable_redirects" mapstructure:"disable_redirects"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("transport: invalid proxy %q: %w", c.Proxy, err)
		}
	}
	return c.TLS.Validate()
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	client *http.Client

	mu       sync.Mutex
	inflight map[*http.Request]context.CancelFunc
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTP creates an HTTPTransport from cfg.
func NewHTTP(cfg Config) (*HTTPTransport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var defaultProxy *url.URL
	if cfg.Proxy != "" {
		defaultProxy, _ = url.Parse(cfg.Proxy)
	}

	rt := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if p := ProxyFromContext(req.Context()); p != nil {
				return p, nil
			}
			if defaultProxy != nil {
				return defaultProxy, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		// decompression is done by the engine so Content-Encoding stays visible
		DisableCompression: true,
	}

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		rt.TLSClientConfig = tlsCfg
	}

	if cfg.DisableHTTP2 {
		rt.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	} else if _, err := http2.ConfigureTransports(rt); err != nil {
		return nil, fmt.Errorf("transport: configure http2: %w", err)
	}

	client := &http.Client{Transport: rt}
	if !cfg.DisableCookies {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("transport: cookie jar: %w", err)
		}
		client.Jar = jar
	}
	if cfg.DisableRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &HTTPTransport{
		client:   client,
		inflight: make(map[*http.Request]context.CancelFunc),
	}, nil
}

var (
	defaultOnce      sync.Once
	defaultTransport *HTTPTransport
)

// Default returns a process-wide HTTPTransport built from a zero Config.
func Default() *HTTPTransport {
	defaultOnce.Do(func() {
		t, err := NewHTTP(Config{})
		if err != nil {
			t = &HTTPTransport{client: &http.Client{}, inflight: make(map[*http.Request]context.CancelFunc)}
		}
		defaultTransport = t
	})
	return defaultTransport
}

// Client returns the underlying *http.Client for advanced use cases.
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Send performs the exchange. The request stays abortable until its
// response body is closed.
func (t *HTTPTransport) Send(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("transport: nil request")
	}
	ctx, cancel := context.WithCancel(req.Context())
	t.mu.Lock()
	t.inflight[req] = cancel
	t.mu.Unlock()

	resp, err := t.client.Do(req.WithContext(ctx))
	if err != nil {
		t.release(req)
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { t.release(req) }}
	return resp, nil
}

// Abort cancels the in-flight exchange for req.
func (t *HTTPTransport) Abort(req *http.Request) {
	t.mu.Lock()
	cancel, ok := t.inflight[req]
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

func (t *HTTPTransport) release(req *http.Request) {
	t.mu.Lock()
	cancel, ok := t.inflight[req]
	delete(t.inflight, req)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

type proxyKey struct{}

// WithProxy routes requests made with ctx through proxy.
func WithProxy(ctx context.Context, proxy *url.URL) context.Context {
	return context.WithValue(ctx, proxyKey{}, proxy)
}

// ProxyFromContext returns the proxy set by WithProxy, or nil.
func ProxyFromContext(ctx context.Context) *url.URL {
	if p, ok := ctx.Value(proxyKey{}).(*url.URL); ok {
		return p
	}
	return nil
}
