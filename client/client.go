package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/webquery/auth"
	"github.com/kbukum/webquery/cache"
	"github.com/kbukum/webquery/cache/rediscache"
	"github.com/kbukum/webquery/cache/sqlcache"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/observability"
	"github.com/kbukum/webquery/query"
	"github.com/kbukum/webquery/resilience"
	"github.com/kbukum/webquery/retry"
	"github.com/kbukum/webquery/serializer"
	"github.com/kbukum/webquery/transport"
)

const defaultTimeout = query.DefaultTimeout

// Hooks observe the orchestration of a logical request.
type Hooks struct {
	// OnBeforeRequest runs before every exchange is sent.
	OnBeforeRequest func(req *Request, ex *query.Exchange)
	// OnBeforeRetry runs before a retry with the outcome that caused it.
	// attempt is the number of the attempt about to start.
	OnBeforeRetry func(req *Request, attempt int, o *query.Outcome)
}

// Client orchestrates logical requests: it resolves settings, runs the
// attempt loop, consults the retry policy and materializes responses.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	engine *query.Engine
	cache  cache.Provider
	proxy  *url.URL
	policy *retry.Policy

	serializer   serializer.Serializer
	deserializer serializer.Deserializer

	credentials *auth.Registry

	limiter *resilience.RateLimiter
	breaker *resilience.Breaker
	hooks   Hooks
	log     *logger.Logger

	tasksMu sync.Mutex
	tasks   map[*Request]*task

	streamMu sync.Mutex
	active   *activeStream

	closers []func() error
}

type options struct {
	transport    transport.Transport
	mock         transport.Transport
	cache        cache.Provider
	authorizer   query.Authorizer
	credentials  *auth.Registry
	serializer   serializer.Serializer
	deserializer serializer.Deserializer
	policy       *retry.Policy
	hooks        Hooks
	log          *logger.Logger
	tracer       trace.Tracer
	metrics      *observability.Metrics
}

// Option configures a Client.
type Option func(*options)

// WithTransport replaces the network transport built from Config.Transport.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithMockTransport sets the transport answering requests with an Expect.
func WithMockTransport(t transport.Transport) Option {
	return func(o *options) { o.mock = t }
}

// WithCacheProvider replaces the cache store built from Config.Cache.
func WithCacheProvider(p cache.Provider) Option {
	return func(o *options) { o.cache = p }
}

// WithAuthorizer replaces the authorizer built from Config.Auth.
func WithAuthorizer(a query.Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithCredentialRegistry replaces the named credentials built from
// Config.Credentials.
func WithCredentialRegistry(r *auth.Registry) Option {
	return func(o *options) { o.credentials = r }
}

// WithSerializer sets the default entity serializer.
func WithSerializer(s serializer.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithDeserializer sets the default content deserializer.
func WithDeserializer(d serializer.Deserializer) Option {
	return func(o *options) { o.deserializer = d }
}

// WithRetryPolicy replaces the policy built from Config.Retry.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithHooks sets the orchestration hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithTracer sets the tracer for exchange spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics sets the exchange metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:          cfg,
		policy:       cfg.Retry.Policy(),
		serializer:   o.serializer,
		deserializer: o.deserializer,
		hooks:        o.hooks,
		log:          o.log,
		tasks:        make(map[*Request]*task),
	}
	if c.log == nil {
		c.log = logger.Get(cfg.Name)
	}
	if o.policy != nil {
		c.policy = o.policy
	}
	if c.serializer == nil {
		if cfg.Format == FormatYAML {
			c.serializer = serializer.YAML{}
		} else {
			c.serializer = serializer.JSON{}
		}
	}
	if c.deserializer == nil {
		c.deserializer = serializer.Auto{}
	}
	if cfg.Proxy != "" {
		c.proxy, _ = url.Parse(cfg.Proxy)
	}
	if cfg.RateLimiter != nil {
		c.limiter = resilience.NewRateLimiter(*cfg.RateLimiter)
	}
	if cfg.Breaker != nil {
		c.breaker = resilience.NewBreaker(*cfg.Breaker)
	}

	tr := o.transport
	if tr == nil {
		httpTransport, err := transport.NewHTTP(cfg.Transport)
		if err != nil {
			return nil, wqerrors.Configuration("client: transport: %v", err)
		}
		tr = httpTransport
	}

	authorizer := o.authorizer
	if authorizer == nil && cfg.Auth != nil {
		a, err := cfg.Auth.Authorizer(context.Background())
		if err != nil {
			return nil, wqerrors.Configuration("client: auth: %v", err)
		}
		authorizer = a
	}

	c.credentials = o.credentials
	if c.credentials == nil {
		reg, err := auth.NewRegistryFromConfig(context.Background(), cfg.Credentials)
		if err != nil {
			return nil, wqerrors.Configuration("client: %v", err)
		}
		c.credentials = reg
	}

	c.cache = o.cache
	if c.cache == nil {
		p, closer, err := openCache(cfg.Cache, c.log)
		if err != nil {
			return nil, err
		}
		c.cache = p
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}

	engineOpts := []query.Option{
		query.WithTransport(tr),
		query.WithLogger(c.log.WithComponent("query")),
	}
	if o.mock != nil {
		engineOpts = append(engineOpts, query.WithMockTransport(o.mock))
	}
	if o.tracer != nil {
		engineOpts = append(engineOpts, query.WithTracer(o.tracer))
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, query.WithMetrics(o.metrics))
	}
	creds := auth.Credentials{Authorizer: authorizer}
	c.engine = creds.NewEngine(query.Info{Name: cfg.Name, UserAgent: cfg.UserAgent}, engineOpts...)

	c.log.Debug("client created", logger.Fields(
		"authority", cfg.Authority,
		"cache_backend", cfg.Cache.Backend,
		"retry", c.policy != nil,
	))
	return c, nil
}

func openCache(cfg CacheConfig, log *logger.Logger) (cache.Provider, func() error, error) {
	switch cfg.Backend {
	case BackendMemory:
		return cache.NewMemory(), nil, nil
	case BackendRedis:
		store, err := rediscache.New(*cfg.Redis, log)
		if err != nil {
			return nil, nil, wqerrors.Cache("open", err)
		}
		return store, store.Close, nil
	case BackendSQLite:
		store, err := sqlcache.New(context.Background(), *cfg.SQLite)
		if err != nil {
			return nil, nil, wqerrors.Cache("open", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, nil
	}
}

// Engine returns the query engine the client executes exchanges with.
func (c *Client) Engine() *query.Engine { return c.engine }

// Cache returns the cache store, or nil when caching is disabled.
func (c *Client) Cache() cache.Provider { return c.cache }

// Close cancels scheduled tasks and the active stream, then releases the
// cache store if the client opened it.
func (c *Client) Close() error {
	c.CancelPeriodicTasks()
	c.CancelStreaming()
	var errs []error
	for _, closer := range c.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// resolve merges request fields over client defaults into the settings of
// one attempt.
func (c *Client) resolve(req *Request) (*query.Settings, error) {
	if req == nil {
		return nil, wqerrors.Configuration("client: nil request")
	}
	target, err := c.resolveURL(req)
	if err != nil {
		return nil, err
	}

	s := &query.Settings{
		Method:             req.Method,
		URL:                target,
		Headers:            http.Header{},
		Parameters:         url.Values{},
		Cookies:            req.Cookies,
		Fields:             req.Fields,
		Files:              req.Files,
		Timeout:            req.Timeout,
		Proxy:              req.Proxy,
		UserAgent:          req.UserAgent,
		DisableCompression: c.cfg.DisableCompression,
		Authorizer:         req.Credentials,
		Expect:             req.Expect,
	}
	if s.Method == "" {
		s.Method = c.cfg.Method
	}
	if s.Timeout <= 0 {
		s.Timeout = c.cfg.Timeout
	}
	if s.Proxy == nil {
		s.Proxy = c.proxy
	}
	if s.UserAgent == "" {
		s.UserAgent = c.cfg.UserAgent
	}
	if s.Authorizer == nil && req.CredentialsName != "" {
		a, ok := c.credentials.Get(req.CredentialsName)
		if !ok {
			return nil, wqerrors.Configuration("client: unknown credentials %q", req.CredentialsName)
		}
		s.Authorizer = a
	}

	for k, v := range c.cfg.Headers {
		s.Headers.Set(k, v)
	}
	for k, vs := range req.Headers {
		s.Headers.Del(k)
		for _, v := range vs {
			s.Headers.Add(k, v)
		}
	}
	for k, v := range c.cfg.Parameters {
		s.Parameters.Set(k, v)
	}
	for k, vs := range req.Parameters {
		s.Parameters[k] = append([]string(nil), vs...)
	}

	if req.Entity != nil {
		entity, err := c.entity(req)
		if err != nil {
			return nil, err
		}
		s.Entity = entity
	}
	return s, nil
}

func (c *Client) entity(req *Request) (*query.Entity, error) {
	switch v := req.Entity.(type) {
	case *query.Entity:
		return v, nil
	case []byte:
		return &query.Entity{Content: v, ContentType: "application/octet-stream"}, nil
	case string:
		return &query.Entity{Content: []byte(v), ContentType: "text/plain", ContentEncoding: "utf-8"}, nil
	}
	ser := req.Serializer
	if ser == nil {
		ser = c.serializer
	}
	content, contentType, encoding, err := ser.Serialize(req.Entity)
	if err != nil {
		return nil, wqerrors.Serialization(err)
	}
	return &query.Entity{Content: content, ContentType: contentType, ContentEncoding: encoding}, nil
}

func (c *Client) resolveURL(req *Request) (string, error) {
	if u, err := url.Parse(req.Path); err == nil && u.IsAbs() {
		return req.Path, nil
	}
	authority := req.Authority
	if authority == "" {
		authority = c.cfg.Authority
	}
	if authority == "" {
		return "", wqerrors.Configuration("client: no authority for path %q", req.Path)
	}
	versionPath := req.VersionPath
	if versionPath == "" {
		versionPath = c.cfg.VersionPath
	}

	parts := []string{strings.TrimRight(authority, "/")}
	for _, p := range []string{versionPath, req.Path} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	target := strings.Join(parts, "/")
	if strings.HasSuffix(req.Path, "/") && len(parts) > 1 {
		target += "/"
	}
	return target, nil
}

func (c *Client) policyFor(req *Request) *retry.Policy {
	if req.Retry != nil {
		return req.Retry
	}
	return c.policy
}

// cacheFor returns the cache options to use, or nil when the request
// bypasses the cache.
func (c *Client) cacheFor(req *Request) *CacheOptions {
	if c.cache == nil || req.Cache == nil {
		return nil
	}
	if len(req.Files) > 0 || len(req.Fields) > 0 {
		c.log.Info("cache options ignored for multipart request", logger.Fields(
			logger.FieldURL, req.Path,
		))
		return nil
	}
	opts := *req.Cache
	if opts.Mode == "" {
		defaults := c.cfg.Cache.Defaults
		opts.Mode, opts.Duration, opts.AbsoluteExpiration = defaults.Mode, defaults.Duration, defaults.AbsoluteExpiration
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = c.cfg.Cache.Defaults.KeyPrefix
	}
	return &opts
}

// failed builds the outcome of an attempt that never reached the transport.
func failed(err error) *query.Outcome {
	now := time.Now()
	return &query.Outcome{
		Headers:     http.Header{},
		Content:     []byte{},
		Err:         err,
		RequestedAt: now,
		RespondedAt: now,
	}
}
