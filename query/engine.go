package query

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/webquery/logger"
	"github.com/kbukum/webquery/observability"
	"github.com/kbukum/webquery/transport"
	"github.com/kbukum/webquery/version"
)

// Info identifies the engine to servers and in logs.
type Info struct {
	// Name is the component name used for the engine logger.
	Name string
	// UserAgent is the default User-Agent. Defaults to version.UserAgent().
	UserAgent string
}

// Hooks observe exchanges. Hooks run on the goroutine that completes the
// exchange and must not block.
type Hooks struct {
	// BeforeRequest runs just before the exchange is handed to the transport.
	BeforeRequest func(ex *Exchange)
	// ResponseAvailable runs once per exchange with its outcome.
	ResponseAvailable func(ex *Exchange, o *Outcome)
}

// Engine builds and executes exchanges. It is safe for concurrent use.
type Engine struct {
	transport  transport.Transport
	mock       transport.Transport
	authorizer Authorizer
	hooks      Hooks
	info       Info
	log        *logger.Logger
	tracer     trace.Tracer
	metrics    *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransport sets the transport for real exchanges.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithMockTransport sets the transport used for exchanges that carry an
// expectation.
func WithMockTransport(t transport.Transport) Option {
	return func(e *Engine) { e.mock = t }
}

// WithAuthorizer sets the default authorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) { e.authorizer = a }
}

// WithHooks sets the exchange hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithInfo sets the engine identity. Empty fields keep their defaults.
func WithInfo(info Info) Option {
	return func(e *Engine) {
		if info.Name != "" {
			e.info.Name = info.Name
		}
		if info.UserAgent != "" {
			e.info.UserAgent = info.UserAgent
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTracer sets the tracer used for exchange spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics sets the exchange metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine. Without WithTransport it uses transport.Default().
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = transport.Default()
	}
	if e.mock == nil {
		e.mock = transport.NewMock()
	}
	if e.info.Name == "" {
		e.info.Name = "webquery.query"
	}
	if e.info.UserAgent == "" {
		e.info.UserAgent = version.UserAgent()
	}
	if e.log == nil {
		e.log = logger.Get(e.info.Name)
	}
	if e.tracer == nil {
		e.tracer = observability.Tracer()
	}
	return e
}

// Transport returns the transport used for real exchanges.
func (e *Engine) Transport() transport.Transport { return e.transport }

// MockTransport returns the transport used for mocked exchanges.
func (e *Engine) MockTransport() transport.Transport { return e.mock }

// With returns a copy of the engine with opts applied.
func (e *Engine) With(opts ...Option) *Engine {
	cp := *e
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

func (e *Engine) transportFor(ex *Exchange) transport.Transport {
	if ex.mocked {
		return e.mock
	}
	return e.transport
}
