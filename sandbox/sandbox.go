// Package sandbox gives synthesized paths a small, per-session world model so that reads
// observe earlier writes. State is partitioned by domain and never outlives a session.
package sandbox

import (
	"errors"
	"log/slog"
	"maps"

	"github.com/mohae/deepcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skosovsky/toolsynth"
)

// ErrSessionClosed is returned by Invoke after Close.
var ErrSessionClosed = errors.New("sandbox: session closed")

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "sandbox",
		Name:      "invocations_total",
		Help:      "Sandbox invocations by tool class and effect",
	}, []string{"class", "effect"})
	collisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "sandbox",
		Name:      "key_collisions_total",
		Help:      "Distinct entities that derived the same record key",
	}, []string{"domain"})
)

type options struct {
	categories map[string]string
	identity   map[string]struct{}
	transient  map[string]struct{}
	hash       func(canonical string) string
	logger     *slog.Logger
}

// Option configures a Sandbox.
type Option func(*options)

// WithCategories replaces the category to domain map.
func WithCategories(categories map[string]string) Option {
	return func(o *options) { o.categories = maps.Clone(categories) }
}

// WithIdentityArgs replaces the identity argument names. Names ending in "_id" always count.
func WithIdentityArgs(names ...string) Option {
	return func(o *options) { o.identity = set(names) }
}

// WithTransientFields replaces the output fields that are never persisted.
func WithTransientFields(names ...string) Option {
	return func(o *options) { o.transient = set(names) }
}

// WithKeyHash replaces the identity hash. Used by tests to force collisions.
func WithKeyHash(fn func(canonical string) string) Option {
	return func(o *options) { o.hash = fn }
}

// WithLogger sets the logger used for collision warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func set(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Sandbox holds read-only configuration and opens sessions. It is safe for concurrent use.
type Sandbox struct {
	opts options
}

// New creates a Sandbox.
func New(opts ...Option) *Sandbox {
	o := options{
		categories: maps.Clone(DefaultCategories),
		identity:   set(DefaultIdentityArgs),
		transient:  set(DefaultTransientFields),
		hash:       hashIdentity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Sandbox{opts: o}
}

// Domain returns the domain tool reads and writes, or "" for stateless tools.
func (s *Sandbox) Domain(tool *toolsynth.ToolRecord) string { return s.domainOf(tool) }

// Open starts an empty session. Sessions never share state.
func (s *Sandbox) Open(id string) *Session {
	return &Session{
		id:      id,
		sandbox: s,
		domains: make(map[string]DomainRecord),
		logger:  s.opts.logger.With("session", id),
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return deepcopy.Copy(m).(map[string]any)
}
