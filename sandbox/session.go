package sandbox

import (
	"log/slog"
	"slices"

	"github.com/skosovsky/toolsynth"
)

// Entry is a stored entity. Identity is the canonical identity string its key came from.
type Entry struct {
	Identity string
	Fields   map[string]any
}

// DomainRecord maps record keys to entries within one domain.
type DomainRecord map[string]Entry

// Collision is a key shared by two different identities. The newer write wins.
type Collision struct {
	Domain   string
	Key      string
	Tool     string
	Previous string
	Current  string
}

// Session is the state of one path. It is not safe for concurrent use.
type Session struct {
	id         string
	sandbox    *Sandbox
	domains    map[string]DomainRecord
	collisions []Collision
	closed     bool
	logger     *slog.Logger
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Invoke returns the effective output of calling tool with args, given the oracle's nominal
// output. Action tools write, Query tools read back what was written, Computation tools pass
// nominal through. Neither args nor nominal are retained or modified.
func (s *Session) Invoke(tool *toolsynth.ToolRecord, args, nominal map[string]any) (map[string]any, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	domain := s.sandbox.domainOf(tool)
	class := tool.Class()
	if class == toolsynth.Computation || domain == "" {
		invocationsTotal.WithLabelValues(class.String(), "passthrough").Inc()
		return copyMap(nominal), nil
	}

	canonical, rest := s.sandbox.identityOf(args)
	key := s.sandbox.keyFor(canonical)
	record := s.domains[domain]
	if record == nil {
		record = make(DomainRecord)
		s.domains[domain] = record
	}
	prev, exists := record[key]
	if exists && prev.Identity != canonical {
		s.collide(Collision{Domain: domain, Key: key, Tool: tool.Name(), Previous: prev.Identity, Current: canonical})
	}

	switch class {
	case toolsynth.Action:
		fields := copyMap(rest)
		for k, v := range copyMap(nominal) {
			if _, skip := s.sandbox.opts.transient[k]; skip {
				continue
			}
			fields[k] = v
		}
		record[key] = Entry{Identity: canonical, Fields: fields}
		invocationsTotal.WithLabelValues(class.String(), "write").Inc()
		return copyMap(nominal), nil
	default:
		out := copyMap(nominal)
		if !exists {
			invocationsTotal.WithLabelValues(class.String(), "miss").Inc()
			return out, nil
		}
		for k, v := range copyMap(prev.Fields) {
			out[k] = v
		}
		invocationsTotal.WithLabelValues(class.String(), "hit").Inc()
		return out, nil
	}
}

func (s *Session) collide(c Collision) {
	s.collisions = append(s.collisions, c)
	collisionsTotal.WithLabelValues(c.Domain).Inc()
	s.logger.Warn("sandbox key collision",
		"domain", c.Domain,
		"key", c.Key,
		"tool", c.Tool,
		"previous", c.Previous,
		"current", c.Current,
	)
}

// Get returns a copy of the fields stored at key in domain.
func (s *Session) Get(domain, key string) (map[string]any, bool) {
	e, ok := s.domains[domain][key]
	if !ok {
		return nil, false
	}
	return copyMap(e.Fields), true
}

// Collisions returns the key collisions seen so far.
func (s *Session) Collisions() []Collision { return slices.Clone(s.collisions) }

// Close discards every domain record. It is idempotent.
func (s *Session) Close() {
	s.closed = true
	s.domains = nil
}
