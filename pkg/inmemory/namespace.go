// Package inmemory provides Redis-backed ephemeral stores: Cache holds one serialized value
// and State holds a hash of fields. Both address their entry through a Namespace key.
package inmemory

import (
	"strings"
	"time"

	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/observability/metrics"
)

// Namespace type tags.
const (
	TypeCache = "CACHE"
	TypeState = "STATE"
)

const (
	// DefaultSeparator joins namespace components.
	DefaultSeparator = ":"
	// DefaultSubject is used when a namespace has no subject.
	DefaultSubject = "NA"
	// Wildcard matches any key component in Delete patterns.
	Wildcard = "*"
)

// Namespace composes the key of a Cache or State entry: Type, Subject and then Fields, in
// order, joined by Separator. Two namespaces with equal components address the same entry.
type Namespace struct {
	Type      string
	Subject   string
	Fields    []string
	Separator string
}

// NewNamespace returns a namespace for subject identified by fields. The type is set by
// the Cache or State that uses it.
func NewNamespace(subject string, fields ...string) Namespace {
	return Namespace{Subject: subject, Fields: append([]string(nil), fields...)}
}

// With returns a copy of n with fields appended after the existing ones.
func (n Namespace) With(fields ...string) Namespace {
	out := n
	out.Fields = make([]string, 0, len(n.Fields)+len(fields))
	out.Fields = append(out.Fields, n.Fields...)
	out.Fields = append(out.Fields, fields...)
	return out
}

// String renders the key, e.g. "CACHE:journey_customer:42".
func (n Namespace) String() string {
	sep := n.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	subject := n.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	parts := make([]string, 0, len(n.Fields)+2)
	parts = append(parts, n.Type, subject)
	parts = append(parts, n.Fields...)
	return strings.Join(parts, sep)
}

func (n Namespace) subject() string {
	if n.Subject == "" {
		return DefaultSubject
	}
	return n.Subject
}

func (n Namespace) withType(kind string) Namespace {
	out := n.With()
	out.Type = kind
	return out
}

// Option configures a Cache or State.
type Option func(*options)

type options struct {
	ttl     time.Duration
	log     logger.Logger
	metrics *metrics.KeyValueMetrics
}

func defaultOptions() options {
	return options{log: logger.NewNopLogger()}
}

// WithTTL sets the entry time-to-live. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		} else {
			o.ttl = 0
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics enables hit/miss and operation counters.
func WithMetrics(m *metrics.KeyValueMetrics) Option {
	return func(o *options) { o.metrics = m }
}
