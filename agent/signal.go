package agent

import (
	"errors"

	"github.com/google/uuid"
)

// TraceEnvelope is the causation-preserving trace stamp carried by every
// signal. An empty TraceID means no envelope has been stamped yet; the
// ingress path (see pipeline.go) stamps a fresh root envelope the first
// time an unstamped signal reaches the router.
type TraceEnvelope struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	CausationID  string
}

// IsZero reports whether the envelope has never been stamped.
func (t TraceEnvelope) IsZero() bool { return t.TraceID == "" }

// Signal is the universal, immutable message envelope. Equality is by ID.
type Signal struct {
	id      string
	typ     string
	source  string
	data    any
	dispatch *DispatchHint
	trace   TraceEnvelope
}

// DispatchHint names the sink a directive-produced Emit should target when
// it differs from the agent's configured default. The core only carries
// this hint; dispatch back-ends (logger, HTTP, ...) are external
// collaborators.
type DispatchHint struct {
	Name   string
	Config map[string]any
}

// ErrInvalidSignal is returned by NewSignal when a required field is empty.
var ErrInvalidSignal = errors.New("agent: signal missing id, type, or source")

// NewSignal constructs a Signal, generating an id when empty. A signal
// missing type or source is rejected at construction, per the external
// interfaces contract.
func NewSignal(typ, source string, data any) (Signal, error) {
	if typ == "" || source == "" {
		return Signal{}, ErrInvalidSignal
	}
	return Signal{id: uuid.NewString(), typ: typ, source: source, data: data}, nil
}

// MustSignal is NewSignal but panics on error; useful in tests and for
// internally constructed signals (jido.scheduled, jido.agent.child.exit,
// ...) whose type/source are always non-empty compile-time constants.
func MustSignal(typ, source string, data any) Signal {
	s, err := NewSignal(typ, source, data)
	if err != nil {
		panic(err)
	}
	return s
}

// ID returns the signal's unique identifier.
func (s Signal) ID() string { return s.id }

// Type returns the signal's dotted type string.
func (s Signal) Type() string { return s.typ }

// Source returns the signal's origin path.
func (s Signal) Source() string { return s.source }

// Data returns the signal's structured payload.
func (s Signal) Data() any { return s.data }

// Dispatch returns the dispatch hint, if any.
func (s Signal) Dispatch() *DispatchHint { return s.dispatch }

// Trace returns the signal's trace envelope.
func (s Signal) Trace() TraceEnvelope { return s.trace }

// WithTrace returns a copy of the signal stamped with the given envelope.
func (s Signal) WithTrace(t TraceEnvelope) Signal {
	s.trace = t
	return s
}

// WithDispatch returns a copy of the signal carrying the given dispatch hint.
func (s Signal) WithDispatch(h *DispatchHint) Signal {
	s.dispatch = h
	return s
}

// Equal reports whether two signals share the same id, per the data model's
// "Equality is by id" rule.
func (s Signal) Equal(other Signal) bool { return s.id == other.id }

// Built-in signal types reserved by the core (spec.md §6).
const (
	SignalChildExit = "jido.agent.child.exit"
	SignalOrphaned  = "jido.agent.orphaned"
	SignalScheduled = "jido.scheduled"
)

// PluginScheduleType builds the reserved signal type synthesized for a
// plugin's registered cron schedule: "<plugin_key>.__schedule__.<action>".
func PluginScheduleType(pluginKey, action string) string {
	return pluginKey + ".__schedule__." + action
}
