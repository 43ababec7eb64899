package agent

import (
	"context"
	"time"
)

// Directive is the closed set of requests an Action (or the core itself)
// can produce. Unknown variants passed through user code are no-ops (§4.8).
type Directive interface {
	directiveType() string
}

// DirectiveType returns the stable, telemetry-facing name for d, used as
// the `directive_type` metadata on directive.start/stop/exception events.
func DirectiveType(d Directive) string { return d.directiveType() }

// Emit forwards a signal to the agent's DefaultDispatch sink, passing
// Dispatch (or, when Dispatch is nil, the signal's own hint) as the hint.
type Emit struct {
	Signal   Signal
	Dispatch *DispatchHint
}

func (Emit) directiveType() string { return "emit" }

// ErrorDirective delegates to the error policy (§4.9). Named ErrorDirective
// (not Error) to avoid colliding with the built-in error type.
type ErrorDirective struct {
	Err     error
	Context string // e.g. "spawn", "spawn_agent", "action", "routing"
}

func (ErrorDirective) directiveType() string { return "error" }

// Schedule arms a one-shot timer. On fire, Message is wrapped in a
// jido.scheduled signal (unless Message is already a Signal, in which case
// it passes through unwrapped) and re-enqueued.
type Schedule struct {
	Delay   time.Duration
	Message any
}

func (Schedule) directiveType() string { return "schedule" }

// ChildSpec describes a child process to start via Spawn. Handler is the
// goroutine body; it receives a context cancelled on StopChild/Stop and
// must return when done. Runtimes outside the core (sensors, plugin child
// specs) supply concrete Handlers.
type ChildSpec struct {
	Module  string
	Handler func(ctx context.Context) error
}

// Spawn starts ChildSpec via the configured SpawnFunc (defaults to the
// instance's agent supervisor). Tag, if the zero value, is auto-generated.
// Instance, if non-empty, names the instance whose supervisor must be used
// instead of this agent's own; an instance that was never Started fails the
// directive with ErrInstanceNotFound rather than falling back silently.
type Spawn struct {
	Spec     ChildSpec
	Tag      any
	Meta     map[string]any
	Instance string
}

func (Spawn) directiveType() string { return "spawn" }

// SpawnAgent starts a child Agent Server with the spawning agent as its
// parent. Agent may be a Module (constructed via New) or a pre-built Value.
// Opts.SpawnFunc/Opts.Registry, if unset, default to the named Instance's
// (or, when Instance is empty, this agent's own) supervisor and registry, so
// the child is always supervised by the instance its parent belongs to (§3
// invariant 4) unless the caller deliberately overrides them. Instance names
// an instance that was never Started fail with ErrInstanceNotFound.
type SpawnAgent struct {
	Module   Module
	Value    Value
	Tag      any
	Opts     Options
	Meta     map[string]any
	Instance string
}

func (SpawnAgent) directiveType() string { return "spawn_agent" }

// StopChild terminates the tracked child under Tag and drops its entry. A
// zero Tag is a no-op.
type StopChild struct {
	Tag    any
	Reason string
}

func (StopChild) directiveType() string { return "stop_child" }

// Stop terminates this server. Reason "normal" logs a visible warning since
// it is otherwise indistinguishable from supervision-requested termination
// (spec.md §9 Open Question; current behaviour -- loud log + exit -- is kept).
type Stop struct {
	Reason string
}

func (Stop) directiveType() string { return "stop" }

// CronRegister upserts a cron job: if JobID already exists its previous
// handle is cancelled and replaced. JobID is auto-generated when empty.
type CronRegister struct {
	CronExpr string
	Message  any
	JobID    string
	Timezone string
}

func (CronRegister) directiveType() string { return "cron_register" }

// CronCancel cancels and drops a cron job. An unknown JobID is a no-op.
type CronCancel struct {
	JobID string
}

func (CronCancel) directiveType() string { return "cron_cancel" }
