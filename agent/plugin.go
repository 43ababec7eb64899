package agent

import (
	"context"
	"time"
)

// PluginTimeout is the default bounded timeout a plugin callback is invoked
// under (§5). It applies to every plugin alike.
const PluginTimeout = time.Second

// MiddlewareOutcome is what a plugin's HandleSignal call can decide (§4.6 step 2).
type MiddlewareOutcome struct {
	// Continue proceeds to the next plugin (and, eventually, routing) with
	// Signal unchanged, or with NewSignal if non-zero.
	Continue  bool
	NewSignal *Signal

	// Override stops routing and invokes Action directly, with optional
	// Params and a possibly-rewritten NewSignal.
	Override bool
	Action   ActionID
	Params   map[string]any
}

// Plugin is a composable capability contributing routes, children,
// subscriptions, signal middleware, and result transforms. All methods are
// optional in spirit; a Plugin implementation that doesn't need a
// capability simply doesn't implement the corresponding optional interface
// below. HandleSignal and TransformResult live in the optional
// SignalMiddleware and ResultTransformer interfaces too; a plugin without
// them is skipped by the middleware and transform passes.
type Plugin interface {
	// Key is the plugin's state_key / identity, used to build plugin tags
	// and schedule signal types.
	Key() string
	// Patterns restricts which signals HandleSignal sees. An empty slice
	// means every signal. TransformResult is not filtered by Patterns.
	Patterns() []string
}

// SignalMiddleware is implemented by a Plugin that wants to inspect or
// short-circuit a signal before it is routed.
type SignalMiddleware interface {
	HandleSignal(ctx context.Context, sig Signal) (MiddlewareOutcome, error)
}

// ResultTransformer is implemented by a Plugin that rewrites the view
// returned to a synchronous caller without touching stored state.
type ResultTransformer interface {
	TransformResult(ctx context.Context, action ActionID, v Value) (Value, error)
}

// ChildSpecProvider is implemented by a Plugin that starts supervised
// children during post_init.
type ChildSpecProvider interface {
	ChildSpecs() []ChildSpec
}

// SensorSpecProvider is implemented by a Plugin that starts subscription
// sensors during post_init.
type SensorSpecProvider interface {
	SensorSpecs() []ChildSpec
}

// CronScheduleProvider is implemented by a Plugin that registers cron
// schedules during post_init (suppressed when Options.SkipSchedules is set).
type CronScheduleProvider interface {
	CronSchedules() []CronRegister
}

// BasePlugin supplies the identity defaults (no patterns restriction, no
// middleware, no transform) that concrete plugins embed and override
// selectively.
type BasePlugin struct {
	key      string
	patterns []string
}

// NewBasePlugin constructs a BasePlugin with the given key and patterns.
func NewBasePlugin(key string, patterns ...string) BasePlugin {
	return BasePlugin{key: key, patterns: patterns}
}

func (b BasePlugin) Key() string        { return b.key }
func (b BasePlugin) Patterns() []string { return b.patterns }

// pluginMatches reports whether sig is within a plugin's declared patterns;
// an empty pattern list matches everything (§4.6 step 3).
func pluginMatches(p Plugin, sig Signal) bool {
	patterns := p.Patterns()
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if patternMatches(pat, sig.Type()) {
			return true
		}
	}
	return false
}
