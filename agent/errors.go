package agent

import "errors"

// Sentinel errors returned by the Agent Server's public contract. Callers
// should use errors.Is against these rather than matching on error strings.
var (
	// ErrQueueOverflow is returned synchronously when an enqueue would push
	// the mailbox past MaxQueueSize. Nothing is enqueued when this is returned.
	ErrQueueOverflow = errors.New("agent: queue overflow")

	// ErrNotReady names the not-ready condition. No path in this package
	// returns it: a Call or Cast issued while the agent is initializing waits
	// until post_init has finished and is then queued, and one issued after
	// shutdown gets ErrShutdown.
	ErrNotReady = errors.New("agent: not ready")

	// ErrRoutingFailed is returned when no route matches a signal's type.
	ErrRoutingFailed = errors.New("agent: no route matched signal")

	// ErrShutdown is returned to callers parked in AwaitCompletion, or
	// attempting Call/Cast, once the server has begun or finished stopping.
	ErrShutdown = errors.New("agent: server shut down")

	// ErrInvalidOption is returned by Options validation.
	ErrInvalidOption = errors.New("agent: invalid option")

	// ErrNotFound is returned by registry lookups for unknown ids/names.
	ErrNotFound = errors.New("agent: not found")

	// ErrInstanceNotFound is returned by Spawn/SpawnAgent directives that
	// name an instance which was never started. The core never falls back
	// to a package-level default supervisor.
	ErrInstanceNotFound = errors.New("agent: named instance not found")

	// ErrRequiresRegistry is returned when a bare name is used as a server
	// reference without an accompanying registry to resolve it against.
	ErrRequiresRegistry = errors.New("agent: bare name requires registry lookup")

	// ErrUnknownChildTag names a StopChild aimed at a tag that isn't
	// tracked. No path in this package returns it: execStopChild treats an
	// untracked tag as a no-op and returns nil.
	ErrUnknownChildTag = errors.New("agent: unknown child tag")
)

// PluginError wraps a plugin middleware failure: an explicit {:error, _}
// return, a recovered panic, or a blown callback timeout. The signal pipeline
// aborts the signal when this is produced but the server keeps running.
type PluginError struct {
	Plugin string
	Kind   string // the callback that failed, e.g. "handle_signal"
	Err    error
}

func (e *PluginError) Error() string {
	return "agent: plugin " + e.Plugin + " " + e.Kind + ": " + e.Err.Error()
}

func (e *PluginError) Unwrap() error { return e.Err }
