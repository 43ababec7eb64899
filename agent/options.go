package agent

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/agentsignal/agentserver/agent/telemetry"
)

// OnParentDeath selects how a child reacts to its parent's termination (§4.10).
type OnParentDeath string

const (
	ParentDeathStop        OnParentDeath = "stop"
	ParentDeathContinue    OnParentDeath = "continue"
	ParentDeathEmitOrphan  OnParentDeath = "emit_orphan"
)

const defaultMaxQueueSize = 10000

// SpawnFunc starts a ChildSpec and returns a cancellation handle plus a done
// channel closed when the child exits, or an error. The zero value defaults
// to the instance's agent supervisor (set by instance.StartAgent).
type SpawnFunc func(spec ChildSpec) (cancel func(), done <-chan struct{}, err error)

// InstanceResolver looks up a named instance's SpawnFunc and Registry for a
// Spawn/SpawnAgent directive that names one explicitly. The bool reports
// whether that instance is currently started; a false return (or a nil
// resolver) makes the directive fail with ErrInstanceNotFound instead of
// falling back to this agent's own supervisor (§4.1). Set by
// instance.StartAgent; nil for agents started directly via NewServer.
type InstanceResolver func(name string) (SpawnFunc, Registry, bool)

// Options validates and canonicalises every start argument (§4.2).
type Options struct {
	// Module is required. Value, when set, is a pre-built agent value used
	// instead of calling Module.New; Module must still be set alongside it.
	Module Module
	Value  Value

	// ID is the agent id. Empty means "generate one unless Value.ID() is
	// non-empty", per spec.md's "non-empty user-supplied value is preferred
	// over any id embedded in an agent value" rule -- an explicit ID option
	// always wins over Value.ID() when both are present.
	ID string

	// InitialState is deep-merged into the agent value's state at
	// construction time (Module.New only; ignored when Value is supplied
	// directly, since there's no construction step to merge into).
	InitialState map[string]any

	ErrorPolicy   ErrorPolicy
	MaxQueueSize  int
	OnParentDeath OnParentDeath
	SpawnFunc     SpawnFunc
	Parent        *ParentRef

	LifecycleMod Lifecycle
	Pool         string
	PoolKey      string
	IdleTimeout  int64
	Storage      Storage

	SkipSchedules bool

	Telemetry telemetry.Adapter

	// Registry resolves agent ids to Servers for Whereis/ViaTuple. Derived
	// from the owning Instance unless overridden.
	Registry Registry

	// InstanceResolver backs named-instance lookups for Spawn/SpawnAgent
	// directives that set Instance. Derived from the owning Instance unless
	// overridden; nil means only unnamed (self-supervised) spawns succeed.
	InstanceResolver InstanceResolver

	// DefaultDispatch is the sink every Emit directive's signal is handed
	// to, together with the directive's DispatchHint (or the signal's own
	// hint when the directive carries none). A nil value makes Emit a
	// no-op beyond telemetry, which is acceptable since concrete dispatch
	// back-ends are an external collaborator per spec.md §1.
	DefaultDispatch func(Signal, *DispatchHint)
}

// Registry resolves an agent id to its Server within one Instance.
type Registry interface {
	Lookup(id string) (*Server, bool)
	Register(id string, s *Server)
	Unregister(id string)
}

// validated is the canonical, defaulted form of Options the Server is
// actually constructed from.
type validated struct {
	module           Module
	value            Value
	id               string
	errorPolicy      ErrorPolicy
	maxQueueSize     int
	onParentDeath    OnParentDeath
	spawnFunc        SpawnFunc
	parent           *ParentRef
	lifecycle        Lifecycle
	skipSchedules    bool
	telemetry        telemetry.Adapter
	registry         Registry
	instanceResolver InstanceResolver
	dispatch         func(Signal, *DispatchHint)
}

// validate canonicalises o, filling in defaults and failing fast on bad
// input. No state is mutated anywhere else until this succeeds.
func (o Options) validate() (*validated, error) {
	if o.Module == nil && o.Value == nil {
		return nil, fmt.Errorf("%w: agent module or value is required", ErrInvalidOption)
	}
	if o.Value != nil && o.Module == nil {
		return nil, fmt.Errorf("%w: a pre-built agent value requires agent_module", ErrInvalidOption)
	}

	id := o.ID
	if id == "" && o.Value != nil {
		id = o.Value.ID()
	}
	if id == "" {
		id = uuid.NewString()
	}

	maxQ := o.MaxQueueSize
	if maxQ <= 0 {
		maxQ = defaultMaxQueueSize
	}

	onDeath := o.OnParentDeath
	if onDeath == "" {
		onDeath = ParentDeathStop
	} else if onDeath != ParentDeathStop && onDeath != ParentDeathContinue && onDeath != ParentDeathEmitOrphan {
		return nil, fmt.Errorf("%w: unknown on_parent_death %q", ErrInvalidOption, onDeath)
	}

	pol := o.ErrorPolicy
	if pol == nil {
		pol = LogOnlyPolicy(nil)
	}

	lc := o.LifecycleMod
	if lc == nil {
		if o.Pool != "" || o.PoolKey != "" || o.IdleTimeout != 0 || o.Storage != nil {
			lc = &PooledLifecycle{PoolKey: o.PoolKey, IdleTimeout: o.IdleTimeout, Store: o.Storage}
		} else {
			lc = NoopLifecycle{}
		}
	}

	tel := o.Telemetry
	if tel.Logger == nil {
		noop := telemetry.Noop()
		if tel.Logger == nil {
			tel.Logger = noop.Logger
		}
		if tel.Metrics == nil {
			tel.Metrics = noop.Metrics
		}
		if tel.Tracer == nil {
			tel.Tracer = noop.Tracer
		}
	}

	return &validated{
		module:           o.Module,
		value:            o.Value,
		id:               id,
		errorPolicy:      pol,
		maxQueueSize:     maxQ,
		onParentDeath:    onDeath,
		spawnFunc:        o.SpawnFunc,
		parent:           o.Parent,
		lifecycle:        lc,
		skipSchedules:    o.SkipSchedules,
		telemetry:        tel,
		registry:         o.Registry,
		instanceResolver: o.InstanceResolver,
		dispatch:         o.DefaultDispatch,
	}, nil
}
