package agent

// ServerStatus is the coarse lifecycle status of the Agent Server itself,
// distinct from the strategy-computed RunStatus exposed through Status/Snapshot.
type ServerStatus string

const (
	StatusInitializing ServerStatus = "initializing"
	StatusIdle         ServerStatus = "idle"
	StatusProcessing   ServerStatus = "processing"
	StatusShuttingDown ServerStatus = "shutting_down"
)

// workItem is one entry in the FIFO mailbox: either an ingress signal to be
// routed, or a directive to execute directly. Timers, cron and child exits
// enqueue signals, and the directives an action returns run inline in
// processItem, so no path in this package enqueues a directive item.
type workItem struct {
	signal    *Signal   // non-nil for ingress work
	directive Directive // non-nil for directive work
	// reply, if non-nil, is how a synchronous Call's result is delivered
	// once this ingress signal has been fully processed (§4.3 Call contract).
	reply chan<- callResult
}

// state is the per-agent mutable record (§3). Every field here is touched
// exclusively from the owning Server's drain goroutine; concurrent reads
// from Call/Cast/State/Status go through the control channel instead of
// touching these fields directly, which is what makes the single
// "processing" flag sufficient to guarantee at-most-one drain pass.
type state struct {
	id          string
	module      Module
	value       Value
	router      *Router
	status      ServerStatus
	processing  bool
	queue       []workItem
	maxQueue    int
	parent      *ParentRef
	onParentDeath OnParentDeath
	skipSchedules bool
	children    *childTable

	scheduledTimers map[string]*scheduledTimer
	cronJobs        map[string]*cronJob

	errorCount uint64
	metrics    map[string]any

	completionWaiters map[string]chan completionResult

	lifecycle Lifecycle
	pool      string
	poolKey   string

	errorPolicy      ErrorPolicy
	spawnFunc        SpawnFunc
	registry         Registry
	instanceResolver InstanceResolver
	dispatch         func(Signal, *DispatchHint)

	plugins  []Plugin
	strategy Strategy

	result any
	done   bool
}

// FullState is the escape-hatch snapshot returned by Server.State().
type FullState struct {
	ID         string
	Status     ServerStatus
	Processing bool
	QueueLen   int
	MaxQueue   int
	Children   map[any]ChildInfo
	ErrorCount uint64
	AgentState map[string]any
	Done       bool
	Result     any
}

type completionResult struct {
	result any
	err    error
}

func newState(v *validated, value Value, router *Router, plugins []Plugin, strategy Strategy) *state {
	return &state{
		id:                v.id,
		module:            v.module,
		value:             value,
		router:            router,
		status:            StatusInitializing,
		maxQueue:          v.maxQueueSize,
		parent:            v.parent,
		onParentDeath:     v.onParentDeath,
		skipSchedules:     v.skipSchedules,
		children:          newChildTable(),
		scheduledTimers:   make(map[string]*scheduledTimer),
		cronJobs:          make(map[string]*cronJob),
		completionWaiters: make(map[string]chan completionResult),
		lifecycle:         v.lifecycle,
		pool:              "",
		errorPolicy:       v.errorPolicy,
		spawnFunc:         v.spawnFunc,
		registry:          v.registry,
		instanceResolver:  v.instanceResolver,
		dispatch:          v.dispatch,
		plugins:           plugins,
		strategy:          strategy,
	}
}

// snapshot builds the FullState view under the drain goroutine.
func (s *state) snapshot() FullState {
	var st map[string]any
	if s.value != nil {
		st = s.value.State()
	}
	return FullState{
		ID:         s.id,
		Status:     s.status,
		Processing: s.processing,
		QueueLen:   len(s.queue),
		MaxQueue:   s.maxQueue,
		Children:   s.children.snapshot(),
		ErrorCount: s.errorCount,
		AgentState: st,
		Done:       s.done,
		Result:     s.result,
	}
}

// enqueue appends an item to the back of the queue, enforcing MaxQueueSize
// as a hard synchronous failure with no partial mutation (§3 invariant, §5).
func (s *state) enqueue(item workItem) error {
	if len(s.queue) >= s.maxQueue {
		return ErrQueueOverflow
	}
	s.queue = append(s.queue, item)
	return nil
}

func (s *state) dequeue() (workItem, bool) {
	if len(s.queue) == 0 {
		return workItem{}, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, true
}
