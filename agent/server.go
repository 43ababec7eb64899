package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentsignal/agentserver/agent/hooks"
	"github.com/agentsignal/agentserver/agent/telemetry"
)

// Server is the Agent Server: one goroutine (the drain goroutine) owning a
// bounded mailbox and a State record. All public methods communicate with
// that goroutine over a channel; nothing outside the goroutine ever reads
// or writes State fields directly, which is what makes the single
// `processing` flag sufficient to guarantee at-most-one drain pass (§5).
type Server struct {
	ctrl   chan any
	ctx    context.Context
	cancel context.CancelFunc

	id  string
	bus hooks.Bus
	tel telemetry.Adapter

	st   *state
	cron *cronScheduler

	// overflowLimiter throttles queue.overflow telemetry so a producer
	// stuck in a hot enqueue loop cannot flood the logger/metrics sink.
	overflowLimiter *rate.Limiter

	exitOnce sync.Once
	exited   chan struct{}
	// exitReason is the reason terminate() shut the server down with. Safe
	// to read without synchronization once exited is closed: the write
	// happens-before the close, and readers only consult it after
	// observing exited closed.
	exitReason string
}

type callResult struct {
	view Value
	err  error
}

// control messages, each handled exclusively inside run().
type enqueueMsg struct {
	item workItem
	ack  chan error // enqueue-time result (overflow or nil), sent exactly once
}
type stateMsg struct{ reply chan FullState }
type statusMsg struct{ reply chan Status }
type awaitMsg struct {
	reply   chan completionResult
	timeout time.Duration
}
type aliveMsg struct{ reply chan bool }
type stopMsg struct{ reason string }
type childExitMsg struct {
	tag any
	err error
}
type timerFireMsg struct{ id string }
type cronFireMsg struct {
	jobID   string
	message any
}
type parentDownMsg struct{ reason string }
type removeWaiterMsg struct{ id string }

// NewServer validates opts, builds the router, and constructs a Server in
// the `initializing` status. Call Start to launch the drain goroutine.
func NewServer(opts Options) (*Server, error) {
	v, err := opts.validate()
	if err != nil {
		return nil, err
	}

	var value Value
	if opts.Value != nil {
		value = opts.Value
	} else {
		value, err = v.module.New(v.id, opts.InitialState)
		if err != nil {
			return nil, fmt.Errorf("agent: construct value: %w", err)
		}
	}

	var plugins []Plugin
	if pp, ok := v.module.(PluginProvider); ok {
		plugins = pp.Plugins()
	}
	var strategy Strategy
	if sp, ok := v.module.(StrategyProvider); ok {
		strategy = sp.Strategy()
	}

	router := buildRouterFor(v.module, value, strategy, plugins, opts.SkipSchedules)
	st := newState(v, value, router, plugins, strategy)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctrl:   make(chan any, 64),
		ctx:    ctx,
		cancel: cancel,
		id:     v.id,
		bus:    hooks.NewBus(),
		tel:    v.telemetry,
		st:              st,
		overflowLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		exited:          make(chan struct{}),
	}
	if v.registry != nil {
		v.registry.Register(v.id, s)
	}
	return s, nil
}

// ID returns the agent's id.
func (s *Server) ID() string { return s.id }

// Bus returns the telemetry event bus subscribers can register on.
func (s *Server) Bus() hooks.Bus { return s.bus }

// Start launches the drain goroutine and returns without waiting for it.
// That goroutine first runs post_init (§4.7): plugin/strategy init,
// starting declared children and sensors, registering cron schedules. It
// reads no control message until post_init has finished, so a State,
// Status or Call issued meanwhile waits until then.
func (s *Server) Start() {
	go s.run()
}

func (s *Server) run() {
	defer close(s.exited)
	s.postInit()
	if s.st.status != StatusShuttingDown {
		s.st.status = StatusIdle
	}
	s.drainIfIdle()
	if s.st.status == StatusShuttingDown {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			s.terminate("context canceled")
			return
		case msg := <-s.ctrl:
			if s.handle(msg) {
				return
			}
		}
	}
}

// handle processes one control message; returns true when the server has
// fully terminated and run() should exit. Any handler that may call
// terminate (directly or through drainIfIdle executing a Stop directive)
// is followed by a status check so run() always notices.
func (s *Server) handle(msg any) bool {
	switch m := msg.(type) {
	case enqueueMsg:
		err := s.st.enqueue(m.item)
		if err != nil {
			s.emitQueueOverflow()
		}
		m.ack <- err
		close(m.ack)
		s.drainIfIdle()

	case stateMsg:
		m.reply <- s.st.snapshot()

	case statusMsg:
		m.reply <- s.computeStatus()

	case awaitMsg:
		s.handleAwait(m)

	case aliveMsg:
		m.reply <- true

	case stopMsg:
		s.terminate(m.reason)

	case childExitMsg:
		s.onChildExit(m.tag, m.err)
		s.drainIfIdle()

	case timerFireMsg:
		s.onTimerFire(m.id)
		s.drainIfIdle()

	case cronFireMsg:
		s.onCronFire(m.jobID, m.message)
		s.drainIfIdle()

	case parentDownMsg:
		s.onParentDown(m.reason)
		s.drainIfIdle()

	case removeWaiterMsg:
		delete(s.st.completionWaiters, m.id)
	}
	return s.st.status == StatusShuttingDown
}

// drainIfIdle runs the drain loop to completion if status is idle and the
// queue is non-empty; a no-op otherwise enforces the at-most-one-drain-pass
// invariant structurally (the goroutine is never re-entered).
func (s *Server) drainIfIdle() {
	if s.st.status != StatusIdle {
		return
	}
	if len(s.st.queue) == 0 {
		return
	}
	s.st.status = StatusProcessing
	s.st.processing = true
	for {
		if s.st.status == StatusShuttingDown {
			break
		}
		item, ok := s.st.dequeue()
		if !ok {
			break
		}
		s.processItem(item)
	}
	s.st.processing = false
	if s.st.status != StatusShuttingDown {
		s.st.status = StatusIdle
	}
	s.notifyCompletionWaiters()
}

// Call enqueues sig and blocks until its directives have executed and any
// plugin TransformResult has been applied, returning the resulting view.
func (s *Server) Call(ctx context.Context, sig Signal) (Value, error) {
	reply := make(chan callResult, 1)
	if err := s.enqueueWait(ctx, workItem{signal: &sig, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.view, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.exited:
		return nil, ErrShutdown
	}
}

// Cast enqueues sig and returns immediately; no transform is applied.
func (s *Server) Cast(ctx context.Context, sig Signal) error {
	return s.enqueueWait(ctx, workItem{signal: &sig})
}

func (s *Server) enqueueWait(ctx context.Context, item workItem) error {
	ack := make(chan error, 1)
	select {
	case s.ctrl <- enqueueMsg{item: item, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exited:
		return ErrShutdown
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exited:
		return ErrShutdown
	}
}

// State returns a full snapshot of the agent's internal state.
func (s *Server) State(ctx context.Context) (FullState, error) {
	reply := make(chan FullState, 1)
	select {
	case s.ctrl <- stateMsg{reply: reply}:
	case <-ctx.Done():
		return FullState{}, ctx.Err()
	case <-s.exited:
		return FullState{}, ErrShutdown
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return FullState{}, ctx.Err()
	case <-s.exited:
		return FullState{}, ErrShutdown
	}
}

// Status returns the scheduler-computed Status snapshot (§4.11).
func (s *Server) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.ctrl <- statusMsg{reply: reply}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.exited:
		return Status{}, ErrShutdown
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.exited:
		return Status{}, ErrShutdown
	}
}

// AwaitCompletion returns immediately if the agent is already terminal;
// otherwise it parks until a terminal result appears or timeout elapses.
func (s *Server) AwaitCompletion(ctx context.Context, timeout time.Duration) (any, error) {
	reply := make(chan completionResult, 1)
	select {
	case s.ctrl <- awaitMsg{reply: reply, timeout: timeout}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.exited:
		return nil, ErrShutdown
	}
	select {
	case res := <-reply:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.exited:
		return nil, ErrShutdown
	}
}

// Alive reports whether the server is still running; it never errors.
func (s *Server) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
	}
	reply := make(chan bool, 1)
	select {
	case s.ctrl <- aliveMsg{reply: reply}:
	case <-s.exited:
		return false
	case <-time.After(time.Second):
		return false
	}
	select {
	case alive := <-reply:
		return alive
	case <-s.exited:
		return false
	}
}

// Stop requests termination with the given reason.
func (s *Server) Stop(reason string) {
	select {
	case s.ctrl <- stopMsg{reason: reason}:
	case <-s.exited:
	}
}

func (s *Server) emitQueueOverflow() {
	s.tel.Metrics.IncCounter("queue.overflow", 1, "agent_id", s.id)
	_ = s.bus.Publish(context.Background(), hooks.NewQueueOverflowEvent(s.id, nowMillis(), len(s.st.queue), s.st.maxQueue))
	if s.overflowLimiter.Allow() {
		s.tel.Logger.Warn(context.Background(), "queue overflow", "agent_id", s.id, "queue_len", len(s.st.queue), "max_queue_size", s.st.maxQueue)
	}
}
