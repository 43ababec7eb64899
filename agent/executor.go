package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentsignal/agentserver/agent/hooks"
)

// runDirective executes a single directive produced by an action (or
// internally) and records start/stop/exception telemetry around it (§4.8).
// parentTrace is the envelope any signal the directive itself produces
// should derive from; it is the zero value for directives that did not
// originate from a signal (e.g. a directly-enqueued directive work item).
func (s *Server) runDirective(d Directive, parentTrace TraceEnvelope) {
	ctx := context.Background()
	start := time.Now()
	dtype := DirectiveType(d)
	_ = s.bus.Publish(ctx, hooks.NewDirectiveStartEvent(s.id, nowMillis(), dtype))

	err := s.dispatchDirective(ctx, d, parentTrace)

	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.tel.Logger.Error(ctx, "directive error", "agent_id", s.id, "directive_type", dtype, "error", err)
		_ = s.bus.Publish(ctx, hooks.NewDirectiveExceptionEvent(s.id, nowMillis(), dtype, elapsed, "execute", err.Error()))
		return
	}
	_ = s.bus.Publish(ctx, hooks.NewDirectiveStopEvent(s.id, nowMillis(), dtype, elapsed))
}

func (s *Server) dispatchDirective(ctx context.Context, d Directive, parentTrace TraceEnvelope) error {
	switch v := d.(type) {
	case Emit:
		return s.execEmit(v, parentTrace)
	case ErrorDirective:
		return s.execError(v)
	case Schedule:
		s.armTimer(v, parentTrace)
		return nil
	case Spawn:
		return s.execSpawn(v)
	case SpawnAgent:
		return s.execSpawnAgent(ctx, v)
	case StopChild:
		return s.execStopChild(v)
	case Stop:
		return s.execStop(v)
	case CronRegister:
		return s.registerCron(v, "", parentTrace)
	case CronCancel:
		s.cancelCron(v)
		return nil
	default:
		// Unknown directive variants are no-ops (§4.8).
		return nil
	}
}

// execEmit dispatches e.Signal, first stamping it with a trace derived from
// parentTrace so trace_id/causation_id trace back to the signal whose
// action produced this Emit directive (§4.6 step 6, §8 invariant 5).
func (s *Server) execEmit(e Emit, parentTrace TraceEnvelope) error {
	sink := e.Dispatch
	if sink == nil {
		sink = e.Signal.Dispatch()
	}
	sig := e.Signal.WithTrace(deriveFromTrace(parentTrace))
	if s.st.dispatch == nil {
		s.tel.Logger.Debug(context.Background(), "emit with no dispatch sink configured", "agent_id", s.id, "signal_type", sig.Type())
		return nil
	}
	s.st.dispatch(sig, sink)
	return nil
}

func (s *Server) execError(e ErrorDirective) error {
	outcome, next := s.st.errorPolicy.Decide(e, s.st.errorCount)
	s.st.errorCount = next
	if outcome.Stop {
		s.terminate(outcome.Reason)
	}
	return nil
}

// failDirective routes a directive-execution failure through the error
// policy under the given context ("Spawn failures enqueue an
// Error{context: :spawn}" / "Failures enqueue an Error{context:
// :spawn_agent}", §4.8) and returns err unchanged so runDirective's own
// telemetry still logs it.
func (s *Server) failDirective(err error, context string) error {
	s.execError(ErrorDirective{Err: err, Context: context})
	return err
}

// resolveSpawnFuncAndRegistry picks the SpawnFunc/Registry a Spawn/SpawnAgent
// directive should use. An empty instanceName inherits this agent's own
// supervisor/registry, so a spawned child is supervised by the same
// instance its parent belongs to by default (§3 invariant 4). A non-empty
// instanceName is looked up via instanceResolver; an instance that was
// never Started is a distinct failure (ErrInstanceNotFound), never a
// silent fallback to this agent's own supervisor (§4.1).
func (s *Server) resolveSpawnFuncAndRegistry(instanceName string) (SpawnFunc, Registry, error) {
	if instanceName == "" {
		return s.st.spawnFunc, s.st.registry, nil
	}
	if s.st.instanceResolver == nil {
		return nil, nil, ErrInstanceNotFound
	}
	spawnFunc, registry, ok := s.st.instanceResolver(instanceName)
	if !ok {
		return nil, nil, ErrInstanceNotFound
	}
	return spawnFunc, registry, nil
}

func (s *Server) execSpawn(sp Spawn) error {
	spawnFunc, _, err := s.resolveSpawnFuncAndRegistry(sp.Instance)
	if err != nil {
		return s.failDirective(err, "spawn")
	}
	if spawnFunc == nil {
		return s.failDirective(fmt.Errorf("agent: spawn requested but no SpawnFunc configured"), "spawn")
	}
	tag := sp.Tag
	if tag == nil {
		tag = SpawnTag(uuid.NewString())
	}
	cancel, done, err := spawnFunc(sp.Spec)
	if err != nil {
		return s.failDirective(err, "spawn")
	}
	s.st.children.put(ChildInfo{Module: sp.Spec.Module, Tag: tag, Meta: sp.Meta, cancel: cancel, done: done})
	s.watchChild(tag, done)
	return nil
}

func (s *Server) execSpawnAgent(ctx context.Context, sa SpawnAgent) error {
	spawnFunc, registry, err := s.resolveSpawnFuncAndRegistry(sa.Instance)
	if err != nil {
		return s.failDirective(err, "spawn_agent")
	}

	opts := sa.Opts
	opts.Module = sa.Module
	opts.Value = sa.Value
	opts.Parent = &ParentRef{ID: s.id, notify: s.exited, reason: func() string { return s.exitReason }}
	if opts.SpawnFunc == nil {
		opts.SpawnFunc = spawnFunc
	}
	if opts.Registry == nil {
		opts.Registry = registry
	}
	if opts.InstanceResolver == nil {
		opts.InstanceResolver = s.st.instanceResolver
	}

	child, err := NewServer(opts)
	if err != nil {
		return s.failDirective(err, "spawn_agent")
	}
	child.Start()

	tag := sa.Tag
	if tag == nil {
		tag = SpawnTag(child.ID())
	}
	done := make(chan struct{})
	go func() {
		<-child.exited
		close(done)
	}()
	s.st.children.put(ChildInfo{Module: moduleName(sa.Module), ID: child.ID(), Tag: tag, Meta: sa.Meta, cancel: func() { child.Stop("parent stop_child") }, done: done})
	s.watchChild(tag, done)
	return nil
}

// watchChild starts the monitor goroutine that emulates a DOWN message: it
// blocks on done, then posts a childExitMsg so the owning server (and only
// that goroutine) mutates the child table.
func (s *Server) watchChild(tag any, done <-chan struct{}) {
	go func() {
		<-done
		select {
		case s.ctrl <- childExitMsg{tag: tag, err: nil}:
		case <-s.exited:
		}
	}()
}

func (s *Server) execStopChild(sc StopChild) error {
	if sc.Tag == nil {
		return nil
	}
	info, ok := s.st.children.remove(sc.Tag)
	if !ok {
		return nil
	}
	if info.cancel != nil {
		info.cancel()
	}
	return nil
}

func (s *Server) execStop(st Stop) error {
	if st.Reason == "normal" || st.Reason == "" {
		s.tel.Logger.Warn(context.Background(), "agent stopping with reason=normal; indistinguishable from supervision-requested termination", "agent_id", s.id)
	}
	s.terminate(st.Reason)
	return nil
}
