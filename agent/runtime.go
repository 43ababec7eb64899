package agent

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// postInit runs once before the server's first drain pass (§4.7): it
// initializes the lifecycle record, starts every plugin's declared
// children and sensors, registers plugin cron schedules unless suppressed,
// and arms the parent-death watch. Children/sensors/cron failures are
// logged and skipped rather than aborting startup, matching the spec's
// "best-effort mount" framing for post_init capabilities.
func (s *Server) postInit() {
	ctx := context.Background()
	if err := s.st.lifecycle.Init(ctx, s.id); err != nil {
		s.tel.Logger.Warn(ctx, "lifecycle init failed", "agent_id", s.id, "error", err)
	}

	for _, p := range s.st.plugins {
		if csp, ok := p.(ChildSpecProvider); ok {
			for _, spec := range csp.ChildSpecs() {
				s.startPostInitChild(PluginTag(p.Key(), spec.Module), spec)
			}
		}
		if ssp, ok := p.(SensorSpecProvider); ok {
			for _, spec := range ssp.SensorSpecs() {
				s.startPostInitChild(SensorTag(p.Key(), spec.Module), spec)
			}
		}
		if !s.st.skipSchedules {
			if csp, ok := p.(CronScheduleProvider); ok {
				for _, reg := range csp.CronSchedules() {
					if err := s.registerCron(reg, p.Key(), TraceEnvelope{}); err != nil {
						s.tel.Logger.Warn(ctx, "cron registration failed", "agent_id", s.id, "plugin", p.Key(), "error", err)
					}
				}
			}
		}
	}

	if s.st.parent != nil && s.st.parent.notify != nil {
		s.watchParent(s.st.parent)
	}

	if err := s.st.lifecycle.HandleEvent(ctx, s.id, LifecycleInit, nil); err != nil {
		s.tel.Logger.Warn(ctx, "lifecycle init event failed", "agent_id", s.id, "error", err)
	}
}

func (s *Server) startPostInitChild(tag any, spec ChildSpec) {
	if s.st.spawnFunc == nil {
		s.tel.Logger.Warn(context.Background(), "post_init child declared but no SpawnFunc configured", "agent_id", s.id, "module", spec.Module)
		return
	}
	cancel, done, err := s.st.spawnFunc(spec)
	if err != nil {
		s.tel.Logger.Warn(context.Background(), "post_init child failed to start", "agent_id", s.id, "module", spec.Module, "error", err)
		return
	}
	s.st.children.put(ChildInfo{Module: spec.Module, Tag: tag, cancel: cancel, done: done})
	s.watchChild(tag, done)
}

// watchParent blocks until the parent's exited channel closes, then posts
// a parentDownMsg carrying the parent's actual exit reason (when the parent
// exposes one), emulating the DOWN message a monitor would deliver.
func (s *Server) watchParent(parent *ParentRef) {
	go func() {
		select {
		case <-parent.notify:
			reason := "parent_exited"
			if parent.reason != nil {
				if r := parent.reason(); r != "" {
					reason = r
				}
			}
			select {
			case s.ctrl <- parentDownMsg{reason: reason}:
			case <-s.exited:
			}
		case <-s.exited:
		}
	}()
}

// benignParentDownReasons are terminations that do not themselves indicate
// a failure of the parent; anything else (a panic, an explicit {:kill}-style
// reason, an unrecognized exit) is treated as abnormal (§8 boundary
// behavior: "Parent killed with :kill -> child exits with {:parent_down,
// :killed}; parent shut down normally -> child exits with
// {:shutdown, {:parent_down, :shutdown}}").
var benignParentDownReasons = map[string]bool{
	"":              true,
	"normal":        true,
	"shutdown":      true,
	"parent_exited": true,
}

// formatParentDownReason renders the parent's exit reason the way §8
// distinguishes a benign shutdown from an abnormal one.
func formatParentDownReason(reason string) string {
	if benignParentDownReasons[reason] {
		return fmt.Sprintf("shutdown: parent_down: %s", orNormal(reason))
	}
	return fmt.Sprintf("parent_down: %s", reason)
}

func orNormal(reason string) string {
	if reason == "" {
		return "normal"
	}
	return reason
}

// onParentDown applies OnParentDeath (§4.10).
func (s *Server) onParentDown(reason string) {
	switch s.st.onParentDeath {
	case ParentDeathStop:
		s.terminate(formatParentDownReason(reason))
	case ParentDeathEmitOrphan:
		sig, err := NewSignal(SignalOrphaned, s.id, map[string]any{"reason": reason})
		if err == nil {
			sig = sig.WithTrace(TraceEnvelope{TraceID: uuid.NewString(), SpanID: uuid.NewString()})
			if qerr := s.st.enqueue(workItem{signal: &sig}); qerr != nil {
				s.emitQueueOverflow()
			}
		}
	case ParentDeathContinue:
		// deliberate no-op
	}
}

// onChildExit drops a tracked child from the child table (§4.10). A child
// that exits with an error is logged but does not itself terminate the
// parent; that is the error policy's decision, reached only if the child
// spec's own Handler surfaces the failure as an ErrorDirective.
func (s *Server) onChildExit(tag any, err error) {
	info, ok := s.st.children.remove(tag)
	if !ok {
		return
	}
	if err != nil {
		s.tel.Logger.Warn(context.Background(), "child exited with error", "agent_id", s.id, "child_module", info.Module, "error", err)
	}
	sig, sigErr := NewSignal(SignalChildExit, s.id, map[string]any{"tag": tag, "module": info.Module})
	if sigErr != nil {
		return
	}
	sig = sig.WithTrace(TraceEnvelope{TraceID: uuid.NewString(), SpanID: uuid.NewString()})
	if qerr := s.st.enqueue(workItem{signal: &sig}); qerr != nil {
		s.emitQueueOverflow()
	}
}

// updateCompletion consults the strategy's Snapshot after a processed
// signal to see whether the run has reached a terminal state, latching
// done/result the first time it reports Done (§4.11).
func (s *Server) updateCompletion() {
	if s.st.strategy == nil || s.st.done {
		return
	}
	snap := s.st.strategy.Snapshot(s.st.value)
	if snap.Done {
		s.st.done = true
		s.st.result = snap.Result
	}
}

// handleAwait answers an AwaitCompletion call: immediately if the agent is
// already done, otherwise by registering a waiter that a timeout goroutine
// (not the drain goroutine) eventually resolves.
func (s *Server) handleAwait(m awaitMsg) {
	if s.st.done {
		m.reply <- completionResult{result: s.st.result}
		return
	}
	id := uuid.NewString()
	ch := make(chan completionResult, 1)
	s.st.completionWaiters[id] = ch

	go func() {
		var timeoutC <-chan time.Time
		if m.timeout > 0 {
			timeoutC = time.After(m.timeout)
		}
		select {
		case res := <-ch:
			m.reply <- res
		case <-timeoutC:
			select {
			case s.ctrl <- removeWaiterMsg{id: id}:
			case <-s.exited:
			}
			m.reply <- completionResult{err: context.DeadlineExceeded}
		case <-s.exited:
			m.reply <- completionResult{err: ErrShutdown}
		}
	}()
}

// notifyCompletionWaiters fans the terminal result out to every waiter
// registered since the agent became done, clearing the map.
func (s *Server) notifyCompletionWaiters() {
	if !s.st.done || len(s.st.completionWaiters) == 0 {
		return
	}
	res := completionResult{result: s.st.result}
	for id, ch := range s.st.completionWaiters {
		select {
		case ch <- res:
		default:
		}
		delete(s.st.completionWaiters, id)
	}
}

// terminate runs shutdown exactly once: it stops timers/cron, cancels
// tracked children, runs the lifecycle Terminate hook, unregisters from
// the registry, and flips status so run()'s loop notices and exits.
func (s *Server) terminate(reason string) {
	s.exitOnce.Do(func() {
		s.exitReason = reason
		s.st.status = StatusShuttingDown
		s.cancelAllTimers()
		s.stopCronScheduler()
		for _, info := range s.st.children.snapshot() {
			if info.cancel != nil {
				info.cancel()
			}
		}
		if err := s.st.lifecycle.Terminate(context.Background(), s.id, reason); err != nil {
			s.tel.Logger.Warn(context.Background(), "lifecycle terminate failed", "agent_id", s.id, "error", err)
		}
		if s.st.registry != nil {
			s.st.registry.Unregister(s.id)
		}
		s.cancel()
		s.notifyCompletionWaiters()
		s.tel.Logger.Info(context.Background(), "agent terminated", "agent_id", s.id, "reason", reason)
	})
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}
