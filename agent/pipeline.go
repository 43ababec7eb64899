package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsignal/agentserver/agent/hooks"
)

// processItem is the signal pipeline (§4.6): stamp trace, run the plugin
// middleware chain, route (unless a plugin overrode routing directly),
// invoke the action with before/after hooks, merge effects, execute the
// resulting directives, and deliver the transformed view to any waiting
// synchronous caller. It runs exclusively inside the drain goroutine.
func (s *Server) processItem(item workItem) {
	if item.directive != nil {
		s.runDirective(item.directive, TraceEnvelope{})
		return
	}
	if item.signal == nil {
		return
	}

	start := time.Now()
	sig := stampIngress(*item.signal)
	ctx, span := s.tel.Tracer.Start(context.Background(), "agent.signal")
	defer span.End()

	s.tel.Logger.Debug(ctx, "signal start", "agent_id", s.id, "signal_type", sig.Type())
	_ = s.bus.Publish(ctx, hooks.NewSignalStartEvent(s.id, nowMillis(), moduleName(s.st.module), sig.Type(),
		sig.Trace().TraceID, sig.Trace().SpanID, sig.Trace().ParentSpanID, sig.Trace().CausationID))

	action, params, sig, overridden, err := s.runMiddleware(ctx, sig)
	if err != nil {
		s.handleSignalError(ctx, item, err, "middleware", start)
		return
	}

	if !overridden {
		routes := s.st.router.Match(sig)
		if len(routes) == 0 {
			s.handleSignalError(ctx, item, ErrRoutingFailed, "routing", start)
			return
		}
		action = routes[0].Target.Action
		params = routes[0].Target.Params
	}

	if hp, ok := s.st.module.(HookProvider); ok {
		action = hp.OnBeforeCmd(s.st.value, action)
	}

	impl, ok := s.lookupAction(action)
	if !ok {
		s.handleSignalError(ctx, item, fmt.Errorf("%w: unknown action %q", ErrRoutingFailed, action), "routing", start)
		return
	}

	actx := ActionContext{AgentID: s.id, Agent: s.st.value, Signal: sig, Trace: sig.Trace()}
	result, err := impl.Run(ctx, params, actx)
	if err != nil {
		s.handleSignalError(ctx, item, err, "action", start)
		return
	}

	directives := result.Directives
	if hp, ok := s.st.module.(HookProvider); ok {
		directives = hp.OnAfterCmd(s.st.value, action, directives)
	}

	s.mergeEffects(result.Effects)

	for _, d := range directives {
		s.runDirective(d, deriveDirectiveTrace(sig))
	}

	s.updateCompletion()

	var view Value
	if item.reply != nil {
		view = s.transformView(ctx, action)
	}
	s.deliver(item, view, nil)

	_ = s.bus.Publish(ctx, hooks.NewSignalStopEvent(s.id, nowMillis(), time.Since(start).Milliseconds(), len(directives)))
}

// runMiddleware runs every plugin matching sig through HandleSignal in
// plugin-list order under PluginTimeout, stopping at the first Override
// (§4.6 step 2-3). A plugin that returns an error, panics, or times out
// aborts the signal with a *PluginError; later plugins and routing are
// skipped for it.
func (s *Server) runMiddleware(ctx context.Context, sig Signal) (action ActionID, params map[string]any, outSig Signal, overridden bool, err error) {
	outSig = sig
	for _, p := range s.st.plugins {
		mw, ok := p.(SignalMiddleware)
		if !ok || !pluginMatches(p, outSig) {
			continue
		}
		outcome, mwErr := s.runMiddlewareOne(ctx, mw, outSig)
		if mwErr != nil {
			return "", nil, outSig, false, &PluginError{Plugin: p.Key(), Kind: "handle_signal", Err: mwErr}
		}
		if outcome.NewSignal != nil {
			outSig = *outcome.NewSignal
		}
		if outcome.Override {
			return outcome.Action, outcome.Params, outSig, true, nil
		}
	}
	return "", nil, outSig, false, nil
}

func (s *Server) runMiddlewareOne(ctx context.Context, mw SignalMiddleware, sig Signal) (out MiddlewareOutcome, err error) {
	type result struct {
		out MiddlewareOutcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		o, e := mw.HandleSignal(ctx, sig)
		done <- result{out: o, err: e}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(PluginTimeout):
		return MiddlewareOutcome{}, fmt.Errorf("timeout after %v", PluginTimeout)
	}
}

// lookupAction resolves action against the module's ActionProvider, if any.
func (s *Server) lookupAction(action ActionID) (Action, bool) {
	ap, ok := s.st.module.(ActionProvider)
	if !ok {
		return nil, false
	}
	impl, ok := ap.Actions()[action]
	return impl, ok
}

// mergeEffects shallow-merges effects into the agent value's state map.
func (s *Server) mergeEffects(effects map[string]any) {
	if len(effects) == 0 || s.st.value == nil {
		return
	}
	st := s.st.value.State()
	for k, v := range effects {
		st[k] = v
	}
}

// transformView applies every plugin's ResultTransformer in order, for
// synchronous callers only; stored state is never touched by this pass. A
// transformer that returns an error or panics is logged and skipped.
func (s *Server) transformView(ctx context.Context, action ActionID) Value {
	v := s.st.value
	for _, p := range s.st.plugins {
		rt, ok := p.(ResultTransformer)
		if !ok {
			continue
		}
		nv, err := func() (nv Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return rt.TransformResult(ctx, action, v)
		}()
		if err != nil {
			s.tel.Logger.Warn(ctx, "result transform failed", "agent_id", s.id, "plugin", p.Key(), "error", err)
			continue
		}
		v = nv
	}
	return v
}

// handleSignalError routes a pipeline failure through the error policy and
// delivers the error to any waiting synchronous caller.
func (s *Server) handleSignalError(ctx context.Context, item workItem, err error, stage string, start time.Time) {
	s.tel.Logger.Error(ctx, "signal error", "agent_id", s.id, "stage", stage, "error", err)
	_ = s.bus.Publish(ctx, hooks.NewSignalExceptionEvent(s.id, nowMillis(), time.Since(start).Milliseconds(), stage, err.Error()))

	outcome, next := s.st.errorPolicy.Decide(ErrorDirective{Err: err, Context: stage}, s.st.errorCount)
	s.st.errorCount = next
	s.deliver(item, nil, err)
	if outcome.Stop {
		s.terminate(outcome.Reason)
	}
}

// deliver sends a Call's result to its reply channel, if any; Cast-origin
// items (reply == nil) are simply dropped.
func (s *Server) deliver(item workItem, v Value, err error) {
	if item.reply == nil {
		return
	}
	select {
	case item.reply <- callResult{view: v, err: err}:
	default:
	}
}
