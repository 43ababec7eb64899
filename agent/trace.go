package agent

import (
	"time"

	"github.com/google/uuid"
)

// stampIngress ensures sig carries a trace envelope before it reaches the
// router: if the envelope is absent, a fresh root trace is stamped;
// otherwise the existing envelope is preserved unchanged. This realizes
// invariant 6 of the data model.
func stampIngress(sig Signal) Signal {
	if !sig.Trace().IsZero() {
		return sig
	}
	rootSpan := uuid.NewString()
	return sig.WithTrace(TraceEnvelope{
		TraceID: uuid.NewString(),
		SpanID:  rootSpan,
	})
}

// deriveDirectiveTrace computes the trace envelope stamped on any signal a
// directive produces in response to input signal `in`: same trace id, a
// fresh span id, parent span id equal to the input's span id, and
// causation id equal to the input signal's id.
func deriveDirectiveTrace(in Signal) TraceEnvelope {
	t := in.Trace()
	return TraceEnvelope{
		TraceID:      t.TraceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: t.SpanID,
		CausationID:  in.ID(),
	}
}

// deriveFromTrace computes a trace envelope from the one deriveDirectiveTrace
// produced for a directive rather than from a Signal directly: same trace
// id, same parent span id and same causation id, with a fresh span id per
// call, so every signal the directive produces is its own span directly
// under the triggering signal's span and names that signal as its cause.
// Used when the thing producing a new signal is itself a directive
// or a delayed fire, not a freshly-processed ingress Signal -- Emit
// dispatch, and a Schedule/CronRegister firing that must trace back to the
// signal whose action produced it (§4.6 step 6, §8 invariant 5). A zero
// parent (no originating signal, e.g. a directly-enqueued directive work
// item) stamps a fresh root instead of propagating zero values.
func deriveFromTrace(parent TraceEnvelope) TraceEnvelope {
	if parent.IsZero() {
		return TraceEnvelope{TraceID: uuid.NewString(), SpanID: uuid.NewString()}
	}
	return TraceEnvelope{
		TraceID:      parent.TraceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: parent.ParentSpanID,
		CausationID:  parent.CausationID,
	}
}

// nowMillis is a small seam so telemetry event timestamps read consistently
// across the pipeline and executor.
func nowMillis() int64 { return time.Now().UnixMilli() }
