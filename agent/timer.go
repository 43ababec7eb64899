package agent

import (
	"time"

	"github.com/google/uuid"
)

// scheduledTimer is a single armed one-shot timer produced by a Schedule
// directive (§4.6). Firing posts a timerFireMsg onto the owning server's
// control channel rather than mutating state from the timer goroutine.
type scheduledTimer struct {
	id      string
	message any
	timer   *time.Timer
	cancel  func()
	// originTrace is the trace envelope of the signal whose action produced
	// this Schedule directive, or the zero value for a directly-enqueued
	// one. onTimerFire derives the fired signal's trace from it (§8
	// invariant 5) instead of minting an unrelated root trace.
	originTrace TraceEnvelope
}

// armTimer starts a new scheduledTimer for d.Delay/d.Message and registers
// it in s.st.scheduledTimers under a fresh id.
func (s *Server) armTimer(d Schedule, parentTrace TraceEnvelope) string {
	id := uuid.NewString()
	t := time.AfterFunc(d.Delay, func() {
		select {
		case s.ctrl <- timerFireMsg{id: id}:
		case <-s.exited:
		}
	})
	s.st.scheduledTimers[id] = &scheduledTimer{
		id:          id,
		message:     d.Message,
		timer:       t,
		cancel:      func() { t.Stop() },
		originTrace: parentTrace,
	}
	return id
}

// onTimerFire looks up and removes the fired timer, enqueueing its message
// as a new ingress work item if it is still registered (it may already have
// been canceled, in which case this is a no-op). A Message that is already
// a Signal passes through unwrapped, keeping its own type and route; any
// other Message is wrapped in a jido.scheduled signal (§4.6), traced back
// to the signal that produced this Schedule directive.
func (s *Server) onTimerFire(id string) {
	timer, ok := s.st.scheduledTimers[id]
	if !ok {
		return
	}
	delete(s.st.scheduledTimers, id)

	var sig Signal
	if already, ok := timer.message.(Signal); ok {
		sig = already
	} else {
		var err error
		sig, err = NewSignal(SignalScheduled, s.id, timer.message)
		if err != nil {
			return
		}
	}
	sig = sig.WithTrace(deriveFromTrace(timer.originTrace))
	if err := s.st.enqueue(workItem{signal: &sig}); err != nil {
		s.emitQueueOverflow()
	}
}

// cancelAllTimers stops every armed timer; called during terminate.
func (s *Server) cancelAllTimers() {
	for id, t := range s.st.scheduledTimers {
		t.cancel()
		delete(s.st.scheduledTimers, id)
	}
}
