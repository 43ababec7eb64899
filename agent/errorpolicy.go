package agent

// PolicyOutcome is what an ErrorPolicy decides for an ErrorDirective: keep
// running, or stop with a reason.
type PolicyOutcome struct {
	Stop   bool
	Reason string
}

// ErrorPolicy maps ErrorDirectives to continue/log/stop decisions (§4.9).
// errorCount is the agent's running error tally *before* this call; policies
// that count errors (MaxErrors) return the incremented value via
// PolicyOutcome so the Server can persist it back into State.
type ErrorPolicy interface {
	Decide(d ErrorDirective, errorCount uint64) (PolicyOutcome, uint64)
}

type logOnlyPolicy struct{ log func(ErrorDirective) }

// LogOnlyPolicy logs the error with context and continues.
func LogOnlyPolicy(log func(ErrorDirective)) ErrorPolicy { return logOnlyPolicy{log: log} }

func (p logOnlyPolicy) Decide(d ErrorDirective, errorCount uint64) (PolicyOutcome, uint64) {
	if p.log != nil {
		p.log(d)
	}
	return PolicyOutcome{}, errorCount + 1
}

type stopOnErrorPolicy struct{ log func(ErrorDirective) }

// StopOnErrorPolicy logs and stops on the first error.
func StopOnErrorPolicy(log func(ErrorDirective)) ErrorPolicy { return stopOnErrorPolicy{log: log} }

func (p stopOnErrorPolicy) Decide(d ErrorDirective, errorCount uint64) (PolicyOutcome, uint64) {
	if p.log != nil {
		p.log(d)
	}
	return PolicyOutcome{Stop: true, Reason: "agent_error"}, errorCount + 1
}

type emitSignalPolicy struct {
	emit func(ErrorDirective) Signal
	sink func(Signal)
}

// EmitSignalPolicy emits an error signal through the given sink and continues.
func EmitSignalPolicy(emit func(ErrorDirective) Signal, sink func(Signal)) ErrorPolicy {
	return emitSignalPolicy{emit: emit, sink: sink}
}

func (p emitSignalPolicy) Decide(d ErrorDirective, errorCount uint64) (PolicyOutcome, uint64) {
	if p.emit != nil && p.sink != nil {
		p.sink(p.emit(d))
	}
	return PolicyOutcome{}, errorCount + 1
}

type maxErrorsPolicy struct{ n uint64 }

// MaxErrorsPolicy increments the error count; when it reaches n after
// incrementing, it stops with reason "max_errors_exceeded".
func MaxErrorsPolicy(n uint64) ErrorPolicy { return maxErrorsPolicy{n: n} }

func (p maxErrorsPolicy) Decide(_ ErrorDirective, errorCount uint64) (PolicyOutcome, uint64) {
	next := errorCount + 1
	if next >= p.n {
		return PolicyOutcome{Stop: true, Reason: "max_errors_exceeded"}, next
	}
	return PolicyOutcome{}, next
}

// FuncPolicyResult is what a user-supplied policy function must return.
type FuncPolicyResult struct {
	Stop   bool
	Reason string
}

// FuncPolicy adapts a user function. A crash or an unrecognised return is
// treated as {ok, state} with a logged warning, per spec.md §4.9.
func FuncPolicy(fn func(d ErrorDirective, errorCount uint64) FuncPolicyResult, onMisbehave func(string)) ErrorPolicy {
	return funcPolicy{fn: fn, onMisbehave: onMisbehave}
}

type funcPolicy struct {
	fn          func(d ErrorDirective, errorCount uint64) FuncPolicyResult
	onMisbehave func(string)
}

func (p funcPolicy) Decide(d ErrorDirective, errorCount uint64) (out PolicyOutcome, next uint64) {
	next = errorCount + 1
	defer func() {
		if r := recover(); r != nil {
			if p.onMisbehave != nil {
				p.onMisbehave("error policy function panicked; treating as continue")
			}
			out = PolicyOutcome{}
		}
	}()
	res := p.fn(d, errorCount)
	return PolicyOutcome{Stop: res.Stop, Reason: res.Reason}, next
}
