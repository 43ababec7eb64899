package hooks

// EventType identifies the telemetry event shapes the Agent Server emits,
// named after the wire-neutral event names in the external interfaces
// section of the specification.
type EventType string

const (
	SignalStart        EventType = "signal.start"
	SignalStop         EventType = "signal.stop"
	SignalException    EventType = "signal.exception"
	DirectiveStart     EventType = "directive.start"
	DirectiveStop      EventType = "directive.stop"
	DirectiveException EventType = "directive.exception"
	QueueOverflow      EventType = "queue.overflow"
)

// Event is the interface all hook events implement.
type Event interface {
	Type() EventType
	AgentID() string
	// TimestampUnixMilli returns the event creation time in epoch
	// milliseconds. Callers needing a time.Time should convert explicitly.
	// Events are always stamped by the caller, not by the event constructor.
	TimestampUnixMilli() int64
}

type baseEvent struct {
	agentID   string
	timestamp int64
}

func (b baseEvent) AgentID() string            { return b.agentID }
func (b baseEvent) TimestampUnixMilli() int64  { return b.timestamp }

// SignalStartEvent fires when the signal pipeline begins processing a signal.
type SignalStartEvent struct {
	baseEvent
	AgentModule   string
	SignalType    string
	TraceID       string
	SpanID        string
	ParentSpanID  string
	CausationID   string
}

func (SignalStartEvent) Type() EventType { return SignalStart }

// NewSignalStartEvent constructs a SignalStartEvent.
func NewSignalStartEvent(agentID string, now int64, agentModule, signalType, traceID, spanID, parentSpanID, causationID string) *SignalStartEvent {
	return &SignalStartEvent{
		baseEvent:    baseEvent{agentID: agentID, timestamp: now},
		AgentModule:  agentModule,
		SignalType:   signalType,
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		CausationID:  causationID,
	}
}

// SignalStopEvent fires when the signal pipeline finishes processing a signal.
type SignalStopEvent struct {
	baseEvent
	DurationMillis int64
	DirectiveCount int
}

func (SignalStopEvent) Type() EventType { return SignalStop }

// NewSignalStopEvent constructs a SignalStopEvent.
func NewSignalStopEvent(agentID string, now, durationMillis int64, directiveCount int) *SignalStopEvent {
	return &SignalStopEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, DurationMillis: durationMillis, DirectiveCount: directiveCount}
}

// SignalExceptionEvent fires when the signal pipeline fails a signal: a
// plugin middleware error, a routing failure, or an action error.
type SignalExceptionEvent struct {
	baseEvent
	DurationMillis int64
	Kind           string
	Reason         string
}

func (SignalExceptionEvent) Type() EventType { return SignalException }

// NewSignalExceptionEvent constructs a SignalExceptionEvent.
func NewSignalExceptionEvent(agentID string, now, durationMillis int64, kind, reason string) *SignalExceptionEvent {
	return &SignalExceptionEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, DurationMillis: durationMillis, Kind: kind, Reason: reason}
}

// DirectiveStartEvent fires when the directive executor begins executing a directive.
type DirectiveStartEvent struct {
	baseEvent
	DirectiveType string
}

func (DirectiveStartEvent) Type() EventType { return DirectiveStart }

// NewDirectiveStartEvent constructs a DirectiveStartEvent.
func NewDirectiveStartEvent(agentID string, now int64, directiveType string) *DirectiveStartEvent {
	return &DirectiveStartEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, DirectiveType: directiveType}
}

// DirectiveStopEvent fires when the directive executor finishes executing a directive.
type DirectiveStopEvent struct {
	baseEvent
	DirectiveType  string
	DurationMillis int64
}

func (DirectiveStopEvent) Type() EventType { return DirectiveStop }

// NewDirectiveStopEvent constructs a DirectiveStopEvent.
func NewDirectiveStopEvent(agentID string, now int64, directiveType string, durationMillis int64) *DirectiveStopEvent {
	return &DirectiveStopEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, DirectiveType: directiveType, DurationMillis: durationMillis}
}

// DirectiveExceptionEvent fires when a directive's execution returns an error.
type DirectiveExceptionEvent struct {
	baseEvent
	DirectiveType  string
	DurationMillis int64
	Kind           string
	Reason         string
}

func (DirectiveExceptionEvent) Type() EventType { return DirectiveException }

// NewDirectiveExceptionEvent constructs a DirectiveExceptionEvent.
func NewDirectiveExceptionEvent(agentID string, now int64, directiveType string, durationMillis int64, kind, reason string) *DirectiveExceptionEvent {
	return &DirectiveExceptionEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, DirectiveType: directiveType, DurationMillis: durationMillis, Kind: kind, Reason: reason}
}

// QueueOverflowEvent fires when an enqueue attempt is rejected because the
// mailbox is at MaxQueueSize.
type QueueOverflowEvent struct {
	baseEvent
	QueueLen     int
	MaxQueueSize int
}

func (QueueOverflowEvent) Type() EventType { return QueueOverflow }

// NewQueueOverflowEvent constructs a QueueOverflowEvent.
func NewQueueOverflowEvent(agentID string, now int64, queueLen, maxQueueSize int) *QueueOverflowEvent {
	return &QueueOverflowEvent{baseEvent: baseEvent{agentID: agentID, timestamp: now}, QueueLen: queueLen, MaxQueueSize: maxQueueSize}
}
