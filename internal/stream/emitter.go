package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives every event of a turn in emission order.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Write(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Emitter sequences the events of one turn and fans them out to its sinks.
// It owns the turn status machine and the per-tool-call stage order, so a
// consumer replaying its output never sees reordering or duplicates.
type Emitter struct {
	mu     sync.Mutex
	turnID int64
	seq    int64
	status TurnStatus
	tools  map[string]toolStage
	sinks  []Sink

	tangents int
}

// NewEmitter creates an idle emitter for turnID.
func NewEmitter(turnID int64, sinks ...Sink) *Emitter {
	return &Emitter{
		turnID: turnID,
		status: TurnIdle,
		tools:  make(map[string]toolStage),
		sinks:  sinks,
	}
}

// TurnID returns the turn this emitter belongs to.
func (e *Emitter) TurnID() int64 {
	return e.turnID
}

// Status returns the current turn status.
func (e *Emitter) Status() TurnStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Seq returns the sequence number of the last emitted event.
func (e *Emitter) Seq() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Submit moves the turn from idle to submitted. No event is emitted; the
// request has been accepted but nothing has streamed yet.
func (e *Emitter) Submit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := transition(e.status, TurnSubmitted); err != nil {
		return err
	}
	e.status = TurnSubmitted
	return nil
}

// Start opens the stream with a turn-start event.
func (e *Emitter) Start(ctx context.Context, conversationID int64, messageID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := transition(e.status, TurnStreaming); err != nil {
		return err
	}
	e.status = TurnStreaming
	return e.emitLocked(ctx, Event{Type: EventTurnStart, ConversationID: conversationID, MessageID: messageID})
}

func (e *Emitter) TextDelta(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	return e.emit(ctx, Event{Type: EventTextDelta, Delta: delta})
}

// ToolCallStart announces a tool call. Each id may start once.
func (e *Emitter) ToolCallStart(ctx context.Context, toolCallID, toolName string) error {
	return e.emitTool(ctx, stageNone, stageStarted, Event{Type: EventToolCallStart, ToolCallID: toolCallID, ToolName: toolName})
}

// ToolCallArgs publishes the complete input of a started call. Input that is
// not valid JSON is forwarded as a JSON string so the event stays encodable.
func (e *Emitter) ToolCallArgs(ctx context.Context, toolCallID, toolName string, input string) error {
	raw := json.RawMessage(input)
	if input == "" {
		raw = json.RawMessage("{}")
	} else if !json.Valid(raw) {
		quoted, _ := json.Marshal(input)
		raw = quoted
	}
	return e.emitTool(ctx, stageStarted, stageArgs, Event{Type: EventToolCallArgs, ToolCallID: toolCallID, ToolName: toolName, Input: raw})
}

func (e *Emitter) ToolCallResult(ctx context.Context, toolCallID, toolName, output string) error {
	return e.emitTool(ctx, stageArgs, stageDone, Event{Type: EventToolCallResult, ToolCallID: toolCallID, ToolName: toolName, Output: output})
}

func (e *Emitter) ToolCallError(ctx context.Context, toolCallID, toolName, errorText string) error {
	return e.emitTool(ctx, stageArgs, stageDone, Event{Type: EventToolCallError, ToolCallID: toolCallID, ToolName: toolName, ErrorText: errorText})
}

// SourceURL cites a search result. parentToolCallID names the top-level
// tool call that produced it, including searches run inside sub-agents.
func (e *Emitter) SourceURL(ctx context.Context, parentToolCallID, url, title string) error {
	return e.emit(ctx, Event{Type: EventSourceURL, ParentToolCallID: parentToolCallID, URL: url, Title: title})
}

// TangentDetected reports a completed tangent tool call with the running
// count for this turn.
func (e *Emitter) TangentDetected(ctx context.Context, toolCallID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tangents++
	return e.emitLocked(ctx, Event{Type: EventTangentDetected, ToolCallID: toolCallID, Count: e.tangents})
}

func (e *Emitter) SearchLogged(ctx context.Context, toolCallID, query, reason string) error {
	return e.emit(ctx, Event{Type: EventSearchLogged, ToolCallID: toolCallID, Query: query, Reason: reason})
}

func (e *Emitter) StepFinish(ctx context.Context, step int) error {
	return e.emit(ctx, Event{Type: EventStepFinish, Step: step})
}

// Finish closes the stream normally.
func (e *Emitter) Finish(ctx context.Context, steps int, stopReason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := transition(e.status, TurnReady); err != nil {
		return err
	}
	e.status = TurnReady
	return e.emitLocked(ctx, Event{Type: EventTurnFinish, Step: steps, StopReason: stopReason})
}

// Fail closes the stream with a turn-error. message must be safe to show
// to the client. Failing an already closed turn is a no-op.
func (e *Emitter) Fail(ctx context.Context, reason, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return nil
	}
	if err := transition(e.status, TurnError); err != nil {
		return err
	}
	e.status = TurnError
	return e.emitLocked(ctx, Event{Type: EventTurnError, Reason: reason, Message: message})
}

func (e *Emitter) emit(ctx context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emitLocked(ctx, ev)
}

func (e *Emitter) emitTool(ctx context.Context, from, to toolStage, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.ToolCallID == "" {
		return fmt.Errorf("%w: %s without tool call id", ErrInvalidTransition, ev.Type)
	}
	if current := e.tools[ev.ToolCallID]; current != from {
		return fmt.Errorf("%w: tool call %s is %s, cannot emit %s", ErrInvalidTransition, ev.ToolCallID, current, ev.Type)
	}
	if err := e.emitLocked(ctx, ev); err != nil {
		return err
	}
	e.tools[ev.ToolCallID] = to
	return nil
}

// emitLocked stamps and delivers ev. Sink failures are logged, not returned:
// a broken mirror must not end a turn the client is still reading.
func (e *Emitter) emitLocked(ctx context.Context, ev Event) error {
	switch {
	case e.status.Terminal() && !ev.Type.Terminal():
		return fmt.Errorf("%w: %s after close", ErrTurnClosed, ev.Type)
	case e.status != TurnStreaming && !ev.Type.Terminal() && ev.Type != EventTurnStart:
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev.Type, e.status)
	}

	e.seq++
	ev.Seq = e.seq
	ev.TurnID = e.turnID

	// Terminal events are delivered even when the turn context is canceled.
	writeCtx := context.WithoutCancel(ctx)
	for _, sink := range e.sinks {
		if err := sink.Write(writeCtx, ev); err != nil {
			slog.WarnContext(ctx, "stream sink write failed",
				"error", err,
				"event_type", string(ev.Type),
				"seq", ev.Seq)
		}
	}
	return nil
}
