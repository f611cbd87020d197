package stream

import "encoding/json"

// EventType names one wire event of a turn.
type EventType string

const (
	EventTurnStart       EventType = "turn-start"
	EventTextDelta       EventType = "text-delta"
	EventToolCallStart   EventType = "tool-call-start"
	EventToolCallArgs    EventType = "tool-call-args"
	EventToolCallResult  EventType = "tool-call-result"
	EventToolCallError   EventType = "tool-call-error"
	EventSourceURL       EventType = "source-url"
	EventTangentDetected EventType = "tangent-detected"
	EventSearchLogged    EventType = "search-logged"
	EventStepFinish      EventType = "step-finish"
	EventTurnFinish      EventType = "turn-finish"
	EventTurnError       EventType = "turn-error"
)

// Terminal reports whether no event can follow this one.
func (t EventType) Terminal() bool {
	return t == EventTurnFinish || t == EventTurnError
}

// Reasons carried by turn-error events.
const (
	ReasonAborted = "aborted"
	ReasonFailed  = "failed"
)

// Event is one sequenced item of a turn stream. Fields are populated
// according to Type; everything else is left zero and omitted on the wire.
type Event struct {
	Seq    int64     `json:"seq"`
	Type   EventType `json:"type"`
	TurnID int64     `json:"turn_id,string"`

	// turn-start
	ConversationID int64  `json:"conversation_id,string,omitempty"`
	MessageID      string `json:"message_id,omitempty"`

	// text-delta
	Delta string `json:"delta,omitempty"`

	// tool-call-*
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`

	// source-url; ParentToolCallID attributes nested sub-agent searches.
	URL              string `json:"url,omitempty"`
	Title            string `json:"title,omitempty"`
	ParentToolCallID string `json:"parent_tool_call_id,omitempty"`

	// tangent-detected (Count) and search-logged (Query, Reason)
	Count int    `json:"count,omitempty"`
	Query string `json:"query,omitempty"`

	// search-logged reason, or turn-error reason (aborted | failed)
	Reason string `json:"reason,omitempty"`

	// step-finish and turn-finish
	Step       int    `json:"step,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`

	// turn-error: client-safe message
	Message string `json:"message,omitempty"`
}
