package model

import "time"

type TurnStatus string

const (
	TurnRunning TurnStatus = "running"
	TurnReady   TurnStatus = "ready"
	TurnError   TurnStatus = "error"
	TurnAborted TurnStatus = "aborted"
)

// Terminal reports whether the turn has finished one way or another.
func (s TurnStatus) Terminal() bool {
	return s == TurnReady || s == TurnError || s == TurnAborted
}

// Turn is one run of the chat agent over a conversation.
type Turn struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	MessageID      string     `json:"message_id"` // id of the assistant message it produces
	Status         TurnStatus `json:"status"`
	Steps          int        `json:"steps"`
	ToolCalls      int        `json:"tool_calls"`
	StopReason     string     `json:"stop_reason,omitempty"`
	Error          string     `json:"error,omitempty"`
	TraceID        string     `json:"trace_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// TurnOutcome is what a finished turn records.
type TurnOutcome struct {
	Status     TurnStatus
	Steps      int
	ToolCalls  int
	StopReason string
	Error      string
}
