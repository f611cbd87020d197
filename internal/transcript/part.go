package transcript

import "encoding/json"

// PartType tags a Part.
type PartType string

const (
	PartText      PartType = "text"
	PartToolCall  PartType = "tool-call"
	PartSourceURL PartType = "source-url"
)

// ToolState is the lifecycle of a tool-call part. States only move forward;
// OutputAvailable and OutputError are terminal.
type ToolState string

const (
	StateInputStreaming  ToolState = "input-streaming"
	StateInputAvailable  ToolState = "input-available"
	StateOutputAvailable ToolState = "output-available"
	StateOutputError     ToolState = "output-error"
)

func (s ToolState) rank() int {
	switch s {
	case StateInputStreaming:
		return 1
	case StateInputAvailable:
		return 2
	case StateOutputAvailable, StateOutputError:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether no further transition is allowed.
func (s ToolState) Terminal() bool {
	return s == StateOutputAvailable || s == StateOutputError
}

// InFlight reports whether the tool is still running.
func (s ToolState) InFlight() bool {
	return s == StateInputStreaming || s == StateInputAvailable
}

// CanAdvance reports whether a part in state from may move to to.
func CanAdvance(from, to ToolState) bool {
	if from.Terminal() {
		return false
	}
	return to.rank() > from.rank()
}

// Part is one typed fragment of a message.
type Part struct {
	Type PartType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool-call
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	State      ToolState       `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`

	// source-url
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}
