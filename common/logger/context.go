package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a tool call deep inside a sub-agent loop
// still logs the conversation and turn it belongs to.
type LogFields struct {
	ConversationID *int64  // Conversation the turn belongs to
	TurnID         *int64  // Turn being answered
	RequestID      *string // HTTP request id (X-Request-Id)
	Agent          string  // Agent running the loop (e.g., "chat", "fact_checker")
	ToolCallID     *string // Tool call currently executing
	Step           *int    // Step number within the agent loop
	Component      string  // Component name (e.g., "sidequest.brain.chat")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'next'.
func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.TurnID != nil {
		result.TurnID = next.TurnID
	}
	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.Agent != "" {
		result.Agent = next.Agent
	}
	if next.ToolCallID != nil {
		result.ToolCallID = next.ToolCallID
	}
	if next.Step != nil {
		result.Step = next.Step
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TurnID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or tool results.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
