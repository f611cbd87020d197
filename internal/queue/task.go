package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// TurnTask asks a worker to run the chat agent for a turn whose user
// message is already persisted.
type TurnTask struct {
	TurnID         int64
	ConversationID int64
	TraceID        string
	Attempt        int
}

// Message is a TurnTask read back from the stream.
type Message struct {
	ID string
	TurnTask
	Raw redis.XMessage
}

func taskValues(task TurnTask) map[string]any {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		"turn_id":         task.TurnID,
		"conversation_id": task.ConversationID,
		"attempt":         attempt,
	}
	if task.TraceID != "" {
		values["trace_id"] = task.TraceID
	}
	return values
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	turnID, err := parseInt64(msg.Values, "turn_id")
	if err != nil {
		return Message{}, err
	}
	conversationID, err := parseInt64(msg.Values, "conversation_id")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID: msg.ID,
		TurnTask: TurnTask{
			TurnID:         turnID,
			ConversationID: conversationID,
			TraceID:        parseOptionalString(msg.Values, "trace_id"),
			Attempt:        attempt,
		},
		Raw: msg,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
