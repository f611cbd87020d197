package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for turn status changes or tool-call
	// stages that would break event ordering.
	ErrInvalidTransition = errors.New("invalid stream transition")

	// ErrTurnClosed is returned when emitting after a terminal event.
	ErrTurnClosed = errors.New("turn stream closed")
)

// TurnStatus is the client-visible lifecycle of one assistant turn.
type TurnStatus string

const (
	TurnIdle      TurnStatus = "idle"
	TurnSubmitted TurnStatus = "submitted"
	TurnStreaming TurnStatus = "streaming"
	TurnReady     TurnStatus = "ready"
	TurnError     TurnStatus = "error"
)

var turnTransitions = map[TurnStatus][]TurnStatus{
	TurnIdle:      {TurnSubmitted},
	TurnSubmitted: {TurnStreaming, TurnError},
	TurnStreaming: {TurnReady, TurnError},
}

// Terminal reports whether the status ends the turn.
func (s TurnStatus) Terminal() bool {
	return s == TurnReady || s == TurnError
}

// CanTransition reports whether from -> to is a legal turn transition.
func CanTransition(from, to TurnStatus) bool {
	for _, next := range turnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(from, to TurnStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: turn %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// toolStage tracks where a tool call is in start -> args -> result|error.
type toolStage int

const (
	stageNone toolStage = iota
	stageStarted
	stageArgs
	stageDone
)

func (s toolStage) String() string {
	switch s {
	case stageStarted:
		return "started"
	case stageArgs:
		return "args"
	case stageDone:
		return "done"
	default:
		return "none"
	}
}
