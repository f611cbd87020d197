package worker

import (
	"context"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
)

// Consumer abstracts the turn queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
	Claim(ctx context.Context, minIdle time.Duration) ([]queue.Message, error)
}

// TurnProcessor runs and abandons queued turns. service.ChatService
// implements it.
type TurnProcessor interface {
	RunQueued(ctx context.Context, task queue.TurnTask) (model.TurnOutcome, error)
	Abandon(ctx context.Context, turnID int64, reason string) error
}
