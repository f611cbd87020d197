package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
)

// Worker runs queued turns one at a time. A turn is acknowledged whatever
// its outcome; turns that could not run at all go to the dead letter stream.
type Worker struct {
	consumer  Consumer
	processor TurnProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor TurnProcessor) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "sidequest.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.ProcessMessage(ctx, msg)
	}
	return nil
}

// ProcessMessage runs one queued turn and acknowledges it.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) {
	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.turn")
	defer span.End()
	ctx = logger.WithLogFields(span.Context(), logger.LogFields{
		TurnID:         logger.Ptr(msg.TurnID),
		ConversationID: logger.Ptr(msg.ConversationID),
	})

	slog.InfoContext(ctx, "processing turn", "message_id", msg.ID, "attempt", msg.Attempt)
	start := time.Now()

	outcome, err := w.processSafe(ctx, msg)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "turn could not run", "error", err, "message_id", msg.ID)
		if abandonErr := w.processor.Abandon(ctx, msg.TurnID, err.Error()); abandonErr != nil {
			slog.WarnContext(ctx, "failed to abandon turn", "error", abandonErr)
		}
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will find it; the turn is already finished.
		slog.WarnContext(ctx, "failed to ACK message", "error", err, "message_id", msg.ID)
	}

	slog.InfoContext(ctx, "turn processed",
		"status", string(outcome.Status),
		"steps", outcome.Steps,
		"duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) processSafe(ctx context.Context, msg queue.Message) (outcome model.TurnOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in turn processing", "panic", r, "message_id", msg.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.RunQueued(ctx, msg.TurnTask)
}
