package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
)

type ReclaimerConfig struct {
	MinIdle  time.Duration
	Interval time.Duration
}

// Reclaimer periodically dead-letters turns left pending by a worker that
// died between read and ack. A half-streamed turn cannot be resumed, so it
// is abandoned rather than run again.
type Reclaimer struct {
	consumer  Consumer
	processor TurnProcessor
	cfg       ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(consumer Consumer, processor TurnProcessor, cfg ReclaimerConfig) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 10 * time.Minute
	}
	return &Reclaimer{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reclaimer loop. Blocks until Stop() is called.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "sidequest.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			r.ReclaimOnce(ctx)
		}
	}
}

// Stop signals the reclaimer to stop gracefully.
func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce performs one reclaim cycle.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) {
	stale, err := r.consumer.Claim(ctx, r.cfg.MinIdle)
	if err != nil {
		slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	slog.InfoContext(ctx, "found stale pending turns", "count", len(stale))

	for _, msg := range stale {
		const reason = "worker stopped before the turn finished"
		if err := r.processor.Abandon(ctx, msg.TurnID, reason); err != nil {
			slog.WarnContext(ctx, "failed to abandon stale turn", "error", err, "turn_id", msg.TurnID)
		}
		if err := r.consumer.SendDLQ(ctx, msg, reason); err != nil {
			slog.ErrorContext(ctx, "failed to dead-letter stale turn", "error", err, "message_id", msg.ID)
		}
	}
}
