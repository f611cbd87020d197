package service_test

import (
	"context"
	"sync"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/brain"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
)

type mockTurnRunner struct {
	runFn     func(ctx context.Context, history []llm.Message, em *stream.Emitter) (brain.TurnResult, error)
	callCount int
	histories [][]llm.Message
}

func (m *mockTurnRunner) Run(ctx context.Context, history []llm.Message, em *stream.Emitter) (brain.TurnResult, error) {
	m.callCount++
	m.histories = append(m.histories, history)
	if m.runFn != nil {
		return m.runFn(ctx, history, em)
	}
	_ = em.TextDelta(ctx, "## Answer\nok")
	_ = em.StepFinish(ctx, 1)
	return brain.TurnResult{Text: "## Answer\nok", Steps: 1, StopReason: brain.StopNatural}, nil
}

type mockProducer struct {
	mu        sync.Mutex
	enqueueFn func(ctx context.Context, task queue.TurnTask) error
	tasks     []queue.TurnTask
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.TurnTask) error {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task)
	}
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
