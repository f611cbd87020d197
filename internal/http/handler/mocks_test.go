package handler_test

import (
	"context"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
)

type mockChatService struct {
	prepareFn      func(ctx context.Context, req service.ChatRequest) (*service.PreparedTurn, error)
	streamFn       func(ctx context.Context, turn *service.PreparedTurn, sinks ...stream.Sink) (model.TurnOutcome, error)
	enqueueFn      func(ctx context.Context, req service.ChatRequest) (*model.Turn, error)
	conversationFn func(ctx context.Context, conversationID int64) (*service.ConversationView, error)
	turnEventsFn   func(ctx context.Context, turnID int64, lastID string, fn stream.TailFunc, keepalive stream.KeepaliveFunc) error
}

func (m *mockChatService) Prepare(ctx context.Context, req service.ChatRequest) (*service.PreparedTurn, error) {
	if m.prepareFn != nil {
		return m.prepareFn(ctx, req)
	}
	return &service.PreparedTurn{Turn: model.Turn{ID: 1, ConversationID: 2, MessageID: "3", Status: model.TurnRunning}}, nil
}

func (m *mockChatService) Stream(ctx context.Context, turn *service.PreparedTurn, sinks ...stream.Sink) (model.TurnOutcome, error) {
	if m.streamFn != nil {
		return m.streamFn(ctx, turn, sinks...)
	}
	return model.TurnOutcome{Status: model.TurnReady}, nil
}

func (m *mockChatService) Enqueue(ctx context.Context, req service.ChatRequest) (*model.Turn, error) {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, req)
	}
	return nil, nil
}

func (m *mockChatService) RunQueued(_ context.Context, _ queue.TurnTask) (model.TurnOutcome, error) {
	return model.TurnOutcome{}, nil
}

func (m *mockChatService) Abandon(_ context.Context, _ int64, _ string) error {
	return nil
}

func (m *mockChatService) Conversation(ctx context.Context, conversationID int64) (*service.ConversationView, error) {
	if m.conversationFn != nil {
		return m.conversationFn(ctx, conversationID)
	}
	return nil, service.ErrConversationNotFound
}

func (m *mockChatService) TurnEvents(ctx context.Context, turnID int64, lastID string, fn stream.TailFunc, keepalive stream.KeepaliveFunc) error {
	if m.turnEventsFn != nil {
		return m.turnEventsFn(ctx, turnID, lastID, fn, keepalive)
	}
	return service.ErrReplayUnavailable
}
