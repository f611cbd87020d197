package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

// Memory keeps everything in process. It backs the CLI and servers run
// without DATABASE_URL; nothing survives a restart.
type Memory struct {
	tx sync.Mutex

	mu            sync.RWMutex
	conversations map[int64]model.Conversation
	messages      map[int64][]model.Message
	turns         map[int64]model.Turn
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[int64]model.Conversation),
		messages:      make(map[int64][]model.Message),
		turns:         make(map[int64]model.Turn),
	}
}

func (m *Memory) Conversations() ConversationStore { return memConversations{m} }
func (m *Memory) Messages() MessageStore           { return memMessages{m} }
func (m *Memory) Turns() TurnStore                 { return memTurns{m} }

// WithTx serializes fn against other transactions. Writes are not rolled
// back when fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(stores Provider) error) error {
	m.tx.Lock()
	defer m.tx.Unlock()
	return fn(m)
}

type memConversations struct{ m *Memory }

func (s memConversations) Create(_ context.Context, conv *model.Conversation) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := time.Now().UTC()
	conv.CreatedAt, conv.UpdatedAt = now, now
	s.m.conversations[conv.ID] = *conv
	return nil
}

func (s memConversations) GetByID(_ context.Context, id int64) (*model.Conversation, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	conv, ok := s.m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &conv, nil
}

func (s memConversations) Touch(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	conv, ok := s.m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = time.Now().UTC()
	s.m.conversations[id] = conv
	return nil
}

type memMessages struct{ m *Memory }

func (s memMessages) Create(_ context.Context, msg *model.Message) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	msg.CreatedAt = time.Now().UTC()
	stored := *msg
	stored.Parts = append([]transcript.Part(nil), msg.Parts...)
	s.m.messages[msg.ConversationID] = append(s.m.messages[msg.ConversationID], stored)
	return nil
}

func (s memMessages) ListByConversation(_ context.Context, conversationID int64) ([]model.Message, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	msgs := s.m.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTurns struct{ m *Memory }

func (s memTurns) Create(_ context.Context, turn *model.Turn) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.conversations[turn.ConversationID]; !ok {
		return ErrNotFound
	}
	turn.CreatedAt = time.Now().UTC()
	s.m.turns[turn.ID] = *turn
	return nil
}

func (s memTurns) GetByID(_ context.Context, id int64) (*model.Turn, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	turn, ok := s.m.turns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &turn, nil
}

func (s memTurns) Finish(_ context.Context, id int64, outcome model.TurnOutcome) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	turn, ok := s.m.turns[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	turn.Status = outcome.Status
	turn.Steps = outcome.Steps
	turn.ToolCalls = outcome.ToolCalls
	turn.StopReason = outcome.StopReason
	turn.Error = outcome.Error
	turn.FinishedAt = &now
	s.m.turns[id] = turn
	return nil
}

func (s memTurns) ListByConversation(_ context.Context, conversationID int64) ([]model.Turn, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []model.Turn
	for _, turn := range s.m.turns {
		if turn.ConversationID == conversationID {
			out = append(out, turn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
