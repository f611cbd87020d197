package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

type messageStore struct {
	q db.Querier
}

func newMessageStore(q db.Querier) MessageStore {
	return &messageStore{q: q}
}

func (s *messageStore) Create(ctx context.Context, msg *model.Message) error {
	parts := msg.Parts
	if parts == nil {
		parts = []transcript.Part{}
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("encode message parts: %w", err)
	}
	return s.q.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, parts) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		msg.ID, msg.ConversationID, string(msg.Role), partsJSON,
	).Scan(&msg.CreatedAt)
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, conversation_id, role, parts, created_at FROM messages WHERE conversation_id = $1 ORDER BY id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			msg       model.Message
			role      string
			partsJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &partsJSON, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = transcript.Role(role)
		if err := json.Unmarshal(partsJSON, &msg.Parts); err != nil {
			return nil, fmt.Errorf("decode parts of message %d: %w", msg.ID, err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
