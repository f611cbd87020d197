package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
)

type conversationStore struct {
	q db.Querier
}

func newConversationStore(q db.Querier) ConversationStore {
	return &conversationStore{q: q}
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	return s.q.QueryRow(ctx,
		`INSERT INTO conversations (id, title) VALUES ($1, $2) RETURNING created_at, updated_at`,
		conv.ID, conv.Title,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
}

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.q.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (s *conversationStore) Touch(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
