package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
)

const turnColumns = `id, conversation_id, message_id, status, steps, tool_calls, stop_reason, error, trace_id, created_at, finished_at`

type turnStore struct {
	q db.Querier
}

func newTurnStore(q db.Querier) TurnStore {
	return &turnStore{q: q}
}

func (s *turnStore) Create(ctx context.Context, turn *model.Turn) error {
	return s.q.QueryRow(ctx,
		`INSERT INTO turns (id, conversation_id, message_id, status, trace_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		turn.ID, turn.ConversationID, turn.MessageID, string(turn.Status), turn.TraceID,
	).Scan(&turn.CreatedAt)
}

func (s *turnStore) GetByID(ctx context.Context, id int64) (*model.Turn, error) {
	turn, err := scanTurn(s.q.QueryRow(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return turn, nil
}

func (s *turnStore) Finish(ctx context.Context, id int64, outcome model.TurnOutcome) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE turns
		 SET status = $2, steps = $3, tool_calls = $4, stop_reason = $5, error = $6, finished_at = now()
		 WHERE id = $1`,
		id, string(outcome.Status), outcome.Steps, outcome.ToolCalls, outcome.StopReason, outcome.Error)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *turnStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Turn, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *turn)
	}
	return out, rows.Err()
}

func scanTurn(row pgx.Row) (*model.Turn, error) {
	var (
		turn   model.Turn
		status string
	)
	err := row.Scan(&turn.ID, &turn.ConversationID, &turn.MessageID, &status, &turn.Steps, &turn.ToolCalls,
		&turn.StopReason, &turn.Error, &turn.TraceID, &turn.CreatedAt, &turn.FinishedAt)
	if err != nil {
		return nil, err
	}
	turn.Status = model.TurnStatus(status)
	return &turn, nil
}
