package store

import (
	"context"

	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
)

// Stores implements Provider over Postgres.
type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.q)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.q)
}

func (s *Stores) Turns() TurnStore {
	return newTurnStore(s.q)
}

// dbTxRunner implements TxRunner using a db.DB connection.
type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner creates a TxRunner backed by the given database.
func NewTxRunner(database *db.DB) TxRunner {
	return &dbTxRunner{db: database}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores Provider) error) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		return fn(NewStores(q))
	})
}
