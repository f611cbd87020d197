package store

import (
	"context"
	"errors"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for conversation data access
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	Touch(ctx context.Context, id int64) error
}

// MessageStore defines the contract for message data access
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
}

// TurnStore defines the contract for turn data access
type TurnStore interface {
	Create(ctx context.Context, turn *model.Turn) error
	GetByID(ctx context.Context, id int64) (*model.Turn, error)
	Finish(ctx context.Context, id int64, outcome model.TurnOutcome) error
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Turn, error)
}

// Provider hands out the stores, either over the pool or inside a
// transaction.
type Provider interface {
	Conversations() ConversationStore
	Messages() MessageStore
	Turns() TurnStore
}

// TxRunner runs functions within a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores Provider) error) error
}
