package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/id"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/brain"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/store"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrInvalidRequest       = errors.New("invalid chat request")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTurnNotFound         = errors.New("turn not found")
	ErrTurnNotRunnable      = errors.New("turn is not running")
	ErrAsyncUnavailable     = errors.New("async turns need redis")
	ErrReplayUnavailable    = errors.New("turn replay needs redis")
)

// Client-facing turn-error messages. Diagnostics stay in the logs.
const (
	failedMessage  = "the assistant failed to respond"
	abortedMessage = "the turn was aborted"
)

const maxTitleRunes = 80

// TurnRunner runs the chat agent over a history, emitting to em.
// *brain.ChatAgent implements it.
type TurnRunner interface {
	Run(ctx context.Context, history []llm.Message, em *stream.Emitter) (brain.TurnResult, error)
}

// ChatMessage is one entry of the history a client submits.
type ChatMessage struct {
	Role    transcript.Role
	Content string
}

type ChatRequest struct {
	ConversationID *int64
	Messages       []ChatMessage
}

// PreparedTurn is a persisted, not yet started turn.
type PreparedTurn struct {
	Turn    model.Turn
	History []llm.Message
}

// ConversationView is a conversation with its finalized messages and turns.
type ConversationView struct {
	Conversation model.Conversation
	Messages     []model.Message
	Turns        []model.Turn
}

type ChatService interface {
	// Prepare validates req, stores the new user message and creates a
	// running turn. Nothing is streamed yet.
	Prepare(ctx context.Context, req ChatRequest) (*PreparedTurn, error)
	// Stream runs a prepared turn to completion, delivering every event to
	// sinks. Cancellation of ctx aborts the turn.
	Stream(ctx context.Context, turn *PreparedTurn, sinks ...stream.Sink) (model.TurnOutcome, error)
	// Enqueue prepares a turn and hands it to a worker.
	Enqueue(ctx context.Context, req ChatRequest) (*model.Turn, error)
	// RunQueued runs a turn enqueued by Enqueue.
	RunQueued(ctx context.Context, task queue.TurnTask) (model.TurnOutcome, error)
	// Abandon marks a queued turn that can no longer run as failed.
	Abandon(ctx context.Context, turnID int64, reason string) error
	Conversation(ctx context.Context, conversationID int64) (*ConversationView, error)
	// TurnEvents replays the mirrored events of a turn after lastID and
	// tails it until a terminal event.
	TurnEvents(ctx context.Context, turnID int64, lastID string, fn stream.TailFunc, keepalive stream.KeepaliveFunc) error
}

type ChatServiceConfig struct {
	TurnTimeout time.Duration
}

// ChatServiceDeps wires the service. Mirror and Producer are nil when Redis
// is not configured.
type ChatServiceDeps struct {
	Agent    TurnRunner
	Stores   store.Provider
	TxRunner store.TxRunner
	Mirror   *stream.RedisMirror
	Producer queue.Producer
}

type chatService struct {
	agent    TurnRunner
	stores   store.Provider
	txRunner store.TxRunner
	mirror   *stream.RedisMirror
	producer queue.Producer
	cfg      ChatServiceConfig
}

func NewChatService(deps ChatServiceDeps, cfg ChatServiceConfig) ChatService {
	return &chatService{
		agent:    deps.Agent,
		stores:   deps.Stores,
		txRunner: deps.TxRunner,
		mirror:   deps.Mirror,
		producer: deps.Producer,
		cfg:      cfg,
	}
}

// ValidateRequest checks a submitted history before any model or tool call.
func ValidateRequest(req ChatRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		if m.Role != transcript.RoleUser && m.Role != transcript.RoleAssistant {
			return fmt.Errorf("%w: messages[%d].role must be user or assistant", ErrInvalidRequest, i)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: messages[%d].content must not be blank", ErrInvalidRequest, i)
		}
	}
	if req.Messages[len(req.Messages)-1].Role != transcript.RoleUser {
		return fmt.Errorf("%w: last message must come from the user", ErrInvalidRequest)
	}
	return nil
}

func (s *chatService) Prepare(ctx context.Context, req ChatRequest) (*PreparedTurn, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	turn := model.Turn{
		ID:      id.New(),
		Status:  model.TurnRunning,
		TraceID: logger.TraceID(ctx),
	}

	err := s.txRunner.WithTx(ctx, func(stores store.Provider) error {
		// A new conversation stores the whole submitted history; an existing
		// one already holds everything but the latest user message.
		toStore := req.Messages[len(req.Messages)-1:]
		if req.ConversationID == nil {
			conv := &model.Conversation{ID: id.New(), Title: titleFrom(req.Messages)}
			if err := stores.Conversations().Create(ctx, conv); err != nil {
				return fmt.Errorf("creating conversation: %w", err)
			}
			turn.ConversationID = conv.ID
			toStore = req.Messages
		} else {
			turn.ConversationID = *req.ConversationID
			if err := stores.Conversations().Touch(ctx, turn.ConversationID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrConversationNotFound
				}
				return fmt.Errorf("touching conversation: %w", err)
			}
		}

		for _, m := range toStore {
			msg := &model.Message{
				ID:             id.New(),
				ConversationID: turn.ConversationID,
				Role:           m.Role,
				Parts:          []transcript.Part{transcript.TextPart(m.Content)},
			}
			if err := stores.Messages().Create(ctx, msg); err != nil {
				return fmt.Errorf("storing message: %w", err)
			}
		}

		// Messages list in id order, so the answer's id must follow the question's.
		turn.MessageID = id.NewString()
		if err := stores.Turns().Create(ctx, &turn); err != nil {
			return fmt.Errorf("creating turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "turn prepared",
		"turn_id", turn.ID,
		"conversation_id", turn.ConversationID,
		"history_len", len(req.Messages))

	return &PreparedTurn{Turn: turn, History: toHistory(req.Messages)}, nil
}

func (s *chatService) Stream(ctx context.Context, prepared *PreparedTurn, sinks ...stream.Sink) (model.TurnOutcome, error) {
	turn := prepared.Turn
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(turn.ConversationID),
		TurnID:         logger.Ptr(turn.ID),
		Component:      "sidequest.service.chat",
	})
	span := logger.StartSpan(ctx, "service.chat.turn",
		attribute.Int64("turn_id", turn.ID),
		attribute.Int64("conversation_id", turn.ConversationID))
	defer span.End()
	ctx = span.Context()

	reducer := transcript.NewReducer()
	all := append([]stream.Sink{reducer}, sinks...)
	if s.mirror != nil {
		all = append(all, s.mirror.Sink())
	}
	em := stream.NewEmitter(turn.ID, all...)

	if err := em.Submit(); err != nil {
		return model.TurnOutcome{}, err
	}

	runCtx := ctx
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}

	if err := em.Start(runCtx, turn.ConversationID, turn.MessageID); err != nil {
		return model.TurnOutcome{}, err
	}

	result, runErr := s.agent.Run(runCtx, prepared.History, em)
	outcome := model.TurnOutcome{
		Steps:      result.Steps,
		ToolCalls:  result.ToolCalls,
		StopReason: string(result.StopReason),
	}

	switch {
	case runErr == nil:
		outcome.Status = model.TurnReady
		_ = em.Finish(runCtx, result.Steps, string(result.StopReason))
	case llm.IsCanceled(runErr):
		outcome.Status = model.TurnAborted
		outcome.Error = stream.ReasonAborted
		_ = em.Fail(runCtx, stream.ReasonAborted, abortedMessage)
		slog.InfoContext(ctx, "turn aborted by client", "steps", result.Steps)
	default:
		outcome.Status = model.TurnError
		outcome.Error = runErr.Error()
		_ = em.Fail(runCtx, stream.ReasonFailed, failedMessage)
		span.RecordError(runErr)
		slog.ErrorContext(ctx, "turn failed",
			"error", runErr,
			"error_kind", llm.ErrorKind(runErr),
			"steps", result.Steps)
	}

	// The client may be gone; what streamed is still recorded.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.finalize(persistCtx, turn, reducer.Message(), outcome); err != nil {
		slog.ErrorContext(ctx, "failed to persist turn", "error", err)
		return outcome, err
	}

	slog.InfoContext(ctx, "turn finished",
		"status", string(outcome.Status),
		"steps", outcome.Steps,
		"tool_calls", outcome.ToolCalls,
		"workflow_state", string(result.WorkflowState))
	return outcome, nil
}

func (s *chatService) finalize(ctx context.Context, turn model.Turn, msg transcript.Message, outcome model.TurnOutcome) error {
	return s.txRunner.WithTx(ctx, func(stores store.Provider) error {
		if len(msg.Parts) > 0 {
			msgID, err := id.Parse(turn.MessageID)
			if err != nil {
				return fmt.Errorf("parsing message id: %w", err)
			}
			if err := stores.Messages().Create(ctx, &model.Message{
				ID:             msgID,
				ConversationID: turn.ConversationID,
				Role:           transcript.RoleAssistant,
				Parts:          msg.Parts,
			}); err != nil {
				return fmt.Errorf("storing assistant message: %w", err)
			}
		}
		if err := stores.Turns().Finish(ctx, turn.ID, outcome); err != nil {
			return fmt.Errorf("finishing turn: %w", err)
		}
		return nil
	})
}

func (s *chatService) Enqueue(ctx context.Context, req ChatRequest) (*model.Turn, error) {
	if s.producer == nil {
		return nil, ErrAsyncUnavailable
	}

	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	task := queue.TurnTask{
		TurnID:         prepared.Turn.ID,
		ConversationID: prepared.Turn.ConversationID,
		TraceID:        prepared.Turn.TraceID,
	}
	if err := s.producer.Enqueue(ctx, task); err != nil {
		_ = s.stores.Turns().Finish(context.WithoutCancel(ctx), prepared.Turn.ID, model.TurnOutcome{
			Status: model.TurnError,
			Error:  err.Error(),
		})
		return nil, fmt.Errorf("enqueueing turn: %w", err)
	}
	return &prepared.Turn, nil
}

func (s *chatService) RunQueued(ctx context.Context, task queue.TurnTask) (model.TurnOutcome, error) {
	turn, err := s.stores.Turns().GetByID(ctx, task.TurnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.TurnOutcome{}, ErrTurnNotFound
		}
		return model.TurnOutcome{}, fmt.Errorf("loading turn: %w", err)
	}
	if turn.Status != model.TurnRunning {
		return model.TurnOutcome{}, fmt.Errorf("%w: turn %d is %s", ErrTurnNotRunnable, turn.ID, turn.Status)
	}

	msgs, err := s.stores.Messages().ListByConversation(ctx, turn.ConversationID)
	if err != nil {
		return model.TurnOutcome{}, fmt.Errorf("loading history: %w", err)
	}

	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if text := strings.TrimSpace(m.Text()); text != "" {
			history = append(history, llm.Message{Role: toLLMRole(m.Role), Content: m.Text()})
		}
	}

	return s.Stream(ctx, &PreparedTurn{Turn: *turn, History: history})
}

func (s *chatService) Abandon(ctx context.Context, turnID int64, reason string) error {
	turn, err := s.stores.Turns().GetByID(ctx, turnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTurnNotFound
		}
		return fmt.Errorf("loading turn: %w", err)
	}
	if turn.Status.Terminal() {
		return nil
	}
	if err := s.stores.Turns().Finish(ctx, turnID, model.TurnOutcome{Status: model.TurnError, Error: reason}); err != nil {
		return fmt.Errorf("abandoning turn: %w", err)
	}
	slog.WarnContext(ctx, "turn abandoned", "turn_id", turnID, "reason", reason)
	return nil
}

func (s *chatService) Conversation(ctx context.Context, conversationID int64) (*ConversationView, error) {
	conv, err := s.stores.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	msgs, err := s.stores.Messages().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	turns, err := s.stores.Turns().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	return &ConversationView{Conversation: *conv, Messages: msgs, Turns: turns}, nil
}

func (s *chatService) TurnEvents(ctx context.Context, turnID int64, lastID string, fn stream.TailFunc, keepalive stream.KeepaliveFunc) error {
	if s.mirror == nil {
		return ErrReplayUnavailable
	}
	turn, err := s.stores.Turns().GetByID(ctx, turnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTurnNotFound
		}
		return fmt.Errorf("loading turn: %w", err)
	}
	// A finished turn whose mirror expired would never see its terminal event.
	if turn.Status.Terminal() {
		ok, err := s.mirror.Exists(ctx, turnID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: events of turn %d have expired", ErrTurnNotFound, turnID)
		}
	}
	return s.mirror.Tail(ctx, turnID, lastID, fn, keepalive)
}

func toHistory(msgs []ChatMessage) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: toLLMRole(m.Role), Content: m.Content}
	}
	return out
}

func toLLMRole(r transcript.Role) string {
	if r == transcript.RoleAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

func titleFrom(msgs []ChatMessage) string {
	for _, m := range msgs {
		if m.Role != transcript.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if runes := []rune(title); len(runes) > maxTitleRunes {
			title = string(runes[:maxTitleRunes]) + "…"
		}
		return title
	}
	return ""
}
