package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/http/dto"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
)

type ChatHandler struct {
	chat service.ChatService
}

func NewChatHandler(chat service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat answers the last user message as an event stream. Request-level
// errors are returned as JSON before the stream starts.
func (h *ChatHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  dto.CodeInvalidRequest,
		})
		return
	}

	prepared, err := h.chat.Prepare(ctx, req.ToService())
	if err != nil {
		writeServiceError(c, err, "failed to prepare turn")
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(prepared.Turn.ConversationID),
		TurnID:         logger.Ptr(prepared.Turn.ID),
		Component:      "sidequest.http.chat",
	})

	stream.SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	outcome, err := h.chat.Stream(ctx, prepared, stream.NewSSEWriter(c.Writer))
	if err != nil {
		// Headers are gone; the client already saw a terminal event or a cut stream.
		_ = c.Error(err)
		slog.ErrorContext(ctx, "turn stream ended with error", "error", err)
		return
	}

	slog.DebugContext(ctx, "turn streamed",
		"status", string(outcome.Status),
		"steps", outcome.Steps)
}

// ChatAsync hands the turn to a worker and returns where to follow it.
func (h *ChatHandler) ChatAsync(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  dto.CodeInvalidRequest,
		})
		return
	}

	turn, err := h.chat.Enqueue(ctx, req.ToService())
	if err != nil {
		writeServiceError(c, err, "failed to enqueue turn")
		return
	}

	slog.InfoContext(ctx, "turn enqueued",
		"turn_id", turn.ID,
		"conversation_id", turn.ConversationID)

	c.JSON(http.StatusAccepted, dto.AsyncTurnResponse{
		ConversationID: turn.ConversationID,
		TurnID:         turn.ID,
		MessageID:      turn.MessageID,
		EventsURL:      fmt.Sprintf("/api/v1/turns/%d/events", turn.ID),
	})
}

func (h *ChatHandler) Conversation(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid conversation id", Code: dto.CodeInvalidRequest})
		return
	}

	view, err := h.chat.Conversation(ctx, conversationID)
	if err != nil {
		writeServiceError(c, err, "failed to load conversation")
		return
	}

	c.JSON(http.StatusOK, dto.ToConversationResponse(view))
}

// TurnEvents replays a mirrored turn from last_id and follows it until the
// turn ends. Frame ids are mirror entry ids, usable as the next last_id.
func (h *ChatHandler) TurnEvents(c *gin.Context) {
	ctx := c.Request.Context()

	turnID, err := strconv.ParseInt(c.Param("turn_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid turn id", Code: dto.CodeInvalidRequest})
		return
	}
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "0"
	}

	// Headers go out with the first frame so lookup failures can still be JSON.
	started := false
	begin := func() {
		if !started {
			stream.SetSSEHeaders(c.Writer)
			c.Status(http.StatusOK)
			started = true
		}
	}

	err = h.chat.TurnEvents(ctx, turnID, lastID,
		func(id string, ev stream.Event) error {
			begin()
			return stream.WriteSSE(c.Writer, id, string(ev.Type), ev)
		},
		func() error {
			begin()
			return stream.WriteSSE(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
		},
	)
	if err == nil {
		return
	}
	if !started {
		writeServiceError(c, err, "failed to replay turn")
		return
	}
	if ctx.Err() == nil {
		_ = c.Error(err)
		slog.WarnContext(ctx, "turn replay ended with error", "error", err, "turn_id", turnID)
	}
}

func writeServiceError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeInvalidRequest})
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeConversationNotFound})
	case errors.Is(err, service.ErrTurnNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeTurnNotFound})
	case errors.Is(err, service.ErrAsyncUnavailable), errors.Is(err, service.ErrReplayUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeUnavailable})
	default:
		slog.ErrorContext(c.Request.Context(), logMsg, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error", Code: dto.CodeInternal})
	}
}
