package dto

import (
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeConversationNotFound = "conversation_not_found"
	CodeTurnNotFound         = "turn_not_found"
	CodeUnavailable          = "unavailable"
	CodeInternal             = "internal"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required,max=32000"`
}

type ChatRequest struct {
	ConversationID *int64        `json:"conversation_id,string,omitempty"`
	Messages       []ChatMessage `json:"messages" binding:"required,min=1,max=200,dive"`
}

func (r ChatRequest) ToService() service.ChatRequest {
	msgs := make([]service.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = service.ChatMessage{Role: transcript.Role(m.Role), Content: m.Content}
	}
	return service.ChatRequest{ConversationID: r.ConversationID, Messages: msgs}
}

type AsyncTurnResponse struct {
	ConversationID int64  `json:"conversation_id,string"`
	TurnID         int64  `json:"turn_id,string"`
	MessageID      string `json:"message_id"`
	EventsURL      string `json:"events_url"`
}

type MessageResponse struct {
	ID        int64               `json:"id,string"`
	Role      transcript.Role     `json:"role"`
	Parts     []transcript.Part   `json:"parts"`
	Sources   []transcript.Source `json:"sources,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

type TurnResponse struct {
	ID         int64            `json:"id,string"`
	MessageID  string           `json:"message_id"`
	Status     model.TurnStatus `json:"status"`
	Steps      int              `json:"steps"`
	ToolCalls  int              `json:"tool_calls"`
	StopReason string           `json:"stop_reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

type ConversationResponse struct {
	ID        int64             `json:"id,string"`
	Title     string            `json:"title"`
	Messages  []MessageResponse `json:"messages"`
	Turns     []TurnResponse    `json:"turns"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func ToConversationResponse(v *service.ConversationView) *ConversationResponse {
	resp := &ConversationResponse{
		ID:        v.Conversation.ID,
		Title:     v.Conversation.Title,
		Messages:  make([]MessageResponse, 0, len(v.Messages)),
		Turns:     make([]TurnResponse, 0, len(v.Turns)),
		CreatedAt: v.Conversation.CreatedAt,
		UpdatedAt: v.Conversation.UpdatedAt,
	}
	for _, m := range v.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Parts:     m.Parts,
			Sources:   transcript.Sources(transcript.Message{Role: m.Role, Parts: m.Parts}),
			CreatedAt: m.CreatedAt,
		})
	}
	// Failure details stay server side.
	for _, t := range v.Turns {
		resp.Turns = append(resp.Turns, TurnResponse{
			ID:         t.ID,
			MessageID:  t.MessageID,
			Status:     t.Status,
			Steps:      t.Steps,
			ToolCalls:  t.ToolCalls,
			StopReason: t.StopReason,
			CreatedAt:  t.CreatedAt,
			FinishedAt: t.FinishedAt,
		})
	}
	return resp
}
