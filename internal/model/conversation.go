package model

import (
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a persisted chat message. Assistant messages keep the parts
// rebuilt from their turn's events so a reload renders tool cards and
// sources exactly as they streamed.
type Message struct {
	ID             int64             `json:"id"`
	ConversationID int64             `json:"conversation_id"`
	Role           transcript.Role   `json:"role"`
	Parts          []transcript.Part `json:"parts"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	return transcript.Message{Role: m.Role, Parts: m.Parts}.Text()
}
