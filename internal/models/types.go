package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one utterance in a conversation. It holds no reference back to
// the conversation that owns it.
type Message struct {
	Content   string
	Role      Role
	Timestamp time.Time
}

func (m Message) IsFromUser() bool {
	return m.Role == RoleUser
}

// Bot is the assistant persona a conversation is bound to. It is a read-only
// snapshot of what the backend returned.
type Bot struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	Prompt      string
	CreatedAt   time.Time
	CreatedBy   string
}

// Conversation is a chat thread between one user and one bot. Messages are kept
// in the order the backend returned them and are never re-sorted.
type Conversation struct {
	ID       string
	UserID   string
	BotID    string
	Messages []Message
	Bot      Bot
}

// LastMessage returns the newest message, or false for an empty conversation.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// ChatResponse is the body returned by the send-message endpoint.
type ChatResponse struct {
	Response string `json:"response"`
}
