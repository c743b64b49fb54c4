package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrUnknownRole  = errors.New("unknown role")
)

// requireFields fails unless data is a JSON object carrying every key with a
// non-null value. Decoding is all-or-nothing, so this runs before any field is
// assigned.
func requireFields(data []byte, keys ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return fmt.Errorf("%w: %s", ErrMissingField, key)
		}
	}
	return nil
}

type wireMessage struct {
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	Timestamp string `json:"timestamp"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "content", "role", "timestamp"); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if !w.Role.Valid() {
		return fmt.Errorf("message: %w: %q", ErrUnknownRole, w.Role)
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("message timestamp: %w", err)
	}
	*m = Message{Content: w.Content, Role: w.Role, Timestamp: ts}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Content:   m.Content,
		Role:      m.Role,
		Timestamp: FormatTimestamp(m.Timestamp),
	})
}

type wireBot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	CreatedAt   string `json:"created_at"`
	CreatedBy   string `json:"created_by"`
}

func (b *Bot) UnmarshalJSON(data []byte) error {
	err := requireFields(data, "id", "name", "description", "image_url", "prompt", "created_at", "created_by")
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	var w wireBot
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	createdAt, err := ParseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("bot created_at: %w", err)
	}
	*b = Bot{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		ImageURL:    w.ImageURL,
		Prompt:      w.Prompt,
		CreatedAt:   createdAt,
		CreatedBy:   w.CreatedBy,
	}
	return nil
}

func (b Bot) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBot{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		ImageURL:    b.ImageURL,
		Prompt:      b.Prompt,
		CreatedAt:   FormatTimestamp(b.CreatedAt),
		CreatedBy:   b.CreatedBy,
	})
}

type wireConversation struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	BotID    string    `json:"bot_id"`
	Messages []Message `json:"messages"`
	Bot      Bot       `json:"bot"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "id", "user_id", "bot_id", "messages", "bot"); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	var w wireConversation
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("conversation %s: %w", w.ID, err)
	}
	*c = Conversation(w)
	return nil
}

func (c Conversation) MarshalJSON() ([]byte, error) {
	w := wireConversation(c)
	if w.Messages == nil {
		w.Messages = []Message{}
	}
	return json.Marshal(w)
}

func (r *ChatResponse) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "response"); err != nil {
		return fmt.Errorf("chat response: %w", err)
	}
	type plain ChatResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("chat response: %w", err)
	}
	*r = ChatResponse(p)
	return nil
}
