package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

const botJSON = `{
	"id": "bot-1",
	"name": "Pleść",
	"description": "Polish tutor",
	"image_url": "https://example.com/a.png",
	"prompt": "Be kind",
	"created_at": "2025-03-01T09:00:00.000000+00:00",
	"created_by": "admin"
}`

func conversationJSON(messageTimestamp string) string {
	return `{
		"id": "chat-1",
		"user_id": "user-1",
		"bot_id": "bot-1",
		"messages": [
			{"content": "cześć", "role": "user", "timestamp": "2025-04-05T12:30:01.123456+00:00"},
			{"content": "hej!", "role": "assistant", "timestamp": "` + messageTimestamp + `"}
		],
		"bot": ` + botJSON + `
	}`
}

func TestDecodeConversation(t *testing.T) {
	var c Conversation
	if err := json.Unmarshal([]byte(conversationJSON("2025-04-05T12:30:02.000000+00:00")), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.ID != "chat-1" || c.UserID != "user-1" || c.BotID != "bot-1" {
		t.Fatalf("unexpected ids: %+v", c)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.Messages))
	}
	if c.Messages[0].Role != RoleUser || c.Messages[0].Content != "cześć" {
		t.Fatalf("unexpected first message: %+v", c.Messages[0])
	}
	if c.Messages[1].Role != RoleAssistant {
		t.Fatalf("expected assistant role, got %q", c.Messages[1].Role)
	}
	if c.Bot.Name != "Pleść" || c.Bot.ImageURL != "https://example.com/a.png" {
		t.Fatalf("unexpected bot: %+v", c.Bot)
	}
	if !c.Bot.CreatedAt.Equal(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bot created_at: %v", c.Bot.CreatedAt)
	}
	last, ok := c.LastMessage()
	if !ok || last.Content != "hej!" {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestDecodeConversationMalformedMessageTimestamp(t *testing.T) {
	c := Conversation{ID: "untouched"}
	err := json.Unmarshal([]byte(conversationJSON("2025-04-05T12:30:02.00+00:00")), &c)
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
	if c.ID != "untouched" || len(c.Messages) != 0 {
		t.Fatalf("expected no partial decode, got %+v", c)
	}
}

func TestDecodeConversationMalformedBotTimestamp(t *testing.T) {
	raw := strings.Replace(conversationJSON("2025-04-05T12:30:02.000000+00:00"),
		"2025-03-01T09:00:00.000000+00:00", "2025-03-01T09:00:00.000000", 1)
	var c Conversation
	if err := json.Unmarshal([]byte(raw), &c); !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestDecodeMessageMissingField(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"content": "hi", "role": "user"}`), &m)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestDecodeMessageNullField(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"content": null, "role": "user", "timestamp": "2025-04-05T12:30:01.123456+00:00"}`), &m)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestDecodeMessageUnknownRole(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"content": "hi", "role": "system", "timestamp": "2025-04-05T12:30:01.123456+00:00"}`), &m)
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestDecodeMessageWrongType(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"content": 42, "role": "user", "timestamp": "2025-04-05T12:30:01.123456+00:00"}`), &m)
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("expected UnmarshalTypeError, got %v", err)
	}
}

func TestDecodeConversationMissingBot(t *testing.T) {
	var c Conversation
	err := json.Unmarshal([]byte(`{"id": "c", "user_id": "u", "bot_id": "b", "messages": []}`), &c)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestEncodeConversationMatchesWireFormat(t *testing.T) {
	c := Conversation{
		ID:     "chat-1",
		UserID: "user-1",
		BotID:  "bot-1",
		Bot:    Bot{ID: "bot-1", CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"messages":[]`) {
		t.Fatalf("expected empty messages array, got %s", data)
	}
	if !strings.Contains(string(data), `"created_at":"2025-03-01T09:00:00.000000+00:00"`) {
		t.Fatalf("unexpected created_at encoding: %s", data)
	}

	var back Conversation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal of encoded conversation: %v", err)
	}
}

func TestDecodeChatResponse(t *testing.T) {
	var r ChatResponse
	if err := json.Unmarshal([]byte(`{"response": "  hi there \n"}`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.Response != "  hi there \n" {
		t.Fatalf("decoder must not trim, got %q", r.Response)
	}
	if err := json.Unmarshal([]byte(`{"reply": "x"}`), &r); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}
