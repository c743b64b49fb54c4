// Package apitest runs an in-memory Pleść backend for tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saravenpi/plesc/internal/models"
)

// Recorded is one request the backend received.
type Recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Backend serves the chat and auth endpoints from memory. Overrides let a test
// force a status code or a raw body for a given path.
type Backend struct {
	Server *httptest.Server

	// Reply produces the assistant's answer. Defaults to echoing the message.
	Reply func(chatID, message string) string
	// LoginResponse is returned verbatim by /auth/login/google.
	LoginResponse string

	mu       sync.Mutex
	chats    map[string]models.Conversation
	order    []string
	status   map[string]int
	raw      map[string]string
	hold     map[string]chan struct{}
	requests []Recorded
}

func New() *Backend {
	b := &Backend{
		Reply: func(_, message string) string {
			return "echo: " + message
		},
		LoginResponse: `{"status":"ok"}`,
		chats:         make(map[string]models.Conversation),
		status:        make(map[string]int),
		raw:           make(map[string]string),
		hold:          make(map[string]chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Get("/chat/", b.listChats)
	r.Get("/chat/{id}", b.getChat)
	r.Post("/chat/{id}/message", b.sendMessage)
	r.Delete("/chat/{id}/messages", b.resetHistory)
	r.Post("/auth/login/google", b.login)

	b.Server = httptest.NewServer(r)
	return b
}

func (b *Backend) URL() string {
	return b.Server.URL
}

func (b *Backend) Close() {
	b.mu.Lock()
	for path, ch := range b.hold {
		close(ch)
		delete(b.hold, path)
	}
	b.mu.Unlock()
	b.Server.Close()
}

// AddChat stores c, keeping insertion order for the list endpoint.
func (b *Backend) AddChat(c models.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chats[c.ID]; !ok {
		b.order = append(b.order, c.ID)
	}
	b.chats[c.ID] = c
}

// Chat returns the backend's copy of a conversation.
func (b *Backend) Chat(id string) (models.Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[id]
	return c, ok
}

// SetStatus makes every request to path answer with code and an error body.
// A code of 0 removes the override.
func (b *Backend) SetStatus(path string, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code == 0 {
		delete(b.status, path)
		return
	}
	b.status[path] = code
}

// SetRaw makes every request to path answer 200 with body.
func (b *Backend) SetRaw(path, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw[path] = body
}

// Hold blocks requests to path until the returned function is called.
func (b *Backend) Hold(path string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.hold[path] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.hold[path] == ch {
				delete(b.hold, path)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Requests returns a copy of everything received so far.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		b.mu.Lock()
		b.requests = append(b.requests, Recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		code, forced := b.status[r.URL.Path]
		raw, hasRaw := b.raw[r.URL.Path]
		hold := b.hold[r.URL.Path]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if forced {
			writeJSON(w, code, map[string]string{"detail": http.StatusText(code)})
			return
		}
		if hasRaw {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, raw)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authorized(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return false
	}
	return true
}

func (b *Backend) listChats(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	b.mu.Lock()
	chats := make([]models.Conversation, 0, len(b.order))
	for _, id := range b.order {
		chats = append(chats, b.chats[id])
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, chats)
}

func (b *Backend) getChat(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	c, ok := b.Chat(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) sendMessage(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	c, ok := b.chats[id]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	reply := b.Reply(id, req.Message)
	now := time.Now().UTC()
	c.Messages = append(c.Messages,
		models.Message{Content: req.Message, Role: models.RoleUser, Timestamp: now},
		models.Message{Content: reply, Role: models.RoleAssistant, Timestamp: now},
	)
	b.chats[id] = c
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: reply})
}

func (b *Backend) resetHistory(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	c, ok := b.chats[id]
	if ok {
		c.Messages = nil
		b.chats[id] = c
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, b.LoginResponse)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Conversation builds a conversation fixture with a bot and the given
// alternating user/assistant messages.
func Conversation(id string, contents ...string) models.Conversation {
	base := time.Date(2025, 4, 5, 12, 0, 0, 0, time.UTC)
	c := models.Conversation{
		ID:     id,
		UserID: "user-1",
		BotID:  "bot-1",
		Bot: models.Bot{
			ID:          "bot-1",
			Name:        "Pleść",
			Description: "Polish conversation partner",
			ImageURL:    "https://plesc.a3p.re/static/bot.png",
			Prompt:      "Rozmawiaj po polsku.",
			CreatedAt:   base.Add(-24 * time.Hour),
			CreatedBy:   "admin",
		},
	}
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		c.Messages = append(c.Messages, models.Message{
			Content:   content,
			Role:      role,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return c
}
