package ui

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/apitest"
	"github.com/saravenpi/plesc/internal/chat"
	"github.com/saravenpi/plesc/internal/config"
	"github.com/saravenpi/plesc/internal/models"
	"github.com/saravenpi/plesc/internal/session"
	"github.com/saravenpi/plesc/internal/settings"
)

var testNow = time.Date(2025, 4, 5, 18, 0, 0, 0, time.UTC)

func setupEnv(t *testing.T) (*Env, *apitest.Backend) {
	t.Helper()
	backend := apitest.New()
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.APIURL = backend.URL()

	store, err := session.OpenStore(context.Background(), filepath.Join(dir, "session.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &Env{
		Config:   cfg,
		Client:   api.NewClient(5*time.Second, zerolog.Nop()),
		Sessions: store,
		Settings: settings.NewStore(filepath.Join(dir, "settings.yml")),
		Logger:   zerolog.Nop(),
		Session:  session.Session{BaseURL: backend.URL(), Token: "tok"},
		Now:      func() time.Time { return testNow },
	}
	return env, backend
}

// drain runs cmd and any batched commands it expands to, returning the
// resulting messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// feed delivers the messages of interest produced by cmd back into model.
func feed(t *testing.T, model tea.Model, cmd tea.Cmd, keep func(tea.Msg) bool) (tea.Model, tea.Cmd) {
	t.Helper()
	var next tea.Cmd
	for _, msg := range drain(cmd) {
		if keep(msg) {
			model, next = model.Update(msg)
		}
	}
	return model, next
}

func isCompletion(msg tea.Msg) bool {
	_, ok := msg.(completionMsg)
	return ok
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func openChat(t *testing.T, env *Env, backend *apitest.Backend, contents ...string) MessagesModel {
	t.Helper()
	conv := apitest.Conversation("abc", contents...)
	backend.AddChat(conv)

	m := NewMessagesModel(env, conv)
	model, _ := feed(t, m, m.loadCmd(), isCompletion)
	m = model.(MessagesModel)
	if m.thread.State() != chat.StateLoaded {
		t.Fatalf("expected loaded thread, got %s (%v)", m.thread.State(), m.thread.Err())
	}
	return m
}

func compose(t *testing.T, m MessagesModel, text string) MessagesModel {
	t.Helper()
	model, _ := m.Update(key("n"))
	m = model.(MessagesModel)
	if !m.composing {
		t.Fatal("expected compose mode")
	}
	m.textarea.SetValue(text)
	return m
}

func TestSplashRoutesOnSession(t *testing.T) {
	env, _ := setupEnv(t)

	model, _ := NewSplashModel(env).Update(splashDoneMsg{})
	if _, ok := model.(MenuModel); !ok {
		t.Fatalf("expected menu with a session, got %T", model)
	}

	env.Session = session.Session{BaseURL: env.Session.BaseURL}
	model, _ = NewSplashModel(env).Update(splashDoneMsg{})
	if _, ok := model.(LoginModel); !ok {
		t.Fatalf("expected login without a session, got %T", model)
	}

	env.Session = session.Session{BaseURL: env.Session.BaseURL, Token: "t", ExpiresAt: testNow.Add(-time.Minute)}
	model, _ = NewSplashModel(env).Update(splashDoneMsg{})
	if _, ok := model.(LoginModel); !ok {
		t.Fatalf("expected login with an expired session, got %T", model)
	}
}

func TestLoginStoresSession(t *testing.T) {
	env, backend := setupEnv(t)
	env.Session = session.Session{}
	backend.LoginResponse = `{"access_token": "backend-jwt"}`

	m := NewLoginModel(env)
	m.tokenInput.SetValue("google-id-token")
	model, cmd := m.Update(key("enter"))
	if !model.(LoginModel).signingIn {
		t.Fatal("expected signing-in state")
	}

	model, _ = feed(t, model, cmd, func(msg tea.Msg) bool {
		_, ok := msg.(loginDoneMsg)
		return ok
	})
	if _, ok := model.(MenuModel); !ok {
		t.Fatalf("expected menu after login, got %T", model)
	}
	if env.Session.Token != "backend-jwt" || env.Session.BaseURL != backend.URL() {
		t.Fatalf("unexpected session %+v", env.Session)
	}

	stored, err := env.Sessions.Load(context.Background(), backend.URL())
	if err != nil || stored.Token != "backend-jwt" {
		t.Fatalf("expected persisted session, got %+v %v", stored, err)
	}
}

func TestLoginWithoutTokenFails(t *testing.T) {
	env, backend := setupEnv(t)
	backend.LoginResponse = `{"status": "ok"}`

	m := NewLoginModel(env)
	m.tokenInput.SetValue("google-id-token")
	model, cmd := m.Update(key("enter"))
	model, _ = feed(t, model, cmd, func(msg tea.Msg) bool {
		_, ok := msg.(loginDoneMsg)
		return ok
	})

	lm, ok := model.(LoginModel)
	if !ok || lm.err != errNoToken {
		t.Fatalf("expected login error, got %T %+v", model, lm.err)
	}
}

func TestConversationsList(t *testing.T) {
	env, backend := setupEnv(t)
	backend.AddChat(apitest.Conversation("a", "cześć", "hej"))
	backend.AddChat(apitest.Conversation("b"))

	m := NewConversationsModel(env)
	model, _ := m.Update(m.fetchChatsCmd()())
	m = model.(ConversationsModel)

	if m.loading || m.err != nil || len(m.list.Items()) != 2 {
		t.Fatalf("unexpected list state: loading=%v err=%v items=%d", m.loading, m.err, len(m.list.Items()))
	}
	empty := m.list.Items()[1].(chatItem)
	if empty.Description() != "No messages yet" {
		t.Fatalf("unexpected description %q", empty.Description())
	}

	model, _ = m.Update(key("enter"))
	if mm, ok := model.(MessagesModel); !ok || mm.thread.ChatID() != "a" {
		t.Fatalf("expected chat screen for a, got %T", model)
	}
}

func TestConversationsUnauthorized(t *testing.T) {
	env, backend := setupEnv(t)
	backend.SetStatus("/chat/", http.StatusUnauthorized)

	m := NewConversationsModel(env)
	model, _ := m.Update(m.fetchChatsCmd()())
	m = model.(ConversationsModel)
	if !m.unauthorized() {
		t.Fatalf("expected unauthorized, got %v", m.err)
	}

	model, _ = m.Update(key("l"))
	if _, ok := model.(LoginModel); !ok {
		t.Fatalf("expected login screen, got %T", model)
	}
}

func TestChatSendAppendsReply(t *testing.T) {
	env, backend := setupEnv(t)
	backend.Reply = func(_, message string) string { return "  hi there\n" }
	m := openChat(t, env, backend, "cześć", "hej")

	m = compose(t, m, "  hello  ")
	model, cmd := m.Update(key("enter"))
	m = model.(MessagesModel)

	msgs := m.thread.Messages()
	if len(msgs) != 3 || msgs[2].Content != "hello" || msgs[2].Role != models.RoleUser {
		t.Fatalf("expected optimistic user message, got %+v", msgs)
	}
	if m.textarea.Value() != "" {
		t.Fatal("expected input cleared after send")
	}

	model, _ = feed(t, m, cmd, isCompletion)
	m = model.(MessagesModel)
	msgs = m.thread.Messages()
	if len(msgs) != 4 || msgs[3].Content != "hi there" || msgs[3].Role != models.RoleAssistant {
		t.Fatalf("expected one trimmed reply, got %+v", msgs)
	}
	if m.thread.State() != chat.StateLoaded {
		t.Fatalf("expected loaded, got %s", m.thread.State())
	}
}

func TestChatBlankInputDoesNothing(t *testing.T) {
	env, backend := setupEnv(t)
	m := openChat(t, env, backend, "cześć")
	before := len(backend.Requests())

	m = compose(t, m, "   \n ")
	model, cmd := m.Update(key("enter"))
	m = model.(MessagesModel)

	if cmd != nil {
		t.Fatal("expected no command for blank input")
	}
	if len(m.thread.Messages()) != 1 || len(backend.Requests()) != before {
		t.Fatal("blank input changed the conversation")
	}
}

func TestChatFailedSendCanBeRetried(t *testing.T) {
	env, backend := setupEnv(t)
	m := openChat(t, env, backend)
	backend.SetStatus("/chat/abc/message", http.StatusBadGateway)

	m = compose(t, m, "hello")
	model, cmd := m.Update(key("enter"))
	model, _ = feed(t, model, cmd, isCompletion)
	m = model.(MessagesModel)

	entries := m.thread.Entries()
	if len(entries) != 1 || entries[0].Status != chat.EntryFailed {
		t.Fatalf("expected failed entry, got %+v", entries)
	}

	backend.SetStatus("/chat/abc/message", 0)
	model, _ = m.Update(key("esc"))
	m = model.(MessagesModel)
	model, cmd = m.Update(key("R"))
	model, _ = feed(t, model, cmd, isCompletion)
	m = model.(MessagesModel)

	msgs := m.thread.Messages()
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[1].Content != "echo: hello" {
		t.Fatalf("unexpected messages after retry: %+v", msgs)
	}
}

func TestChatRejectedSendIsNotRetried(t *testing.T) {
	env, backend := setupEnv(t)
	m := openChat(t, env, backend)
	backend.SetStatus("/chat/abc/message", http.StatusBadRequest)

	m = compose(t, m, "hello")
	model, cmd := m.Update(key("enter"))
	model, _ = feed(t, model, cmd, isCompletion)
	model, _ = model.Update(key("esc"))
	m = model.(MessagesModel)

	before := len(backend.Requests())
	model, cmd = m.Update(key("R"))
	m = model.(MessagesModel)
	if cmd != nil {
		t.Fatal("expected no request for a non-retryable failure")
	}
	if len(backend.Requests()) != before {
		t.Fatal("R reached the backend")
	}
	entries := m.thread.Entries()
	if len(entries) != 1 || entries[0].Status != chat.EntryFailed {
		t.Fatalf("expected the entry to stay failed, got %+v", entries)
	}
	if strings.Contains(m.View(), "R: retry") {
		t.Fatal("retry hint shown for a non-retryable failure")
	}
	if got := retryNote(entries[0].Err); !strings.Contains(got, "won't fix itself") {
		t.Fatalf("unexpected note %q", got)
	}
}

func TestRetryNote(t *testing.T) {
	transient := &api.Error{Op: api.OpSendMessage, Kind: api.ErrStatus, StatusCode: http.StatusBadGateway}
	if got := retryNote(transient); !strings.Contains(got, "retrying may help") {
		t.Fatalf("502: unexpected note %q", got)
	}
	missing := &api.Error{Op: api.OpGetChat, Kind: api.ErrStatus, StatusCode: http.StatusNotFound}
	if got := retryNote(missing); !strings.Contains(got, "won't fix itself") {
		t.Fatalf("404: unexpected note %q", got)
	}
}

func TestMessageBodyTrimsForDisplay(t *testing.T) {
	if got := messageBody("  \n cześć \n\n", 40); got != "cześć" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestChatResetNeedsConfirmation(t *testing.T) {
	env, backend := setupEnv(t)
	m := openChat(t, env, backend, "one", "two")

	model, _ := m.Update(key("x"))
	m = model.(MessagesModel)
	model, cmd := m.Update(key("n"))
	m = model.(MessagesModel)
	if cmd != nil || len(m.thread.Messages()) != 2 || m.confirmReset {
		t.Fatal("declined reset changed the conversation")
	}

	model, _ = m.Update(key("x"))
	model, cmd = model.Update(key("y"))
	model, _ = feed(t, model, cmd, isCompletion)
	m = model.(MessagesModel)

	if len(m.thread.Messages()) != 0 {
		t.Fatalf("expected empty conversation, got %d", len(m.thread.Messages()))
	}
	if c, _ := backend.Chat("abc"); len(c.Messages) != 0 {
		t.Fatal("expected backend history cleared")
	}
}

func TestChatIgnoresForeignCompletion(t *testing.T) {
	env, backend := setupEnv(t)
	m := openChat(t, env, backend, "one")

	other := chat.NewThread("abc")
	tk, _ := other.BeginLoad()
	model, _ := m.Update(completionMsg{completion: chat.Completion{
		Ticket:       tk,
		Conversation: apitest.Conversation("abc"),
	}})
	m = model.(MessagesModel)

	if len(m.thread.Messages()) != 1 {
		t.Fatalf("foreign completion changed the thread: %d", len(m.thread.Messages()))
	}
}

func TestChatLoadFailure(t *testing.T) {
	env, _ := setupEnv(t)
	m := NewMessagesModel(env, models.Conversation{ID: "missing"})
	model, _ := feed(t, m, m.loadCmd(), isCompletion)
	m = model.(MessagesModel)

	if m.thread.State() != chat.StateFailed || len(m.thread.Messages()) != 0 {
		t.Fatalf("expected failed empty thread, got %s", m.thread.State())
	}
	if m.loadCmd() == nil {
		t.Fatal("expected load to be retryable")
	}
}

func TestSettingsToggleAndSignOut(t *testing.T) {
	env, _ := setupEnv(t)
	if err := env.Sessions.Save(context.Background(), env.Session); err != nil {
		t.Fatal(err)
	}

	m := NewSettingsModel(env)
	if !m.prefs.NotificationsEnabled || m.prefs.Language != settings.Polish {
		t.Fatalf("unexpected defaults %+v", m.prefs)
	}

	model, cmd := m.Update(key("enter"))
	model, _ = model.Update(cmd())
	model, _ = model.Update(key("tab"))
	model, cmd = model.Update(key("enter"))
	model, _ = model.Update(cmd())

	saved, err := env.Settings.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.NotificationsEnabled || saved.Language != settings.English {
		t.Fatalf("unexpected saved settings %+v", saved)
	}

	model, _ = model.Update(key("tab"))
	model, cmd = model.Update(key("enter"))
	model, _ = model.Update(cmd())
	if _, ok := model.(LoginModel); !ok {
		t.Fatalf("expected login after sign out, got %T", model)
	}
	if env.Session.Authenticated() {
		t.Fatal("expected session cleared in memory")
	}
	if _, err := env.Sessions.Load(context.Background(), env.Session.BaseURL); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected stored session cleared, got %v", err)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{90 * time.Second, "1 min ago"},
		{15 * time.Minute, "15m ago"},
		{5 * time.Hour, "5h ago"},
		{30 * time.Hour, "yesterday"},
		{3 * 24 * time.Hour, "3d ago"},
	}
	for _, tt := range tests {
		if got := formatTimeAgo(testNow.Add(-tt.ago), testNow); got != tt.want {
			t.Errorf("formatTimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if formatTimeAgo(time.Time{}, testNow) != "unknown" {
		t.Error("expected unknown for zero time")
	}
}
