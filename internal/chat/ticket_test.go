package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/apitest"
	"github.com/saravenpi/plesc/internal/models"
	"github.com/saravenpi/plesc/internal/session"
)

func setupConn(t *testing.T) (*api.Conn, *apitest.Backend) {
	t.Helper()
	backend := apitest.New()
	t.Cleanup(backend.Close)
	client := api.NewClient(5*time.Second, zerolog.Nop())
	return client.WithSession(session.Session{BaseURL: backend.URL(), Token: "tok"}), backend
}

func TestExecuteAgainstBackend(t *testing.T) {
	conn, backend := setupConn(t)
	backend.AddChat(apitest.Conversation("abc", "cześć", "hej"))
	backend.Reply = func(_, message string) string { return " Dzień dobry! " }
	ctx := context.Background()

	th := NewThread("abc")
	tk, _ := th.BeginLoad()
	if err := th.Apply(Execute(ctx, conn, tk)); err != nil {
		t.Fatalf("apply load: %v", err)
	}
	if th.State() != StateLoaded || len(th.Messages()) != 2 {
		t.Fatalf("unexpected thread after load: %s %d", th.State(), len(th.Messages()))
	}

	tk, _ = th.Submit("dzień dobry")
	if err := th.Apply(Execute(ctx, conn, tk)); err != nil {
		t.Fatalf("apply send: %v", err)
	}
	msgs := th.Messages()
	if len(msgs) != 4 || msgs[3].Content != "Dzień dobry!" || msgs[3].Role != models.RoleAssistant {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	tk, _ = th.BeginReset()
	if err := th.Apply(Execute(ctx, conn, tk)); err != nil {
		t.Fatalf("apply reset: %v", err)
	}
	if len(th.Messages()) != 0 {
		t.Fatalf("expected empty thread after reset, got %d", len(th.Messages()))
	}
	if c, _ := backend.Chat("abc"); len(c.Messages) != 0 {
		t.Fatal("expected backend history cleared")
	}
}

func TestExecuteLoadFailure(t *testing.T) {
	conn, _ := setupConn(t)
	th := NewThread("missing")
	tk, _ := th.BeginLoad()

	c := Execute(context.Background(), conn, tk)
	if !errors.Is(c.Err, api.ErrStatus) {
		t.Fatalf("expected status error, got %v", c.Err)
	}
	if err := th.Apply(c); err != nil {
		t.Fatal(err)
	}
	if th.State() != StateFailed || len(th.Messages()) != 0 {
		t.Fatalf("expected failed empty thread, got %s %d", th.State(), len(th.Messages()))
	}
}

func TestQueueDispatchAndNext(t *testing.T) {
	conn, backend := setupConn(t)
	backend.AddChat(apitest.Conversation("chat-1"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	th := loadedThread(t)
	q := NewQueue(conn)

	release := backend.Hold("/chat/chat-1/message")
	slow, _ := th.Submit("first")
	q.Dispatch(ctx, slow)

	// Wait until the first request is parked before lifting the hold.
	deadline := time.Now().Add(2 * time.Second)
	for len(backend.Requests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first request never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	release()

	c, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := th.Apply(c); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if th.State() != StateLoaded || th.Messages()[1].Content != "echo: first" {
		t.Fatalf("unexpected thread: %s %+v", th.State(), th.Messages())
	}
}

func TestQueueNextHonoursContext(t *testing.T) {
	conn, _ := setupConn(t)
	q := NewQueue(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := q.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueueDropsOtherThreadCompletions(t *testing.T) {
	conn, backend := setupConn(t)
	backend.AddChat(apitest.Conversation("chat-1"))
	ctx := context.Background()

	previous := loadedThread(t)
	tk, _ := previous.Submit("hello")

	current := loadedThread(t)
	q := NewQueue(conn)
	q.Dispatch(ctx, tk)

	c, err := q.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := current.Apply(c); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if len(current.Messages()) != 0 {
		t.Fatal("foreign completion changed the thread")
	}
}
