package chat

import (
	"context"

	"github.com/saravenpi/plesc/internal/models"
)

type Kind int

const (
	KindLoad Kind = iota
	KindSend
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindSend:
		return "send"
	case KindReset:
		return "reset"
	}
	return "unknown"
}

// Ticket identifies one outbound request. ThreadID and RequestID correlate the
// eventual completion with the thread that asked for it.
type Ticket struct {
	ThreadID  string
	RequestID string
	Kind      Kind
	ChatID    string

	// Set for sends.
	Text    string
	EntryID string
}

// Completion is the result of executing a ticket.
type Completion struct {
	Ticket       Ticket
	Conversation models.Conversation
	Response     models.ChatResponse
	Err          error
}

// Backend is the network side of a thread.
type Backend interface {
	GetChat(ctx context.Context, chatID string) (models.Conversation, error)
	SendMessage(ctx context.Context, chatID, message string) (models.ChatResponse, error)
	ResetHistory(ctx context.Context, chatID string) error
}

// Execute performs the request a ticket describes. It blocks; run it off the
// goroutine that owns the thread.
func Execute(ctx context.Context, b Backend, tk Ticket) Completion {
	c := Completion{Ticket: tk}
	switch tk.Kind {
	case KindLoad:
		c.Conversation, c.Err = b.GetChat(ctx, tk.ChatID)
	case KindSend:
		c.Response, c.Err = b.SendMessage(ctx, tk.ChatID, tk.Text)
	case KindReset:
		c.Err = b.ResetHistory(ctx, tk.ChatID)
	}
	return c
}

// Queue runs tickets concurrently and hands their completions back one at a
// time, in the order they finish.
type Queue struct {
	backend     Backend
	completions chan Completion
}

func NewQueue(b Backend) *Queue {
	return &Queue{backend: b, completions: make(chan Completion, 16)}
}

// Dispatch starts tk in the background and returns immediately.
func (q *Queue) Dispatch(ctx context.Context, tk Ticket) {
	go func() {
		c := Execute(ctx, q.backend, tk)
		select {
		case q.completions <- c:
		case <-ctx.Done():
		}
	}()
}

// Next waits for the next completion.
func (q *Queue) Next(ctx context.Context) (Completion, error) {
	select {
	case c := <-q.completions:
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}
