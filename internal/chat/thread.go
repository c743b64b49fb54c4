// Package chat keeps one conversation's messages consistent while loads, sends
// and resets complete in the background.
//
// A Thread is not safe for concurrent use. Network calls run elsewhere and hand
// back a Completion; completions must be applied from one goroutine (the UI
// event loop, or a Queue consumer) in the order they arrive.
package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saravenpi/plesc/internal/metrics"
	"github.com/saravenpi/plesc/internal/models"
)

type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateAwaitingReply
	// StateFailed means the first load failed; BeginLoad may be retried.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateAwaitingReply:
		return "awaiting-reply"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type EntryStatus int

const (
	// EntryConfirmed came from the backend, or is a user message the backend
	// has answered.
	EntryConfirmed EntryStatus = iota
	// EntryPending is a user message shown before its send completed.
	EntryPending
	// EntryFailed is a user message whose send failed. It stays visible and can
	// be retried.
	EntryFailed
)

// Entry is a message plus its local delivery status.
type Entry struct {
	ID        string
	Message   models.Message
	Status    EntryStatus
	RequestID string
	Err       error
}

// ErrStale is returned when a completion belongs to another thread or to a
// request this thread no longer waits for. The thread is left unchanged.
var ErrStale = errors.New("stale completion")

type Thread struct {
	id     string
	chatID string
	state  State

	conversation models.Conversation
	entries      []Entry

	loadRequest  string
	resetRequest string
	everLoaded   bool
	err          error

	now func() time.Time
}

// NewThread returns an unloaded thread for chatID.
func NewThread(chatID string) *Thread {
	return &Thread{
		id:     uuid.NewString(),
		chatID: chatID,
		state:  StateUnloaded,
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp local messages.
func (t *Thread) SetClock(now func() time.Time) {
	t.now = now
}

func (t *Thread) ID() string     { return t.id }
func (t *Thread) ChatID() string { return t.chatID }
func (t *Thread) State() State   { return t.state }

// Err is the most recent failure, cleared by the next successful completion.
func (t *Thread) Err() error { return t.err }

// Conversation returns the last loaded snapshot (bot profile, participants).
// Its Messages are not kept in sync with local appends; use Messages.
func (t *Thread) Conversation() (models.Conversation, bool) {
	return t.conversation, t.everLoaded
}

// Entries returns a copy of the visible list.
func (t *Thread) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Messages returns the visible messages in order, pending and failed included.
func (t *Thread) Messages() []models.Message {
	out := make([]models.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Message
	}
	return out
}

// Pending counts sends still waiting for a reply.
func (t *Thread) Pending() int {
	n := 0
	for _, e := range t.entries {
		if e.Status == EntryPending {
			n++
		}
	}
	return n
}

// Busy reports whether a load or reset is in flight.
func (t *Thread) Busy() bool {
	return t.state == StateLoading || t.resetRequest != ""
}

// CanSubmit reports whether Submit would accept text.
func (t *Thread) CanSubmit(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return (t.state == StateLoaded || t.state == StateAwaitingReply) && t.resetRequest == ""
}

// BeginLoad starts fetching the conversation. It is refused while a load,
// reset or send is in flight.
func (t *Thread) BeginLoad() (Ticket, bool) {
	switch t.state {
	case StateUnloaded, StateFailed, StateLoaded:
	default:
		return Ticket{}, false
	}
	if t.resetRequest != "" {
		return Ticket{}, false
	}

	tk := t.ticket(KindLoad)
	t.loadRequest = tk.RequestID
	t.state = StateLoading
	return tk, true
}

// CompleteLoad applies a finished fetch. Success replaces the visible list
// wholesale; failure leaves it as it was.
func (t *Thread) CompleteLoad(tk Ticket, conv models.Conversation, err error) error {
	if !t.owns(tk, KindLoad) || tk.RequestID != t.loadRequest {
		return t.stale(tk)
	}
	t.loadRequest = ""

	if err != nil {
		t.err = err
		if t.everLoaded {
			t.state = StateLoaded
		} else {
			t.state = StateFailed
		}
		return nil
	}

	t.conversation = conv
	t.everLoaded = true
	t.entries = make([]Entry, len(conv.Messages))
	for i, m := range conv.Messages {
		t.entries[i] = Entry{ID: uuid.NewString(), Message: m, Status: EntryConfirmed}
	}
	t.err = nil
	t.state = StateLoaded
	return nil
}

// Submit appends the user's message immediately, before any network call, and
// returns the ticket for sending it. Text that trims to empty changes nothing.
func (t *Thread) Submit(text string) (Ticket, bool) {
	if !t.CanSubmit(text) {
		return Ticket{}, false
	}
	return t.appendPending(strings.TrimSpace(text)), true
}

// Retry re-sends a failed message. The failed entry moves to the end of the
// list as a new pending entry.
func (t *Thread) Retry(entryID string) (Ticket, bool) {
	idx := t.indexOf(entryID)
	if idx < 0 || t.entries[idx].Status != EntryFailed {
		return Ticket{}, false
	}
	text := t.entries[idx].Message.Content
	if !t.CanSubmit(text) {
		return Ticket{}, false
	}

	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	return t.appendPending(text), true
}

// LastFailed returns the newest failed entry, if any.
func (t *Thread) LastFailed() (Entry, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Status == EntryFailed {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

func (t *Thread) appendPending(text string) Ticket {
	tk := t.ticket(KindSend)
	tk.Text = text
	tk.EntryID = uuid.NewString()

	t.entries = append(t.entries, Entry{
		ID: tk.EntryID,
		Message: models.Message{
			Content:   text,
			Role:      models.RoleUser,
			Timestamp: t.now(),
		},
		Status:    EntryPending,
		RequestID: tk.RequestID,
	})
	t.state = StateAwaitingReply
	metrics.OptimisticAppends.Inc()
	return tk
}

// CompleteSend applies a finished send. Success confirms the user entry and
// appends exactly one assistant message stamped with the local receipt time.
// Failure marks the user entry failed; it stays visible.
func (t *Thread) CompleteSend(tk Ticket, resp models.ChatResponse, err error) error {
	if !t.owns(tk, KindSend) {
		return t.stale(tk)
	}
	idx := t.indexOf(tk.EntryID)
	if idx < 0 || t.entries[idx].RequestID != tk.RequestID || t.entries[idx].Status != EntryPending {
		return t.stale(tk)
	}

	if err != nil {
		t.entries[idx].Status = EntryFailed
		t.entries[idx].Err = err
		t.err = err
	} else {
		t.entries[idx].Status = EntryConfirmed
		t.entries = append(t.entries, Entry{
			ID: uuid.NewString(),
			Message: models.Message{
				Content:   strings.TrimSpace(resp.Response),
				Role:      models.RoleAssistant,
				Timestamp: t.now(),
			},
			Status: EntryConfirmed,
		})
		t.err = nil
	}

	if t.Pending() == 0 {
		t.state = StateLoaded
	}
	return nil
}

// BeginReset starts clearing the conversation's history. Only allowed once
// loaded with no sends outstanding.
func (t *Thread) BeginReset() (Ticket, bool) {
	if t.state != StateLoaded || t.resetRequest != "" {
		return Ticket{}, false
	}
	tk := t.ticket(KindReset)
	t.resetRequest = tk.RequestID
	return tk, true
}

// CompleteReset empties the list on success and leaves it untouched on
// failure.
func (t *Thread) CompleteReset(tk Ticket, err error) error {
	if !t.owns(tk, KindReset) || tk.RequestID != t.resetRequest {
		return t.stale(tk)
	}
	t.resetRequest = ""

	if err != nil {
		t.err = err
		return nil
	}
	t.entries = nil
	t.err = nil
	return nil
}

// Apply dispatches a completion to the matching Complete method.
func (t *Thread) Apply(c Completion) error {
	switch c.Ticket.Kind {
	case KindLoad:
		return t.CompleteLoad(c.Ticket, c.Conversation, c.Err)
	case KindSend:
		return t.CompleteSend(c.Ticket, c.Response, c.Err)
	case KindReset:
		return t.CompleteReset(c.Ticket, c.Err)
	}
	return t.stale(c.Ticket)
}

func (t *Thread) ticket(kind Kind) Ticket {
	return Ticket{
		ThreadID:  t.id,
		RequestID: uuid.NewString(),
		Kind:      kind,
		ChatID:    t.chatID,
	}
}

func (t *Thread) owns(tk Ticket, kind Kind) bool {
	return tk.ThreadID == t.id && tk.Kind == kind
}

func (t *Thread) stale(tk Ticket) error {
	metrics.StaleCompletions.WithLabelValues(tk.Kind.String()).Inc()
	return ErrStale
}

func (t *Thread) indexOf(entryID string) int {
	if entryID == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.ID == entryID {
			return i
		}
	}
	return -1
}
