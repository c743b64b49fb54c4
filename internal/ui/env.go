// Package ui implements the plesc terminal screens on bubbletea.
//
// Every network call runs inside a tea.Cmd and reports back as a message, so
// screen state, including the chat.Thread behind the chat screen, is only
// touched from the bubbletea event loop.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/config"
	"github.com/saravenpi/plesc/internal/session"
	"github.com/saravenpi/plesc/internal/settings"
)

// Env is shared by all screens. Session changes on sign-in and sign-out.
type Env struct {
	Config   *config.Config
	Client   *api.Client
	Sessions *session.Store // nil disables persistence
	Settings *settings.Store
	Logger   zerolog.Logger
	Session  session.Session

	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// signedIn reports whether the current session can make authenticated calls.
func (e *Env) signedIn() bool {
	return e.Session.Authenticated() && !e.Session.Expired(e.now())
}

// retryNote tells the user whether repeating a failed request can help.
func retryNote(err error) string {
	if api.IsRetryable(err) {
		return "temporary problem, retrying may help"
	}
	return "this won't fix itself by retrying"
}

// switchTo hands control to next, replaying the last known window size.
func switchTo(next tea.Model, width, height int) (tea.Model, tea.Cmd) {
	var sizeCmd tea.Cmd
	if width > 0 {
		next, sizeCmd = next.Update(tea.WindowSizeMsg{Width: width, Height: height})
	}
	return next, tea.Batch(next.Init(), sizeCmd)
}
