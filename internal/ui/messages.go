package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/chat"
	"github.com/saravenpi/plesc/internal/models"
)

// completionMsg carries a finished request back to the chat screen that
// issued it.
type completionMsg struct {
	completion chat.Completion
}

type MessagesModel struct {
	env          *Env
	summary      models.Conversation
	thread       *chat.Thread
	viewport     viewport.Model
	textarea     textarea.Model
	spinner      spinner.Model
	composing    bool
	confirmReset bool
	windowWidth  int
	windowHeight int
}

// NewMessagesModel opens the chat screen for conv. The summary from the chat
// list is only used for the title until the full history arrives.
func NewMessagesModel(env *Env, conv models.Conversation) MessagesModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = "Pleść..."
	ta.CharLimit = 2000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	thread := chat.NewThread(conv.ID)
	if env.Now != nil {
		thread.SetClock(env.Now)
	}

	return MessagesModel{
		env:          env,
		summary:      conv,
		thread:       thread,
		viewport:     vp,
		textarea:     ta,
		spinner:      s,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m MessagesModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m MessagesModel) loadCmd() tea.Cmd {
	tk, ok := m.thread.BeginLoad()
	if !ok {
		return nil
	}
	return m.execute(tk)
}

// execute runs tk against the backend off the event loop.
func (m MessagesModel) execute(tk chat.Ticket) tea.Cmd {
	backend := m.env.Client.WithSession(m.env.Session)
	return func() tea.Msg {
		return completionMsg{completion: chat.Execute(context.Background(), backend, tk)}
	}
}

func (m MessagesModel) busy() bool {
	return m.thread.Busy() || m.thread.Pending() > 0
}

func (m MessagesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.resize()
		m.updateViewportContent()
		return m, nil

	case completionMsg:
		c := msg.completion
		if err := m.thread.Apply(c); err != nil {
			if errors.Is(err, chat.ErrStale) {
				m.env.Logger.Debug().
					Str("request_id", c.Ticket.RequestID).
					Str("kind", c.Ticket.Kind.String()).
					Msg("dropped stale completion")
			}
			return m, nil
		}
		if c.Err != nil {
			m.env.Logger.Warn().Err(c.Err).
				Str("chat_id", c.Ticket.ChatID).
				Str("request_id", c.Ticket.RequestID).
				Str("kind", c.Ticket.Kind.String()).
				Msg("chat request failed")
		}
		m.updateViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.confirmReset {
			m.confirmReset = false
			if msg.String() != "y" {
				return m, nil
			}
			tk, ok := m.thread.BeginReset()
			if !ok {
				return m, nil
			}
			return m, tea.Batch(m.spinner.Tick, m.execute(tk))
		}

		if msg.String() == "esc" {
			if m.composing {
				m.composing = false
				m.textarea.Blur()
				m.resize()
				return m, nil
			}
			return switchTo(NewConversationsModel(m.env), m.windowWidth, m.windowHeight)
		}

		if m.composing {
			switch msg.String() {
			case "enter", "ctrl+s":
				tk, ok := m.thread.Submit(m.textarea.Value())
				if !ok {
					return m, nil
				}
				m.textarea.Reset()
				m.updateViewportContent()
				m.viewport.GotoBottom()
				return m, tea.Batch(m.spinner.Tick, m.execute(tk))
			default:
				var cmd tea.Cmd
				m.textarea, cmd = m.textarea.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit

		case "n", "c", "i":
			if m.thread.State() == chat.StateLoaded || m.thread.State() == chat.StateAwaitingReply {
				m.composing = true
				m.resize()
				return m, m.textarea.Focus()
			}
			return m, nil

		case "r":
			cmd := m.loadCmd()
			if cmd == nil {
				return m, nil
			}
			return m, tea.Batch(m.spinner.Tick, cmd)

		case "R":
			failed, ok := m.thread.LastFailed()
			if !ok || !api.IsRetryable(failed.Err) {
				return m, nil
			}
			tk, ok := m.thread.Retry(failed.ID)
			if !ok {
				return m, nil
			}
			m.updateViewportContent()
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, m.execute(tk))

		case "x":
			if m.thread.State() == chat.StateLoaded && !m.thread.Busy() {
				m.confirmReset = true
			}
			return m, nil

		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m *MessagesModel) resize() {
	headerHeight := 6
	textareaHeight := 5
	helpHeight := 2
	availableHeight := m.windowHeight - headerHeight - helpHeight

	m.viewport.Width = m.windowWidth - 4
	if m.composing {
		m.viewport.Height = availableHeight - textareaHeight
		m.textarea.SetWidth(m.windowWidth - 4)
	} else {
		m.viewport.Height = availableHeight
	}
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
}

func (m MessagesModel) title() string {
	if conv, ok := m.thread.Conversation(); ok {
		return botName(conv)
	}
	return botName(m.summary)
}

func (m *MessagesModel) updateViewportContent() {
	var content strings.Builder
	wrapWidth := m.viewport.Width
	if wrapWidth <= 10 {
		wrapWidth = 80
	}
	bot := m.title()

	for i, entry := range m.thread.Entries() {
		if i > 0 {
			content.WriteString("\n")
		}

		message := entry.Message
		timestamp := message.Timestamp.Local().Format("15:04")
		text := messageBody(message.Content, wrapWidth-10)
		right := lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth)

		if message.IsFromUser() {
			header := messageHeaderStyle.Render(fmt.Sprintf("You • %s", timestamp))
			content.WriteString(right.Render(header) + "\n")
			content.WriteString(right.Render(messageFromUserStyle.Render(text)) + "\n")

			switch entry.Status {
			case chat.EntryPending:
				content.WriteString(right.Render(pendingStyle.Render("sending...")) + "\n")
			case chat.EntryFailed:
				note := fmt.Sprintf("not delivered: %v • %s", entry.Err, retryNote(entry.Err))
				if api.IsRetryable(entry.Err) {
					note += " • R: retry"
				}
				content.WriteString(right.Render(failedStyle.Render(wordwrap.String(note, wrapWidth-10))) + "\n")
			}
		} else {
			header := messageHeaderStyle.Render(fmt.Sprintf("%s • %s", bot, timestamp))
			content.WriteString(header + "\n")
			content.WriteString(messageFromBotStyle.Render(text) + "\n")
		}
	}

	m.viewport.SetContent(content.String())
}

// messageBody trims the content the way it is shown and wraps it to width.
func messageBody(content string, width int) string {
	return wordwrap.String(strings.TrimSpace(content), width)
}

func (m MessagesModel) View() string {
	state := m.thread.State()
	if state == chat.StateLoading && len(m.thread.Entries()) == 0 {
		return fmt.Sprintf("\n  %s Loading messages...\n", m.spinner.View())
	}

	s := titleStyle.Render(fmt.Sprintf("💬 Chat with %s", m.title())) + "\n\n"

	if err := m.thread.Err(); err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", err)) + "\n"
		s += helpStyle.Render(retryNote(err)) + "\n\n"
	}

	switch {
	case state == chat.StateFailed:
		s += normalStyle.Render("  Could not load this conversation.") + "\n"
	case len(m.thread.Entries()) == 0:
		s += normalStyle.Render("  No messages yet. Say cześć!") + "\n"
	default:
		s += m.viewport.View() + "\n"
	}

	if m.busy() {
		s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.activity())
	}

	if m.confirmReset {
		s += "\n" + errorStyle.Render("Clear the whole history of this chat? y: yes • any other key: cancel")
		return s
	}

	if m.composing {
		s += "\n" + inputStyle.Render("Message:") + "\n"
		s += m.textarea.View() + "\n"
		s += helpStyle.Render("enter/ctrl+s: send • esc: stop typing")
		return s
	}

	scrollPercent := int(m.viewport.ScrollPercent() * 100)
	helpText := fmt.Sprintf("↑↓/jk: scroll • n: write • r: refresh • x: reset history • esc: back • q: quit • %d%%", scrollPercent)
	if failed, ok := m.thread.LastFailed(); ok && api.IsRetryable(failed.Err) {
		helpText = "R: retry failed message • " + helpText
	}
	s += "\n" + helpStyle.Render(helpText)

	return s
}

func (m MessagesModel) activity() string {
	switch {
	case m.thread.State() == chat.StateLoading:
		return "Refreshing..."
	case m.thread.Busy():
		return "Resetting history..."
	}
	return fmt.Sprintf("%s is typing...", m.title())
}
