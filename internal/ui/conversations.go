package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/models"
)

type chatItem struct {
	chat models.Conversation
	now  time.Time
}

type chatsFetchedMsg struct {
	chats []models.Conversation
	err   error
}

func (i chatItem) Title() string {
	return botName(i.chat)
}

func (i chatItem) Description() string {
	last, ok := i.chat.LastMessage()
	if !ok {
		return "No messages yet"
	}
	preview := strings.Join(strings.Fields(last.Content), " ")
	if r := []rune(preview); len(r) > 50 {
		preview = string(r[:47]) + "..."
	}
	return fmt.Sprintf("%s • %s", formatTimeAgo(last.Timestamp, i.now), preview)
}

func (i chatItem) FilterValue() string {
	return botName(i.chat)
}

func botName(c models.Conversation) string {
	if c.Bot.Name == "" {
		return "Pleść"
	}
	return c.Bot.Name
}

func formatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	}
	if duration < 2*time.Minute {
		return "1 min ago"
	}
	if duration < time.Hour {
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	}
	if duration < 2*time.Hour {
		return "1h ago"
	}
	if duration < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	}
	if duration < 48*time.Hour {
		return "yesterday"
	}
	if duration < 7*24*time.Hour {
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	}
	return t.Local().Format("Jan 2")
}

type ConversationsModel struct {
	env          *Env
	chats        []models.Conversation
	list         list.Model
	loading      bool
	err          error
	spinner      spinner.Model
	windowWidth  int
	windowHeight int
}

func NewConversationsModel(env *Env) ConversationsModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("5")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("8"))

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Chats"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return ConversationsModel{
		env:          env,
		list:         l,
		loading:      true,
		spinner:      s,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m ConversationsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchChatsCmd())
}

func (m ConversationsModel) fetchChatsCmd() tea.Cmd {
	client, sess := m.env.Client, m.env.Session
	return func() tea.Msg {
		chats, err := client.ListChats(context.Background(), sess)
		return chatsFetchedMsg{chats: chats, err: err}
	}
}

func (m ConversationsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case chatsFetchedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.chats = msg.chats
		now := m.env.now()
		items := make([]list.Item, len(m.chats))
		for i, chat := range m.chats {
			items[i] = chatItem{chat: chat, now: now}
		}
		cmd := m.list.SetItems(items)
		m.list.Title = fmt.Sprintf("Chats - %d conversations", len(m.chats))
		return m, cmd

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit

		case "esc":
			if m.list.FilterState() == list.FilterApplied {
				m.list.ResetFilter()
				return m, nil
			}
			return switchTo(NewMenuModel(m.env), m.windowWidth, m.windowHeight)

		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.fetchChatsCmd())

		case "l":
			if m.unauthorized() {
				return switchTo(NewLoginModel(m.env), m.windowWidth, m.windowHeight)
			}

		case "enter":
			if len(m.chats) > 0 && !m.loading {
				if item, ok := m.list.SelectedItem().(chatItem); ok {
					return switchTo(NewMessagesModel(m.env, item.chat), m.windowWidth, m.windowHeight)
				}
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

// unauthorized reports whether the last fetch was rejected for credentials.
func (m ConversationsModel) unauthorized() bool {
	var apiErr *api.Error
	return errors.As(m.err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

func (m ConversationsModel) View() string {
	if m.loading && len(m.chats) == 0 {
		return fmt.Sprintf("\n  %s Loading chats...\n", m.spinner.View())
	}

	if m.err != nil {
		s := titleStyle.Render("Chats") + "\n\n"
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
		s += helpStyle.Render(retryNote(m.err)) + "\n\n"
		if m.unauthorized() {
			s += helpStyle.Render("Your session was rejected. l: sign in again") + "\n"
		}
		s += helpStyle.Render("r: retry • esc: back • q: quit")
		return s
	}

	if len(m.chats) == 0 {
		s := titleStyle.Render("Chats") + "\n\n"
		s += normalStyle.Render("  No conversations yet.") + "\n"
		s += "\n" + helpStyle.Render("r: refresh • esc: back • q: quit")
		return s
	}

	s := m.list.View() + "\n"
	s += helpStyle.Render("↑↓/jk: navigate • enter: open • /: search • r: refresh • esc: back • q: quit")

	return s
}
