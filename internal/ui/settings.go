package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saravenpi/plesc/internal/session"
	"github.com/saravenpi/plesc/internal/settings"
)

const (
	fieldNotifications = iota
	fieldLanguage
	fieldSignOut
	fieldCount
)

type settingsSavedMsg struct {
	err error
}

type signedOutMsg struct {
	err error
}

type SettingsModel struct {
	env          *Env
	prefs        settings.Settings
	focusIndex   int
	windowWidth  int
	windowHeight int
	err          error
}

// NewSettingsModel shows the greeting and the user's preferences.
func NewSettingsModel(env *Env) SettingsModel {
	prefs, err := env.Settings.Load()
	if err != nil {
		prefs = settings.Default()
	}
	return SettingsModel{
		env:   env,
		prefs: prefs,
		err:   err,
	}
}

func (m SettingsModel) Init() tea.Cmd {
	return nil
}

func (m SettingsModel) saveCmd() tea.Cmd {
	store, prefs := m.env.Settings, m.prefs
	return func() tea.Msg {
		return settingsSavedMsg{err: store.Save(prefs)}
	}
}

func (m SettingsModel) signOutCmd() tea.Cmd {
	store, base := m.env.Sessions, m.env.Session.BaseURL
	return func() tea.Msg {
		if store == nil {
			return signedOutMsg{}
		}
		return signedOutMsg{err: store.Clear(context.Background(), base)}
	}
}

func (m SettingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case settingsSavedMsg:
		m.err = msg.err
		return m, nil

	case signedOutMsg:
		if msg.err != nil {
			m.env.Logger.Warn().Err(msg.err).Msg("failed to clear stored session")
		}
		m.env.Session = session.Session{BaseURL: m.env.Session.BaseURL}
		m.env.Logger.Info().Msg("signed out")
		return switchTo(NewLoginModel(m.env), m.windowWidth, m.windowHeight)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "esc":
			return switchTo(NewMenuModel(m.env), m.windowWidth, m.windowHeight)

		case "tab", "down", "j":
			m.focusIndex = (m.focusIndex + 1) % fieldCount
			return m, nil

		case "shift+tab", "up", "k":
			m.focusIndex = (m.focusIndex - 1 + fieldCount) % fieldCount
			return m, nil

		case "enter", " ", "space", "left", "right", "h", "l":
			switch m.focusIndex {
			case fieldNotifications:
				m.prefs.NotificationsEnabled = !m.prefs.NotificationsEnabled
				return m, m.saveCmd()
			case fieldLanguage:
				m.prefs.Language = m.prefs.NextLanguage()
				return m, m.saveCmd()
			case fieldSignOut:
				if msg.String() == "enter" {
					return m, m.signOutCmd()
				}
			}
		}
	}

	return m, nil
}

func (m SettingsModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Settings") + "\n\n")
	b.WriteString(normalStyle.Render(m.prefs.Greeting(m.env.Session.DisplayName())) + "\n\n")

	focusedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	blurredStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	renderField := func(index int, label, value string) {
		style, cursor := blurredStyle, "  "
		if m.focusIndex == index {
			style, cursor = focusedStyle, "> "
		}
		b.WriteString(style.Render(cursor+label) + "  " + value + "\n\n")
	}

	notifications := "off"
	if m.prefs.NotificationsEnabled {
		notifications = "on"
	}
	renderField(fieldNotifications, "Enable Notifications:", selectedStyle.Render(notifications))

	var langs []string
	for _, l := range settings.Languages {
		if l == m.prefs.Language {
			langs = append(langs, selectedStyle.Render("["+string(l)+"]"))
		} else {
			langs = append(langs, normalStyle.Render(" "+string(l)+" "))
		}
	}
	renderField(fieldLanguage, "App Language:", strings.Join(langs, " "))

	renderField(fieldSignOut, "Sign Out", "")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n")
	}

	b.WriteString(helpStyle.Render("tab/↑↓: navigate • enter/space: change • esc: back • q: quit"))

	return b.String()
}
