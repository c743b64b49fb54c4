package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saravenpi/plesc/internal/session"
)

var errNoToken = errors.New("login response carried no access token and PLESC_API_TOKEN is not set")

type loginDoneMsg struct {
	session session.Session
	err     error
}

type LoginModel struct {
	env          *Env
	tokenInput   textinput.Model
	spinner      spinner.Model
	signingIn    bool
	windowWidth  int
	windowHeight int
	err          error
}

// NewLoginModel asks for a Google ID token and exchanges it for a backend
// session.
func NewLoginModel(env *Env) LoginModel {
	tokenInput := textinput.New()
	tokenInput.Placeholder = "Paste your Google ID token"
	tokenInput.Focus()
	tokenInput.EchoMode = textinput.EchoPassword
	tokenInput.EchoCharacter = '•'
	tokenInput.CharLimit = 4096
	tokenInput.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	return LoginModel{
		env:        env,
		tokenInput: tokenInput,
		spinner:    s,
	}
}

func (m LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m LoginModel) loginCmd(googleToken string) tea.Cmd {
	env := m.env
	base := env.Config.BaseURL()
	fallback := env.Config.APIToken

	return func() tea.Msg {
		ctx := context.Background()
		result, err := env.Client.LoginGoogle(ctx, session.Session{BaseURL: base}, googleToken)
		if err != nil {
			return loginDoneMsg{err: err}
		}

		token := result.Token
		if token == "" {
			token = fallback
		}
		if token == "" {
			return loginDoneMsg{err: errNoToken}
		}

		sess := session.New(base, token)
		if env.Sessions != nil {
			if err := env.Sessions.Save(ctx, sess); err != nil {
				env.Logger.Warn().Err(err).Msg("failed to persist session")
			}
		}
		return loginDoneMsg{session: sess}
	}
}

func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.tokenInput.Width = msg.Width - 20
		return m, nil

	case loginDoneMsg:
		m.signingIn = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.env.Session = msg.session
		m.env.Logger.Info().Str("user", msg.session.DisplayName()).Msg("signed in")
		return switchTo(NewMenuModel(m.env), m.windowWidth, m.windowHeight)

	case spinner.TickMsg:
		if m.signingIn {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.signingIn {
				return m, nil
			}
			token := strings.TrimSpace(m.tokenInput.Value())
			if token == "" {
				m.err = nil
				return m, nil
			}
			m.signingIn = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.loginCmd(token))
		}
	}

	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

func (m LoginModel) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("5"))

	content := titleStyle.Render("Sign in to Pleść") + "\n\n"
	content += style.Render(
		"Google ID token:\n" +
			m.tokenInput.View(),
	)

	if m.signingIn {
		content += fmt.Sprintf("\n\n  %s Signing in...", m.spinner.View())
	}
	if m.err != nil {
		content += "\n\n" + errorStyle.Render("Error: "+m.err.Error())
	}

	content += "\n\n" + helpStyle.Render("enter: sign in • esc: quit")
	return content
}
