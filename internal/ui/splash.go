package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const splashDuration = 2 * time.Second

type splashDoneMsg struct{}

type SplashModel struct {
	env          *Env
	spinner      spinner.Model
	windowWidth  int
	windowHeight int
}

// NewSplashModel is the first screen. It moves on to the menu when a session
// was restored, otherwise to login.
func NewSplashModel(env *Env) SplashModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	return SplashModel{env: env, spinner: s}
}

func (m SplashModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.Tick(splashDuration, func(time.Time) tea.Msg {
		return splashDoneMsg{}
	}))
}

func (m SplashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.next()

	case splashDoneMsg:
		return m.next()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SplashModel) next() (tea.Model, tea.Cmd) {
	if m.env.signedIn() {
		return switchTo(NewMenuModel(m.env), m.windowWidth, m.windowHeight)
	}
	return switchTo(NewLoginModel(m.env), m.windowWidth, m.windowHeight)
}

func (m SplashModel) View() string {
	logo := logoStyle.Render("Pleść")
	body := lipgloss.JoinVertical(lipgloss.Center,
		logo,
		"",
		fmt.Sprintf("%s %s", m.spinner.View(), helpStyle.Render("Rozmawiaj po polsku")),
	)
	if m.windowWidth == 0 {
		return "\n" + body + "\n"
	}
	return lipgloss.Place(m.windowWidth, m.windowHeight, lipgloss.Center, lipgloss.Center, body)
}
