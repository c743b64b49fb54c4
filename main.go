package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/saravenpi/plesc/internal/api"
	"github.com/saravenpi/plesc/internal/chat"
	"github.com/saravenpi/plesc/internal/config"
	"github.com/saravenpi/plesc/internal/logger"
	"github.com/saravenpi/plesc/internal/metrics"
	"github.com/saravenpi/plesc/internal/models"
	"github.com/saravenpi/plesc/internal/session"
	"github.com/saravenpi/plesc/internal/settings"
	"github.com/saravenpi/plesc/internal/ui"
)

const version = "1.0.0"

// app is everything a command needs, built once from config.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	client   *api.Client
	sessions *session.Store
	session  session.Session

	closeLog func() error
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "-v", "--version":
			fmt.Printf("Pleść v%s\n", version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = run(ctx, a, os.Args[1:])
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return a.runTUI(ctx)
	}

	switch args[0] {
	case "chats":
		return a.listChats(ctx)
	case "show":
		if len(args) != 2 {
			return errors.New("usage: plesc show <chat-id>")
		}
		return a.showChat(ctx, args[1])
	case "send":
		if len(args) < 3 {
			return errors.New("usage: plesc send <chat-id> <message>")
		}
		return a.send(ctx, args[1], strings.Join(args[2:], " "))
	case "reset":
		if len(args) != 2 {
			return errors.New("usage: plesc reset <chat-id>")
		}
		return a.reset(ctx, args[1])
	case "login":
		if len(args) != 2 {
			return errors.New("usage: plesc login <google-id-token>")
		}
		return a.login(ctx, args[1])
	case "logout":
		return a.logout(ctx)
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	sessions, err := session.OpenStore(ctx, cfg.SessionDBPath())
	if err != nil {
		closeLog()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		client:   api.NewClient(cfg.RequestTimeout, log),
		sessions: sessions,
		closeLog: closeLog,
	}
	a.session = a.restoreSession(ctx)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
	}

	log.Info().
		Str("mode", string(cfg.Mode)).
		Str("base_url", cfg.BaseURL()).
		Bool("signed_in", a.session.Authenticated()).
		Msg("plesc starting")

	return a, nil
}

// restoreSession prefers the stored sign-in, then PLESC_API_TOKEN.
func (a *app) restoreSession(ctx context.Context) session.Session {
	base := a.cfg.BaseURL()
	sess, err := a.sessions.Load(ctx, base)
	if err == nil {
		return sess
	}
	if !errors.Is(err, session.ErrNoSession) {
		a.log.Warn().Err(err).Msg("failed to restore session")
	}
	return session.New(base, a.cfg.APIToken)
}

func (a *app) close() {
	if err := a.sessions.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close session store")
	}
	a.closeLog()
}

func (a *app) requireSession() error {
	if !a.session.Authenticated() {
		return errors.New("not signed in; run `plesc login <google-id-token>` or set PLESC_API_TOKEN")
	}
	if a.session.Expired(time.Now()) {
		return errors.New("session expired; run `plesc login <google-id-token>`")
	}
	return nil
}

func (a *app) runTUI(ctx context.Context) error {
	env := &ui.Env{
		Config:   a.cfg,
		Client:   a.client,
		Sessions: a.sessions,
		Settings: settings.NewStore(a.cfg.SettingsPath()),
		Logger:   a.log,
		Session:  a.session,
	}

	p := tea.NewProgram(ui.NewSplashModel(env), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func (a *app) listChats(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	chats, err := a.client.ListChats(ctx, a.session)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	for _, c := range chats {
		preview := "No messages yet"
		if last, ok := c.LastMessage(); ok {
			preview = fmt.Sprintf("%s  %s", models.FormatTimestamp(last.Timestamp), oneLine(last.Content, 60))
		}
		fmt.Printf("%s  %s  %s\n", c.ID, c.Bot.Name, preview)
	}
	return nil
}

func (a *app) showChat(ctx context.Context, chatID string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	conv, err := a.client.GetChat(ctx, a.session, chatID)
	if err != nil {
		return err
	}
	fmt.Printf("💬 Chat with %s\n\n", conv.Bot.Name)
	for _, m := range conv.Messages {
		printMessage(conv.Bot.Name, m)
	}
	return nil
}

// send loads the conversation, submits text and waits for the reply, driving a
// chat.Thread through a chat.Queue the way the TUI drives it through
// bubbletea.
func (a *app) send(ctx context.Context, chatID, text string) error {
	if err := a.requireSession(); err != nil {
		return err
	}

	thread := chat.NewThread(chatID)
	queue := chat.NewQueue(a.client.WithSession(a.session))

	tk, _ := thread.BeginLoad()
	if err := a.await(ctx, thread, queue, tk); err != nil {
		return err
	}
	if thread.State() == chat.StateFailed {
		return thread.Err()
	}

	tk, ok := thread.Submit(text)
	if !ok {
		return errors.New("message is empty")
	}
	if err := a.await(ctx, thread, queue, tk); err != nil {
		return err
	}
	if failed, ok := thread.LastFailed(); ok {
		return failed.Err
	}

	msgs := thread.Messages()
	conv, _ := thread.Conversation()
	printMessage(conv.Bot.Name, msgs[len(msgs)-1])
	return nil
}

// await dispatches tk and applies completions until the one for tk arrives.
func (a *app) await(ctx context.Context, thread *chat.Thread, queue *chat.Queue, tk chat.Ticket) error {
	queue.Dispatch(ctx, tk)
	for {
		c, err := queue.Next(ctx)
		if err != nil {
			return err
		}
		if err := thread.Apply(c); err != nil {
			a.log.Debug().Err(err).Str("request_id", c.Ticket.RequestID).Msg("dropped completion")
		}
		if c.Ticket.RequestID == tk.RequestID {
			return nil
		}
	}
}

func (a *app) reset(ctx context.Context, chatID string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.client.ResetHistory(ctx, a.session, chatID); err != nil {
		return err
	}
	fmt.Printf("History of %s cleared.\n", chatID)
	return nil
}

func (a *app) login(ctx context.Context, googleToken string) error {
	base := a.cfg.BaseURL()
	result, err := a.client.LoginGoogle(ctx, session.Session{BaseURL: base}, googleToken)
	if err != nil {
		return err
	}

	token := result.Token
	if token == "" {
		token = a.cfg.APIToken
	}
	if token == "" {
		return errors.New("login response carried no access token and PLESC_API_TOKEN is not set")
	}

	sess := session.New(base, token)
	if err := a.sessions.Save(ctx, sess); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", sess.DisplayName())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.sessions.Clear(ctx, a.cfg.BaseURL()); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func printMessage(bot string, m models.Message) {
	fmt.Println(formatMessage(bot, m))
}

// formatMessage renders one history line. Content is trimmed for display only.
func formatMessage(bot string, m models.Message) string {
	sender := bot
	if m.IsFromUser() {
		sender = "You"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("2006-01-02 15:04"), sender, strings.TrimSpace(m.Content))
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}

func printHelp() {
	help := `Pleść - Polish conversation practice in your terminal

Usage:
  plesc                         Start the terminal client
  plesc chats                   List your conversations
  plesc show <chat-id>          Print a conversation's history
  plesc send <chat-id> <text>   Send a message and print the reply
  plesc reset <chat-id>         Clear a conversation's history
  plesc login <google-id-token> Sign in with a Google ID token
  plesc logout                  Forget the stored session
  plesc version                 Show version information
  plesc help                    Show this help message

Navigation:
  ↑/↓ or j/k        Navigate lists
  Enter             Select/Open item
  ESC               Go back
  q                 Quit from current view
  ctrl+c            Force quit

Chats:
  /                 Search conversations
  r                 Refresh conversation list

Chat:
  n or i            Write a message
  enter or ctrl+s   Send message (while writing)
  r                 Refresh messages
  R                 Retry the last failed message
  x                 Reset history (asks for confirmation)
  ↑/↓ or j/k        Scroll messages

Settings:
  tab or ↑/↓        Move between options
  enter or space    Toggle notifications, switch language, sign out

Configuration:
  ~/.plesc/config.yml, a .env file, or environment variables:
  PLESC_MODE          debug or release
  PLESC_API_URL       Backend URL (overrides the mode default)
  PLESC_API_TOKEN     Bearer token used when no session is stored
  PLESC_LOG_LEVEL     debug, info, warn, error
  PLESC_LOG_FILE      Log file (default ~/.plesc/plesc.log)
  PLESC_REQUEST_TIMEOUT  Per-request timeout, e.g. 30s
  PLESC_METRICS_ADDR  Serve Prometheus metrics on this address
  PLESC_HOME          Data directory (default ~/.plesc)
`
	fmt.Print(help)
}
