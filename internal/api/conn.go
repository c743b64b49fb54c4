package api

import (
	"context"

	"github.com/saravenpi/plesc/internal/models"
	"github.com/saravenpi/plesc/internal/session"
)

// Conn binds a client to one session so callers that only know chat ids can
// use it.
type Conn struct {
	client  *Client
	session session.Session
}

func (c *Client) WithSession(sess session.Session) *Conn {
	return &Conn{client: c, session: sess}
}

func (c *Conn) ListChats(ctx context.Context) ([]models.Conversation, error) {
	return c.client.ListChats(ctx, c.session)
}

func (c *Conn) GetChat(ctx context.Context, chatID string) (models.Conversation, error) {
	return c.client.GetChat(ctx, c.session, chatID)
}

func (c *Conn) SendMessage(ctx context.Context, chatID, message string) (models.ChatResponse, error) {
	return c.client.SendMessage(ctx, c.session, chatID, message)
}

func (c *Conn) ResetHistory(ctx context.Context, chatID string) error {
	return c.client.ResetHistory(ctx, c.session, chatID)
}
