// Package api talks to the Pleść backend: it builds requests from logical
// operations, sends them, and decodes the typed responses.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/saravenpi/plesc/internal/metrics"
	"github.com/saravenpi/plesc/internal/models"
	"github.com/saravenpi/plesc/internal/session"
)

const DefaultTimeout = 30 * time.Second

// Client is safe for concurrent use. It holds no credentials; each call takes
// the session to authenticate with.
type Client struct {
	HTTPClient *http.Client
	logger     zerolog.Logger
}

// NewClient returns a client with the given request timeout. A non-positive
// timeout uses DefaultTimeout.
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// ListChats fetches every conversation of the signed-in user. One malformed
// conversation fails the whole list.
func (c *Client) ListChats(ctx context.Context, sess session.Session) ([]models.Conversation, error) {
	return fetch[[]models.Conversation](ctx, c, sess, ListChats())
}

// GetChat fetches one conversation with its full message history.
func (c *Client) GetChat(ctx context.Context, sess session.Session, chatID string) (models.Conversation, error) {
	return fetch[models.Conversation](ctx, c, sess, GetChat(chatID))
}

// SendMessage posts message to the conversation and returns the assistant's
// reply.
func (c *Client) SendMessage(ctx context.Context, sess session.Session, chatID, message string) (models.ChatResponse, error) {
	return fetch[models.ChatResponse](ctx, c, sess, SendMessage(chatID, message))
}

// ResetHistory asks the backend to drop the conversation's messages. The
// response body is ignored.
func (c *Client) ResetHistory(ctx context.Context, sess session.Session, chatID string) error {
	_, err := c.do(ctx, sess, ResetHistory(chatID))
	if err == nil {
		record(OpResetHistory, nil)
	}
	return err
}

// LoginResult is what the google login exchange produced. The body is opaque;
// Token is set only if it happens to carry an access_token field.
type LoginResult struct {
	Raw   []byte
	Token string
}

// LoginGoogle exchanges a Google ID token for a backend session.
func (c *Client) LoginGoogle(ctx context.Context, sess session.Session, googleToken string) (LoginResult, error) {
	body, err := c.do(ctx, sess, LoginGoogle(googleToken))
	if err != nil {
		return LoginResult{}, err
	}
	record(OpLoginGoogle, nil)

	c.logger.Info().
		Str("op", OpLoginGoogle.String()).
		Str("response", string(body)).
		Msg("auth login completed")

	result := LoginResult{Raw: body}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if json.Unmarshal(body, &payload) == nil {
		result.Token = payload.AccessToken
	}
	return result, nil
}

func fetch[T any](ctx context.Context, c *Client, sess session.Session, ep Endpoint) (T, error) {
	body, err := c.do(ctx, sess, ep)
	if err != nil {
		var zero T
		return zero, err
	}

	value, err := Decode[T](ep.Op, body)
	if err != nil {
		record(ep.Op, err)
		c.logger.Error().
			Err(err).
			Str("op", ep.Op.String()).
			Str("chat_id", ep.ChatID).
			Str("raw", string(body)).
			Msg("failed to decode response")
		return value, err
	}

	record(ep.Op, nil)
	return value, nil
}

func record(op Operation, err error) {
	metrics.APIRequestsTotal.WithLabelValues(op.String(), outcome(err)).Inc()
}

// do sends the request and returns the body of a 2xx response. Failures are
// logged and counted here; the caller records success once it has decoded.
func (c *Client) do(ctx context.Context, sess session.Session, ep Endpoint) ([]byte, error) {
	req := ep.Build(sess)
	start := time.Now()

	log := c.logger.With().
		Str("op", ep.Op.String()).
		Str("method", req.Method).
		Str("url", req.URL).
		Logger()

	fail := func(apiErr *Error, raw []byte) ([]byte, error) {
		record(ep.Op, apiErr)
		event := log.Error().Err(apiErr).Dur("latency", time.Since(start))
		if apiErr.StatusCode != 0 {
			event = event.Int("status", apiErr.StatusCode)
		}
		if raw != nil {
			event = event.Str("raw", string(raw))
		}
		event.Msg("error fetching data")
		return nil, apiErr
	}

	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return fail(&Error{Op: ep.Op, Kind: ErrTransport, Err: err}, nil)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	metrics.APIRequestDuration.WithLabelValues(ep.Op.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(&Error{Op: ep.Op, Kind: ErrTransport, Err: err}, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(&Error{Op: ep.Op, Kind: ErrTransport, Err: err}, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(&Error{Op: ep.Op, Kind: ErrStatus, StatusCode: resp.StatusCode}, body)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("request completed")

	return body, nil
}
