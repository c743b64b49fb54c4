package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/saravenpi/plesc/internal/session"
)

// Operation names one backend call.
type Operation int

const (
	OpListChats Operation = iota
	OpGetChat
	OpSendMessage
	OpResetHistory
	OpLoginGoogle
)

func (o Operation) String() string {
	switch o {
	case OpListChats:
		return "list_chats"
	case OpGetChat:
		return "get_chat"
	case OpSendMessage:
		return "send_message"
	case OpResetHistory:
		return "reset_history"
	case OpLoginGoogle:
		return "login_google"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Endpoint is a logical operation plus its parameters. Build turns it into a
// concrete request for a session.
type Endpoint struct {
	Op          Operation
	ChatID      string
	Message     string
	AccessToken string
}

func ListChats() Endpoint {
	return Endpoint{Op: OpListChats}
}

func GetChat(chatID string) Endpoint {
	return Endpoint{Op: OpGetChat, ChatID: chatID}
}

func SendMessage(chatID, message string) Endpoint {
	return Endpoint{Op: OpSendMessage, ChatID: chatID, Message: message}
}

func ResetHistory(chatID string) Endpoint {
	return Endpoint{Op: OpResetHistory, ChatID: chatID}
}

func LoginGoogle(accessToken string) Endpoint {
	return Endpoint{Op: OpLoginGoogle, AccessToken: accessToken}
}

func (e Endpoint) Method() string {
	switch e.Op {
	case OpSendMessage, OpLoginGoogle:
		return http.MethodPost
	case OpResetHistory:
		return http.MethodDelete
	}
	return http.MethodGet
}

// Path is relative to the backend root. The chat id is escaped but not
// validated: an empty id yields "/chat/".
func (e Endpoint) Path() string {
	id := url.PathEscape(e.ChatID)
	switch e.Op {
	case OpGetChat:
		return "/chat/" + id
	case OpSendMessage:
		return "/chat/" + id + "/message"
	case OpResetHistory:
		return "/chat/" + id + "/messages"
	case OpLoginGoogle:
		return "/auth/login/google"
	}
	return "/chat/"
}

// Authenticated reports whether the call carries the session's bearer token.
func (e Endpoint) Authenticated() bool {
	return e.Op != OpLoginGoogle
}

func (e Endpoint) body() []byte {
	var payload map[string]string
	switch e.Op {
	case OpSendMessage:
		payload = map[string]string{"message": e.Message}
	case OpLoginGoogle:
		payload = map[string]string{"access_token": e.AccessToken}
	default:
		return nil
	}
	// Marshalling a map[string]string cannot fail.
	data, _ := json.Marshal(payload)
	return data
}

// Request is a fully resolved outbound call.
type Request struct {
	Op     Operation
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Build resolves the endpoint against sess. It never fails; every input is
// passed through as-is.
func (e Endpoint) Build(sess session.Session) Request {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if e.Authenticated() && sess.Token != "" {
		header.Set("Authorization", "Bearer "+sess.Token)
	}

	body := e.body()
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	return Request{
		Op:     e.Op,
		Method: e.Method(),
		URL:    strings.TrimRight(sess.BaseURL, "/") + e.Path(),
		Header: header,
		Body:   body,
	}
}

// HTTPRequest converts r into an *http.Request bound to ctx.
func (r Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	return req, nil
}
