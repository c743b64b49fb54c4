// Package session holds the credentials every authenticated request needs and
// persists the signed-in session between runs.
package session

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session is passed explicitly to every request the client builds.
type Session struct {
	BaseURL string
	Token   string

	// Read from the token's claims when it is a JWT. The signature is not
	// checked; the backend does that.
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// New returns a session for baseURL carrying token, with claims filled in when
// the token is a JWT.
func New(baseURL, token string) Session {
	s := Session{BaseURL: baseURL, Token: token}
	if token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}

	s.Subject, _ = claims["sub"].(string)
	s.Email, _ = claims["email"].(string)
	s.Name, _ = claims["name"].(string)

	switch exp := claims["exp"].(type) {
	case float64:
		s.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	case json.Number:
		if v, err := exp.Int64(); err == nil {
			s.ExpiresAt = time.Unix(v, 0).UTC()
		}
	}

	return s
}

// Authenticated reports whether requests will carry a bearer token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Expired reports whether the token's exp claim has passed. Tokens without one
// never expire client-side.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// DisplayName picks the friendliest identity the claims offer.
func (s Session) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Email != "":
		return s.Email
	case s.Subject != "":
		return s.Subject
	}
	return "User"
}
