package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketdesk/internal/model"
	"marketdesk/internal/util"
)

// SessionStore persists the one piece of state that outlives a run: the
// bearer token.
type SessionStore interface {
	SaveSession(ctx context.Context, creds model.Credentials) error
	LoadSession(ctx context.Context) (model.Credentials, bool, error)
	ClearSession(ctx context.Context) error
}

// Auth runs the hub's e-mail code login and keeps the resulting token in a
// SessionStore.
type Auth struct {
	client   *Client
	sessions SessionStore
	now      func() time.Time
}

// NewAuth returns an Auth. sessions may be nil when nothing should persist.
func NewAuth(client *Client, sessions SessionStore) *Auth {
	return &Auth{client: client, sessions: sessions, now: time.Now}
}

type codeRequest struct {
	UserEmail string `json:"user_email"`
	Code      string `json:"code,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// GenerateCode asks the hub to mail a one-time login code.
func (a *Auth) GenerateCode(ctx context.Context, email string) error {
	addr := util.NormalizeEmail(email)
	if addr == "" {
		return fmt.Errorf("email %q: %w", email, model.ErrInvalidInput)
	}
	var out map[string]any
	return a.client.postAnonymous(ctx, "auth.generate_code", "/generate_code", codeRequest{UserEmail: addr}, &out)
}

// ExchangeCode trades the mailed code for a bearer token and saves it.
func (a *Auth) ExchangeCode(ctx context.Context, email, code string) (model.Credentials, error) {
	addr := util.NormalizeEmail(email)
	if addr == "" {
		return model.Credentials{}, fmt.Errorf("email %q: %w", email, model.ErrInvalidInput)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Credentials{}, errors.New("empty authorization code")
	}
	var tok tokenResponse
	if err := a.client.postAnonymous(ctx, "auth.token", "/token", codeRequest{UserEmail: addr, Code: code}, &tok); err != nil {
		return model.Credentials{}, err
	}
	if tok.AccessToken == "" {
		return model.Credentials{}, fmt.Errorf("auth.token: hub returned no access token: %w", model.ErrUnauthorized)
	}
	creds := model.Credentials{
		AccessToken: tok.AccessToken,
		TokenType:   normalizeTokenType(tok.TokenType),
		Email:       addr,
		Expiry:      model.TokenExpiry(tok.AccessToken),
	}
	if a.sessions != nil {
		if err := a.sessions.SaveSession(ctx, creds); err != nil {
			return creds, fmt.Errorf("save session: %w", err)
		}
	}
	return creds, nil
}

// Me returns the hub's profile for the token holder.
func (a *Auth) Me(ctx context.Context, creds model.Credentials) (map[string]any, error) {
	if err := creds.Validate(a.now()); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := a.client.GetJSON(ctx, creds, "auth.me", "/me", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Restore loads the saved token. A token that has expired, or that the hub
// rejects, is removed and ErrUnauthorized is returned so the caller can
// log in again.
func (a *Auth) Restore(ctx context.Context, verify bool) (model.Credentials, error) {
	if a.sessions == nil {
		return model.Credentials{}, model.ErrMissingToken
	}
	creds, ok, err := a.sessions.LoadSession(ctx)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return model.Credentials{}, model.ErrMissingToken
	}
	if err := creds.Validate(a.now()); err != nil {
		if model.IsAuth(err) {
			_ = a.sessions.ClearSession(ctx)
		}
		return model.Credentials{}, err
	}
	if verify {
		if _, err := a.Me(ctx, creds); err != nil {
			if model.IsAuth(err) {
				_ = a.sessions.ClearSession(ctx)
			}
			return model.Credentials{}, err
		}
	}
	return creds, nil
}

// Logout forgets the saved token.
func (a *Auth) Logout(ctx context.Context) error {
	if a.sessions == nil {
		return nil
	}
	return a.sessions.ClearSession(ctx)
}

func normalizeTokenType(t string) string {
	if t == "" || strings.EqualFold(t, "bearer") {
		return "Bearer"
	}
	return t
}
