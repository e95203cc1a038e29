package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdesk/internal/hubtest"
	"marketdesk/internal/model"
)

type memSessions struct {
	creds   model.Credentials
	ok      bool
	cleared int
}

func (m *memSessions) SaveSession(_ context.Context, c model.Credentials) error {
	m.creds, m.ok = c, true
	return nil
}

func (m *memSessions) LoadSession(context.Context) (model.Credentials, bool, error) {
	return m.creds, m.ok, nil
}

func (m *memSessions) ClearSession(context.Context) error {
	m.creds, m.ok = model.Credentials{}, false
	m.cleared++
	return nil
}

func TestLoginFlow(t *testing.T) {
	srv := hubtest.New(t)
	srv.Token = hubtest.SignedToken(t, "seller", time.Now().Add(time.Hour))
	sessions := &memSessions{}
	auth := NewAuth(newClient(t, srv.BaseURL()), sessions)
	ctx := context.Background()

	require.NoError(t, auth.GenerateCode(ctx, " Seller@Example.com "))
	reqs := srv.RequestsTo(hubtest.RouteGenerate)
	require.Len(t, reqs, 1)
	assert.Equal(t, "seller@example.com", reqs[0].JSON()["user_email"])
	assert.Empty(t, reqs[0].Auth)

	creds, err := auth.ExchangeCode(ctx, "seller@example.com", srv.Code)
	require.NoError(t, err)
	assert.Equal(t, srv.Token, creds.AccessToken)
	assert.Equal(t, "Bearer", creds.TokenType)
	assert.False(t, creds.Expiry.IsZero())
	assert.True(t, sessions.ok)

	me, err := auth.Me(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, srv.Email, me["email"])

	restored, err := auth.Restore(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, restored.AccessToken)
}

func TestExchangeCodeRejected(t *testing.T) {
	srv := hubtest.New(t)
	sessions := &memSessions{}
	auth := NewAuth(newClient(t, srv.BaseURL()), sessions)

	_, err := auth.ExchangeCode(context.Background(), "seller@example.com", "000000")
	require.Error(t, err)
	assert.True(t, model.IsAuth(err))
	assert.False(t, sessions.ok)
}

func TestGenerateCodeValidatesEmail(t *testing.T) {
	srv := hubtest.New(t)
	auth := NewAuth(newClient(t, srv.BaseURL()), nil)

	err := auth.GenerateCode(context.Background(), "not-an-email")
	assert.True(t, model.IsValidation(err))
	assert.Equal(t, 0, srv.Count(hubtest.RouteGenerate))
}

func TestRestoreDropsExpiredToken(t *testing.T) {
	srv := hubtest.New(t)
	sessions := &memSessions{
		ok:    true,
		creds: model.Credentials{AccessToken: hubtest.SignedToken(t, "seller", time.Now().Add(-time.Minute))},
	}
	auth := NewAuth(newClient(t, srv.BaseURL()), sessions)

	_, err := auth.Restore(context.Background(), false)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
	assert.Equal(t, 1, sessions.cleared)
}

func TestRestoreDropsRejectedToken(t *testing.T) {
	srv := hubtest.New(t)
	sessions := &memSessions{ok: true, creds: model.Credentials{AccessToken: "revoked"}}
	auth := NewAuth(newClient(t, srv.BaseURL()), sessions)

	_, err := auth.Restore(context.Background(), true)
	assert.True(t, model.IsAuth(err))
	assert.Equal(t, 1, sessions.cleared)
}

func TestRestoreWithoutSession(t *testing.T) {
	auth := NewAuth(newClient(t, "http://127.0.0.1:1"), &memSessions{})
	_, err := auth.Restore(context.Background(), false)
	assert.ErrorIs(t, err, model.ErrMissingToken)
}
