package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdesk/internal/config"
	"marketdesk/internal/hubtest"
)

type harness struct {
	srv *hubtest.Server
	cfg string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{config.EnvHubURL, config.EnvLogLevel, config.EnvLogFile, config.EnvMetricsAddr, config.EnvDataDir} {
		t.Setenv(k, "")
	}
	srv := hubtest.New(t)
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("hub:\n  base_url: %s\n  rate_limit:\n    rps: 1000\n    burst: 100\nlog:\n  level: error\ndata_dir: %s\n", srv.BaseURL(), dir)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return &harness{srv: srv, cfg: cfg}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(strings.NewReader(stdin), &out, &errOut)
	cmd := a.rootCmd()
	cmd.SetArgs(append([]string{"--config", h.cfg}, args...))
	err := cmd.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.run(t, "", "login", "--email", h.srv.Email, "--code", h.srv.Code)
	require.NoError(t, err)
}

func TestLoginPromptsForCode(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "123456\n", "login", "--email", " Seller@Example.com ")
	require.NoError(t, err)
	assert.Contains(t, out, "Code: ")
	assert.Contains(t, out, "Logged in as seller@example.com")
	assert.Equal(t, 1, h.srv.Count(hubtest.RouteGenerate))
	assert.Equal(t, "seller@example.com", h.srv.RequestsTo(hubtest.RouteToken)[0].JSON()["user_email"])

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "seller@example.com"`)
}

func TestLoginWrongCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "login", "--email", h.srv.Email, "--code", "000000")
	require.Error(t, err)

	_, err = h.run(t, "", "chats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestChatsMergesMarketplaces(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	now := time.Now()
	h.srv.SetChats("OZON", hubtest.Chat{ChatID: "abc123", Text: "where is my parcel", CreatedAt: hubtest.Stamp(now.Add(-time.Hour)), UnreadCount: 1, ClientID: 3})
	h.srv.SetChats("WB", hubtest.Chat{ChatID: "1:wb", CreatedAt: hubtest.Stamp(now.Add(-time.Minute)), UnreadCount: 2, ClientID: 5})

	out, err := h.run(t, "", "chats")
	require.NoError(t, err)
	assert.Contains(t, out, "MARKETPLACE")
	wb, ozon := strings.Index(out, "1:wb"), strings.Index(out, "abc123")
	require.True(t, wb >= 0 && ozon >= 0, out)
	assert.Less(t, wb, ozon, "newest first")
	assert.Contains(t, out, "2 chats, 3 unread")

	for _, route := range []string{hubtest.RouteOzonList, hubtest.RouteWBList} {
		reqs := h.srv.RequestsTo(route)
		require.Len(t, reqs, 1, route)
		assert.Equal(t, "unread", reqs[0].Query.Get("is_read"))
		assert.Equal(t, "Bearer "+h.srv.Token, reqs[0].Auth)
	}

	out, err = h.run(t, "", "chats", "--marketplace", "WB")
	require.NoError(t, err)
	assert.NotContains(t, out, "abc123")
	assert.Equal(t, 1, h.srv.Count(hubtest.RouteOzonList))
}

func TestChatsRejectsBadFilter(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	_, err := h.run(t, "", "chats", "--account", "abc")
	require.Error(t, err)
	assert.Zero(t, h.srv.Count(hubtest.RouteOzonList))
}

func TestHistoryAndSend(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	now := time.Now()
	h.srv.SetHistory("abc123", false,
		hubtest.Message{MessageID: 2, Text: "thanks", CreatedAt: hubtest.Stamp(now.Add(-time.Minute)), AuthorRole: "seller"},
		hubtest.Message{MessageID: 1, Text: "hello", CreatedAt: hubtest.Stamp(now.Add(-time.Hour)), AuthorRole: "customer"},
	)

	out, err := h.run(t, "", "history", "abc123", "--account", "3")
	require.NoError(t, err)
	hello, thanks := strings.Index(out, "Customer: hello"), strings.Index(out, "Seller: thanks")
	require.True(t, hello >= 0 && thanks >= 0, out)
	assert.Less(t, hello, thanks, "oldest first")

	out, err = h.run(t, "", "send", "abc123", "--account", "3", "Привет", "мир")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent message 1000")

	reqs := h.srv.RequestsTo(hubtest.RouteOzonSend)
	require.Len(t, reqs, 1)
	body := reqs[0].JSON()
	assert.Equal(t, "abc123", body["chat_id"])
	assert.Equal(t, "Привет мир", body["text"])
	assert.Equal(t, float64(3), body["client_id"])
}

func TestSendRoutesWildberriesIDs(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.run(t, "", "send", "1:4019cd7d", "--account", "5", "ok")
	require.NoError(t, err)
	assert.Equal(t, 1, h.srv.Count(hubtest.RouteWBSend))
	assert.Zero(t, h.srv.Count(hubtest.RouteOzonSend))
}

func TestSendRejected(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.srv.SetSendSuccess(false)

	_, err := h.run(t, "", "send", "abc123", "--account", "3", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepted")
}

func TestHistoryRequiresAccount(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	_, err := h.run(t, "", "history", "abc123")
	require.Error(t, err)
	assert.Zero(t, h.srv.Count(hubtest.RouteOzonHistory))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestConversationID(t *testing.T) {
	tests := []struct {
		raw, mp string
		want    string
		wantErr bool
	}{
		{raw: "abc123", want: "OZON"},
		{raw: "1:uuid", want: "WB"},
		{raw: "abc123", mp: "wb", want: "WB"},
		{raw: "abc", mp: "amazon", wantErr: true},
		{raw: "  ", wantErr: true},
	}
	for _, tt := range tests {
		id, err := conversationID(tt.raw, tt.mp)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, id.Marketplace.String())
	}
}
