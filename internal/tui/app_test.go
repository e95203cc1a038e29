package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketdesk/internal/aggregator"
	"marketdesk/internal/inbox"
	"marketdesk/internal/marketplace"
	"marketdesk/internal/model"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

type fakeRouter struct {
	convs     []model.Conversation
	history   []model.Message
	sendErr   error
	histCalls int
	sent      []marketplace.SendRequest
}

func (r *fakeRouter) ListAll(context.Context, model.Credentials, aggregator.ListQuery) (aggregator.ListResult, error) {
	return aggregator.ListResult{Conversations: r.convs}, nil
}

func (r *fakeRouter) List(_ context.Context, _ model.Credentials, mp model.Marketplace, _ aggregator.ListQuery) (aggregator.ListResult, error) {
	var out []model.Conversation
	for _, c := range r.convs {
		if c.Marketplace == mp {
			out = append(out, c)
		}
	}
	return aggregator.ListResult{Conversations: out}, nil
}

func (r *fakeRouter) RouteHistory(context.Context, model.Credentials, marketplace.HistoryRequest) (model.HistoryPage, error) {
	r.histCalls++
	return model.HistoryPage{Messages: r.history}, nil
}

func (r *fakeRouter) RouteSend(_ context.Context, _ model.Credentials, req marketplace.SendRequest) (model.SendResult, error) {
	r.sent = append(r.sent, req)
	if r.sendErr != nil {
		return model.SendResult{}, r.sendErr
	}
	return model.SendResult{Success: true, MessageID: "77"}, nil
}

func newTestApp(t *testing.T, r *fakeRouter) *AppModel {
	t.Helper()
	s := inbox.New(r, model.Credentials{AccessToken: "t"}, inbox.Options{
		Clock: func() time.Time { return testNow },
	})
	m := NewAppModel(s)
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return &m
}

// press delivers a key and drops whatever command it returns.
func press(m *AppModel, k tea.KeyMsg) { m.Update(k) }

// do delivers a key that starts a store call, runs the call and feeds the
// result back.
func do(t *testing.T, m *AppModel, k tea.KeyMsg) {
	t.Helper()
	_, cmd := m.Update(k)
	require.NotNil(t, cmd)
	switch msg := cmd().(type) {
	case actionResultMsg, selectedMsg, sentMsg:
		m.Update(msg)
	}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func sampleRouter() *fakeRouter {
	return &fakeRouter{
		convs: []model.Conversation{
			{ID: model.NewConversationID(model.Ozon, "abc123"), Name: "Chat OZON - abc123", Marketplace: model.Ozon, AccountID: 3, UnreadCount: 2, LastActivity: testNow.Add(-time.Hour), LastMessage: "where is my order"},
			{ID: model.NewConversationID(model.Wildberries, "1:wb"), Name: "Chat WB - Anna", Marketplace: model.Wildberries, AccountID: 4, LastActivity: testNow.Add(-2 * time.Hour)},
		},
		history: []model.Message{
			{ID: "m1", Text: "where is my order", Timestamp: testNow.Add(-time.Hour), Role: model.RoleCustomer},
		},
	}
}

func TestApplyDefaultFilterShowsList(t *testing.T) {
	m := newTestApp(t, sampleRouter())
	require.Equal(t, viewFilters, m.view)

	do(t, m, enter)
	assert.Equal(t, viewConversations, m.view)
	require.Len(t, m.convList.Items(), 2)
	first := m.convList.Items()[0].(convItem)
	assert.Equal(t, "abc123", first.ID.NativeID)
	assert.Contains(t, m.View(), "Chat OZON - abc123")
}

func TestFilterFormNarrowsMarketplace(t *testing.T) {
	m := newTestApp(t, sampleRouter())

	press(m, tea.KeyMsg{Type: tea.KeyRight}) // all -> OZON
	do(t, m, enter)

	assert.Equal(t, model.Ozon, m.snap.Filter.Marketplace)
	require.Len(t, m.convList.Items(), 1)
}

func TestFilterFormRejectsBadAccount(t *testing.T) {
	m := newTestApp(t, sampleRouter())
	press(m, tea.KeyMsg{Type: tea.KeyTab})
	press(m, runes("x"))
	press(m, enter)

	assert.Equal(t, viewFilters, m.view)
	assert.Contains(t, m.status, "account")
	assert.False(t, m.snap.FiltersApplied)
}

func TestOpenConversationAndSend(t *testing.T) {
	r := sampleRouter()
	m := newTestApp(t, r)
	do(t, m, enter)
	do(t, m, enter)

	require.Equal(t, viewConversation, m.view)
	assert.Equal(t, 1, r.histCalls)
	assert.Contains(t, m.View(), "where is my order")

	press(m, runes("i"))
	require.True(t, m.composing)
	press(m, runes("Привет"))
	do(t, m, enter)

	require.Len(t, r.sent, 1)
	assert.Equal(t, marketplace.SendRequest{ConversationID: model.NewConversationID(model.Ozon, "abc123"), AccountID: 3, Text: "Привет"}, r.sent[0])
	assert.Empty(t, m.compose.Value())
	assert.Contains(t, m.View(), "Привет")

	// Going back and reopening does not refetch.
	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	do(t, m, enter)
	assert.Equal(t, 1, r.histCalls)
}

func TestFailedSendKeepsText(t *testing.T) {
	r := sampleRouter()
	r.sendErr = errors.New("boom")
	m := newTestApp(t, r)
	do(t, m, enter)
	do(t, m, enter)
	press(m, runes("i"))
	press(m, runes("hello"))
	do(t, m, enter)

	assert.Equal(t, "hello", m.compose.Value())
	assert.Contains(t, m.status, "Send failed")
	assert.Contains(t, m.View(), "x to dismiss")

	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	press(m, runes("x"))
	m.refresh()
	assert.NotContains(t, m.View(), "x to dismiss")
}
