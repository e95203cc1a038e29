package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketdesk/internal/inbox"
	"marketdesk/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type viewState int

const (
	viewFilters       viewState = iota // filter form
	viewConversations                  // conversation list
	viewConversation                   // one conversation's history and compose box
)

// AppModel renders the inbox store. It never mutates conversation state
// itself: every change goes through a Store call in a tea.Cmd and comes back
// as a storeChangedMsg.
type AppModel struct {
	store   *inbox.Store
	snap    inbox.Snapshot
	changes <-chan struct{}
	cancel  func()
	status  string

	view viewState
	open model.ConversationID

	// Sub-models
	form      filterForm
	convList  list.Model
	history   viewport.Model
	compose   textinput.Model
	composing bool

	// Layout
	width, height int
}

func NewAppModel(store *inbox.Store) AppModel {
	changes, cancel := store.Subscribe()
	snap := store.Snapshot()

	cl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Remove esc from the list's built-in Quit binding so it doesn't exit on home
	cl.KeyMap.Quit.SetKeys("q")
	cl.Title = conversationsTitle(snap)

	ci := textinput.New()
	ci.Placeholder = "Write a message"
	ci.CharLimit = 1000

	return AppModel{
		store:    store,
		snap:     snap,
		changes:  changes,
		cancel:   cancel,
		view:     viewFilters,
		form:     newFilterForm(snap.Filter),
		convList: cl,
		history:  viewport.New(0, 0),
		compose:  ci,
	}
}

// Close stops listening to the store.
func (m *AppModel) Close() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.waitForChange()
}

// waitForChange blocks until the store reports a change. Update re-arms it
// after every storeChangedMsg.
func (m *AppModel) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listH := msg.Height - 5 // room for footer and error line
		m.convList.SetSize(msg.Width, listH)
		m.history.Width = msg.Width
		m.history.Height = msg.Height - 9 // header, compose, footer
		m.compose.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case storeChangedMsg:
		cmd := m.refresh()
		return m, tea.Batch(cmd, m.waitForChange())

	case actionResultMsg:
		m.refresh()
		if msg.err != nil {
			m.status = failureStatus(msg.action, msg.err)
			return m, nil
		}
		m.status = ""
		return m, nil

	case selectedMsg:
		m.refresh()
		if msg.err != nil {
			m.status = failureStatus("Loading messages", msg.err)
		}
		return m, nil

	case sentMsg:
		m.refresh()
		if msg.err != nil {
			// Keep the text so it can be retried.
			m.status = failureStatus("Send", msg.err)
			return m, nil
		}
		if msg.id == m.open && m.compose.Value() == msg.text {
			m.compose.Reset()
		}
		m.status = "Message sent"
		m.history.GotoBottom()
		return m, clearStatusAfter(2 * time.Second)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewFilters:
		m.form.account, cmd = m.form.account.Update(msg)
	case viewConversations:
		m.convList, cmd = m.convList.Update(msg)
	case viewConversation:
		if m.composing {
			m.compose, cmd = m.compose.Update(msg)
		} else {
			m.history, cmd = m.history.Update(msg)
		}
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	}

	switch m.view {
	case viewFilters:
		switch key {
		case "enter":
			return m.applyFilters()
		case "esc":
			if m.snap.FiltersApplied {
				m.view = viewConversations
			}
			return m, nil
		case "tab", "down":
			m.form.focus(m.form.field + 1)
			return m, nil
		case "shift+tab", "up":
			m.form.focus(m.form.field - 1)
			return m, nil
		case "left", "right":
			if m.form.field != fieldAccount {
				delta := 1
				if key == "left" {
					delta = -1
				}
				m.form.cycle(delta)
				return m, nil
			}
		}
		if m.form.field != fieldAccount {
			return m, nil
		}
		var cmd tea.Cmd
		m.form.account, cmd = m.form.account.Update(msg)
		return m, cmd

	case viewConversations:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.convList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.convList, cmd = m.convList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.openConversation()
		case "f":
			m.form.load(m.snap.Filter)
			m.form.focus(fieldMarketplace)
			m.view = viewFilters
			return m, nil
		case "m":
			if !m.snap.HasMore {
				return m, nil
			}
			m.status = "Loading more..."
			return m, m.actionCmd("Load more", m.store.LoadMoreConversations)
		case "r":
			m.status = "Refreshing..."
			return m, m.actionCmd("Refresh", m.store.Refresh)
		case "x":
			m.store.ClearError()
			return m, nil
		}
		var cmd tea.Cmd
		m.convList, cmd = m.convList.Update(msg)
		return m, cmd

	case viewConversation:
		if m.composing {
			switch key {
			case "enter":
				return m.sendComposed()
			case "esc":
				m.composing = false
				m.compose.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.compose, cmd = m.compose.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewConversations
			m.open = model.ConversationID{}
			return m, nil
		case "i", "enter":
			m.composing = true
			return m, m.compose.Focus()
		case "o":
			m.status = "Loading older messages..."
			return m, m.actionCmd("Older messages", m.store.LoadOlderMessages)
		case "x":
			m.store.ClearError()
			return m, nil
		}
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) applyFilters() (tea.Model, tea.Cmd) {
	f, err := m.form.filter()
	if err != nil {
		m.status = err.Error()
		return m, clearStatusAfter(3 * time.Second)
	}
	m.view = viewConversations
	m.convList.ResetSelected()
	m.status = "Loading..."
	return m, m.actionCmd("Apply filters", func(ctx context.Context) error {
		return m.store.ApplyFilters(ctx, f)
	})
}

func (m *AppModel) openConversation() (tea.Model, tea.Cmd) {
	selected := m.convList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	ci := selected.(convItem)
	m.open = ci.ID
	m.view = viewConversation
	m.composing = false
	m.compose.Blur()
	m.history.SetContent("")
	store := m.store
	id := ci.ID
	return m, func() tea.Msg {
		return selectedMsg{id: id, err: store.SelectConversation(context.Background(), id)}
	}
}

func (m *AppModel) sendComposed() (tea.Model, tea.Cmd) {
	c, ok := m.store.Conversation(m.open)
	if !ok {
		return m, nil
	}
	text := m.compose.Value()
	store := m.store
	m.status = "Sending..."
	return m, func() tea.Msg {
		err := store.SendMessage(context.Background(), c.ID, c.AccountID, text)
		return sentMsg{id: c.ID, text: text, err: err}
	}
}

// Commands

func (m *AppModel) actionCmd(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: action, err: fn(context.Background())}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func failureStatus(action string, err error) string {
	if model.IsAuth(err) {
		return action + " failed: session expired, run `marketdesk login`"
	}
	return fmt.Sprintf("%s failed: %v", action, err)
}

// refresh pulls a fresh snapshot into the sub-models.
func (m *AppModel) refresh() tea.Cmd {
	m.snap = m.store.Snapshot()
	cmd := m.convList.SetItems(conversationsToItems(m.snap))
	m.convList.Title = conversationsTitle(m.snap)

	if m.view == viewConversation {
		sel := m.snap.Selected
		if sel != nil && sel.ID == m.open {
			atBottom := m.history.AtBottom() || m.history.TotalLineCount() == 0
			m.history.SetContent(renderHistory(*sel, m.snap.IsLoading(sel.ID)))
			if atBottom {
				m.history.GotoBottom()
			}
		}
	}
	return cmd
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	var b strings.Builder

	switch m.view {
	case viewFilters:
		b.WriteString(m.form.View())
		b.WriteString(filterFooter())
	case viewConversations:
		b.WriteString(m.convList.View())
		b.WriteString("\n")
		b.WriteString(conversationsFooter())
	case viewConversation:
		if sel := m.snap.Selected; sel != nil && sel.ID == m.open {
			b.WriteString(conversationHeader(*sel))
			b.WriteString("\n")
		}
		b.WriteString(m.history.View())
		b.WriteString("\n\n")
		b.WriteString(m.compose.View())
		b.WriteString("\n")
		b.WriteString(conversationFooter(m.composing))
	}

	if m.snap.Err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.snap.Err.Error() + "  (x to dismiss)"))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}
