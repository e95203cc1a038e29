package tui

import (
	"fmt"

	"marketdesk/internal/inbox"
	"marketdesk/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// convItem wraps Conversation to customize list display.
type convItem struct {
	model.Conversation
	loading bool
}

func (c convItem) FilterValue() string { return c.Name + " " + c.LastMessage }
func (c convItem) Title() string {
	indicator := "  "
	if c.loading {
		indicator = "… "
	} else if c.UnreadCount > 0 {
		indicator = "● "
	}
	title := fmt.Sprintf("%s[%s] %s", indicator, c.Marketplace, c.Name)
	if c.UnreadCount > 0 {
		title += fmt.Sprintf(" (%d)", c.UnreadCount)
	}
	return title
}
func (c convItem) Description() string {
	if c.TimeLabel != "" {
		return c.TimeLabel + "  " + c.LastMessage
	}
	return c.LastMessage
}

var (
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func conversationsFooter() string {
	return footerStyle.Render("enter: open  f: filters  m: more  r: refresh  x: dismiss error  q: quit  ●=unread")
}

func conversationsToItems(snap inbox.Snapshot) []list.Item {
	items := make([]list.Item, len(snap.Conversations))
	for i, c := range snap.Conversations {
		items[i] = convItem{Conversation: c, loading: snap.IsLoading(c.ID)}
	}
	return items
}

// conversationsTitle summarizes the list header: filter, unread total and
// marketplaces that did not answer.
func conversationsTitle(snap inbox.Snapshot) string {
	title := fmt.Sprintf("Inbox (%d chats, %d unread)  %s", len(snap.Conversations), snap.TotalUnread, snap.Filter)
	switch {
	case snap.ListState == inbox.ListLoading:
		title += "  loading..."
	case snap.HasMore:
		title += "  m: more"
	}
	if len(snap.Unavailable) > 0 {
		title += fmt.Sprintf("  unavailable: %v", snap.Unavailable)
	}
	return title
}
