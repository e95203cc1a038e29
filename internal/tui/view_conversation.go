package tui

import (
	"fmt"
	"strings"

	"marketdesk/internal/model"

	"github.com/charmbracelet/lipgloss"
)

var (
	ownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	otherStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	metaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func conversationHeader(c model.Conversation) string {
	status := c.RawStatus
	if status == "" {
		status = c.Status.String()
	}
	return headerStyle.Render(fmt.Sprintf("%s  [%s] account %d  %s", c.Name, c.Marketplace, c.AccountID, status))
}

// renderHistory lays messages out oldest first, the way they are stored.
func renderHistory(c model.Conversation, loading bool) string {
	var b strings.Builder
	if c.HasMoreHistory {
		b.WriteString(metaStyle.Render("o: load older messages"))
		b.WriteString("\n\n")
	}
	if len(c.Messages) == 0 {
		if loading {
			b.WriteString("Loading messages...")
		} else {
			b.WriteString(metaStyle.Render("No messages"))
		}
		return b.String()
	}
	for _, m := range c.Messages {
		style := otherStyle
		if m.IsOwn {
			style = ownStyle
		}
		meta := m.Role.String()
		if m.DisplayTime != "" {
			meta += " · " + m.DisplayTime
		}
		if m.IsOwn {
			meta += " · " + m.Status.String()
		}
		if m.Context != nil && m.Context.OrderNumber != "" {
			meta += " · order " + m.Context.OrderNumber
		}
		b.WriteString(style.Render(meta))
		b.WriteString("\n")
		text := m.Text
		if m.IsImage && text == "" {
			text = "[image]"
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func conversationFooter(composing bool) string {
	if composing {
		return footerStyle.Render("enter: send  esc: stop typing")
	}
	return footerStyle.Render("i: write  o: older  x: dismiss error  esc: back  q: quit")
}
