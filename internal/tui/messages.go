package tui

import "marketdesk/internal/model"

// Async message types for Bubble Tea commands.

type actionResultMsg struct {
	action string // "Apply filters", "Load more", "Refresh", "Older messages"
	err    error
}

type selectedMsg struct {
	id  model.ConversationID
	err error
}

type sentMsg struct {
	id   model.ConversationID
	text string
	err  error
}

// storeChangedMsg arrives after every inbox state change.
type storeChangedMsg struct{}

type statusMsg string
