package model

import (
	"encoding/json"
	"slices"
	"sort"
	"time"
)

// OrderContext links a message to the order it is about, when the
// marketplace provides one.
type OrderContext struct {
	SKU         string
	OrderNumber string
}

// Message is one entry in a conversation's history.
type Message struct {
	ID          string
	Text        string
	Timestamp   time.Time
	AuthorID    string
	Role        Role
	Status      DeliveryStatus
	IsRead      bool
	IsImage     bool
	IsOwn       bool
	Context     *OrderContext
	Raw         json.RawMessage // marketplace payload, passed through untouched
	DisplayTime string          // "Today, 15:04" at fetch time
}

// Conversation is a chat thread with one buyer on one seller account.
type Conversation struct {
	ID          ConversationID
	Name        string
	Marketplace Marketplace
	AccountID   int
	Status      ChatStatus
	RawStatus   string
	ChatType    string

	LastMessage  string    // truncated preview
	LastActivity time.Time // raw timestamp; the sort key
	TimeLabel    string    // relative label at fetch time
	UnreadCount  int

	// Messages stay sorted ascending by Timestamp.
	Messages        []Message
	HistoryLoaded   bool
	HasMoreHistory  bool
	OldestMessageID string

	Extra json.RawMessage // marketplace-specific fields (e.g. wb_data)
}

// Clone returns a deep copy so snapshots never alias store-owned slices.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = slices.Clone(c.Messages)
	out.Extra = slices.Clone(c.Extra)
	for i := range out.Messages {
		if ctx := out.Messages[i].Context; ctx != nil {
			cp := *ctx
			out.Messages[i].Context = &cp
		}
		out.Messages[i].Raw = slices.Clone(out.Messages[i].Raw)
	}
	return out
}

// SortMessages orders messages ascending by timestamp. Equal timestamps keep
// their input order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// MergeMessages combines two histories, dropping duplicate ids (the later
// copy wins), and returns the result sorted ascending.
func MergeMessages(existing, incoming []Message) []Message {
	idx := make(map[string]int, len(existing)+len(incoming))
	out := make([]Message, 0, len(existing)+len(incoming))
	for _, set := range [][]Message{existing, incoming} {
		for _, m := range set {
			if m.ID != "" {
				if i, ok := idx[m.ID]; ok {
					out[i] = m
					continue
				}
				idx[m.ID] = len(out)
			}
			out = append(out, m)
		}
	}
	SortMessages(out)
	return out
}

// ListPage is one page of a marketplace's conversation list.
type ListPage struct {
	Conversations []Conversation
	TotalCount    int
	TotalUnread   int
	HasMore       bool
}

// HistoryPage is one page of a conversation's history, sorted ascending.
type HistoryPage struct {
	Messages   []Message
	HasMore    bool
	TotalCount int
}

// SendResult is the hub's answer to a send. MessageID is empty when the
// marketplace did not assign one.
type SendResult struct {
	Success   bool
	MessageID string
}

// Cursor is a pagination position for a list query or a history.
type Cursor struct {
	Offset  int
	Limit   int
	HasMore bool
}

// Next returns the cursor for the page after c.
func (c Cursor) Next() Cursor {
	return Cursor{Offset: c.Offset + c.Limit, Limit: c.Limit}
}
