package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Hub wire types. Ids arrive as numbers or strings depending on the
// marketplace, so they decode through flexID.

type chatItem struct {
	ChatID      flexID          `json:"chat_id"`
	Text        string          `json:"text"`
	CreatedAt   string          `json:"created_at"`
	UnreadCount int             `json:"unread_count"`
	ClientID    flexInt         `json:"client_id"`
	Marketplace string          `json:"marketplace"`
	ChatStatus  string          `json:"chat_status"`
	ChatType    string          `json:"chat_type"`
	WBData      json.RawMessage `json:"wb_data,omitempty"`
}

type chatListResponse struct {
	Messages            []chatItem `json:"messages"`
	TotalUnreadMessages int        `json:"total_unread_messages"`
}

type messageContext struct {
	SKU         flexID `json:"sku"`
	OrderNumber flexID `json:"order_number"`
}

type messageItem struct {
	MessageID  flexID          `json:"message_id"`
	Text       string          `json:"text"`
	CreatedAt  string          `json:"created_at"`
	AuthorRole string          `json:"author_role"`
	AuthorID   flexID          `json:"author_id"`
	IsRead     bool            `json:"is_read"`
	IsImage    bool            `json:"is_image"`
	Context    *messageContext `json:"context,omitempty"`
	RawData    json.RawMessage `json:"raw_data,omitempty"`
}

type historyResponse struct {
	Messages      []messageItem `json:"messages"`
	TotalMessages int           `json:"total_messages"`
	HasNext       *bool         `json:"has_next,omitempty"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID flexID `json:"message_id"`
}

// wbData is the Wildberries-specific block on list items.
type wbData struct {
	ClientID   flexID          `json:"clientID"`
	ClientName string          `json:"clientName"`
	ReplySign  string          `json:"replySign"`
	GoodCard   json.RawMessage `json:"goodCard,omitempty"`
}

// flexID accepts a JSON string or number and keeps it as a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string. Anything else is 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var id flexID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	n, err := strconv.Atoi(string(id))
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}
