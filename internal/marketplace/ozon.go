package marketplace

import (
	"context"
	"strconv"

	"marketdesk/internal/model"
)

// Ozon serves the hub's generic /chats endpoints. It is the default route
// for conversations whose marketplace cannot be told from their id.
type Ozon struct {
	t    Transport
	norm normalizer
}

// NewOzon returns the Ozon adapter.
func NewOzon(t Transport, opts Options) *Ozon {
	opts = opts.withDefaults()
	return &Ozon{t: t, norm: normalizer{marketplace: model.Ozon, now: opts.Clock, logger: opts.Logger}}
}

func (o *Ozon) Marketplace() model.Marketplace { return model.Ozon }

func (o *Ozon) ListConversations(ctx context.Context, creds model.Credentials, req ListRequest) (model.ListPage, error) {
	if err := req.validate(); err != nil {
		return model.ListPage{}, err
	}
	q := req.query()
	q.Set("marketplace", model.Ozon.String())

	var resp chatListResponse
	if err := o.t.GetJSON(ctx, creds, "ozon.list", "/chats/chat-list", q, &resp); err != nil {
		return model.ListPage{}, err
	}
	convs := make([]model.Conversation, 0, len(resp.Messages))
	for _, it := range resp.Messages {
		name := "Chat " + model.Ozon.String() + " - " + shortID(string(it.ChatID), 8)
		convs = append(convs, o.norm.conversation(it, name))
	}
	return model.ListPage{
		Conversations: convs,
		TotalCount:    len(convs),
		TotalUnread:   resp.TotalUnreadMessages,
		// The hub reports no total, so a full page is taken to mean more.
		HasMore: len(resp.Messages) == req.Limit,
	}, nil
}

type ozonHistoryBody struct {
	ClientID      int             `json:"client_id"`
	ChatID        string          `json:"chat_id"`
	Direction     model.Direction `json:"direction"`
	FromMessageID any             `json:"from_message_id,omitempty"`
	Limit         int             `json:"limit"`
	MaxMessages   int             `json:"max_messages,omitempty"`
}

func (o *Ozon) GetHistory(ctx context.Context, creds model.Credentials, req HistoryRequest) (model.HistoryPage, error) {
	if err := req.validate(); err != nil {
		return model.HistoryPage{}, err
	}
	body := ozonHistoryBody{
		ClientID:    req.AccountID,
		ChatID:      req.ConversationID.NativeID,
		Direction:   req.Direction,
		Limit:       req.Limit,
		MaxMessages: req.MaxMessages,
	}
	if req.Cursor != "" {
		// Ozon message ids are numeric; send them as numbers when they are.
		if n, err := strconv.ParseInt(req.Cursor, 10, 64); err == nil {
			body.FromMessageID = n
		} else {
			body.FromMessageID = req.Cursor
		}
	}

	var resp historyResponse
	if err := o.t.PostJSON(ctx, creds, "ozon.history", "/chats/chat-history", body, &resp); err != nil {
		return model.HistoryPage{}, err
	}
	return model.HistoryPage{
		Messages:   o.norm.history(resp.Messages),
		// A full page means older messages may remain.
		HasMore:    len(resp.Messages) == req.Limit,
		TotalCount: resp.TotalMessages,
	}, nil
}

func (o *Ozon) SendMessage(ctx context.Context, creds model.Credentials, req SendRequest) (model.SendResult, error) {
	if err := req.validate(); err != nil {
		return model.SendResult{}, err
	}
	var resp sendResponse
	body := sendBody{ClientID: req.AccountID, ChatID: req.ConversationID.NativeID, Text: req.Text}
	if err := o.t.PostJSON(ctx, creds, "ozon.send", "/chats/send-message", body, &resp); err != nil {
		return model.SendResult{}, err
	}
	return sendResult(resp), nil
}
