package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"marketdesk/internal/model"
)

// Wildberries serves the hub's /wb endpoints.
type Wildberries struct {
	t    Transport
	norm normalizer
}

// NewWildberries returns the Wildberries adapter.
func NewWildberries(t Transport, opts Options) *Wildberries {
	opts = opts.withDefaults()
	return &Wildberries{t: t, norm: normalizer{marketplace: model.Wildberries, now: opts.Clock, logger: opts.Logger}}
}

func (w *Wildberries) Marketplace() model.Marketplace { return model.Wildberries }

func (w *Wildberries) ListConversations(ctx context.Context, creds model.Credentials, req ListRequest) (model.ListPage, error) {
	if err := req.validate(); err != nil {
		return model.ListPage{}, err
	}
	var resp chatListResponse
	if err := w.t.GetJSON(ctx, creds, "wb.list", "/wb/chats", req.query(), &resp); err != nil {
		return model.ListPage{}, err
	}
	convs := make([]model.Conversation, 0, len(resp.Messages))
	for _, it := range resp.Messages {
		c := w.norm.conversation(it, "Chat WB - "+w.clientName(it.WBData))
		c.Extra = it.WBData
		convs = append(convs, c)
	}
	return model.ListPage{
		Conversations: convs,
		TotalCount:    len(convs),
		TotalUnread:   resp.TotalUnreadMessages,
		HasMore:       len(resp.Messages) == req.Limit,
	}, nil
}

func (w *Wildberries) clientName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "Buyer"
	}
	var d wbData
	if err := json.Unmarshal(raw, &d); err != nil {
		w.norm.logger.Warn("malformed wb_data", "err", err)
		return "Buyer"
	}
	if d.ClientName == "" {
		return "Buyer"
	}
	return d.ClientName
}

func (w *Wildberries) GetHistory(ctx context.Context, creds model.Credentials, req HistoryRequest) (model.HistoryPage, error) {
	if err := req.validate(); err != nil {
		return model.HistoryPage{}, err
	}
	q := url.Values{"limit": {fmt.Sprint(req.Limit)}}
	if req.Cursor != "" {
		q.Set("from_message_id", req.Cursor)
	}
	var resp historyResponse
	path := "/wb/chat-history/" + url.PathEscape(req.ConversationID.NativeID)
	if err := w.t.GetJSON(ctx, creds, "wb.history", path, q, &resp); err != nil {
		return model.HistoryPage{}, err
	}
	hasMore := false
	if resp.HasNext != nil {
		hasMore = *resp.HasNext
	}
	return model.HistoryPage{
		Messages:   w.norm.history(resp.Messages),
		HasMore:    hasMore,
		TotalCount: resp.TotalMessages,
	}, nil
}

func (w *Wildberries) SendMessage(ctx context.Context, creds model.Credentials, req SendRequest) (model.SendResult, error) {
	if err := req.validate(); err != nil {
		return model.SendResult{}, err
	}
	var resp sendResponse
	body := sendBody{ClientID: req.AccountID, ChatID: req.ConversationID.NativeID, Text: req.Text}
	if err := w.t.PostJSON(ctx, creds, "wb.send", "/wb/send-message", body, &resp); err != nil {
		return model.SendResult{}, err
	}
	return sendResult(resp), nil
}
