// Package marketplace translates each marketplace's hub endpoints into the
// normalized conversation and message shapes the rest of the console uses.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"marketdesk/internal/logger"
	"marketdesk/internal/model"
)

// Adapter is one marketplace's view of the hub.
type Adapter interface {
	Marketplace() model.Marketplace
	ListConversations(ctx context.Context, creds model.Credentials, req ListRequest) (model.ListPage, error)
	GetHistory(ctx context.Context, creds model.Credentials, req HistoryRequest) (model.HistoryPage, error)
	SendMessage(ctx context.Context, creds model.Credentials, req SendRequest) (model.SendResult, error)
}

// Transport is the subset of *hub.Client adapters need.
type Transport interface {
	GetJSON(ctx context.Context, creds model.Credentials, op, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, creds model.Credentials, op, path string, body, out any) error
}

// Clock supplies "now" for relative time labels.
type Clock func() time.Time

// ListRequest selects one page of a conversation list.
type ListRequest struct {
	Read   model.ReadFilter
	Status string // hub chat_status; empty means "All"
	Limit  int
	Offset int
}

func (r ListRequest) validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("list limit %d: %w", r.Limit, model.ErrInvalidInput)
	}
	if r.Offset < 0 {
		return fmt.Errorf("list offset %d: %w", r.Offset, model.ErrInvalidInput)
	}
	return nil
}

func (r ListRequest) query() url.Values {
	status := r.Status
	if status == "" {
		status = "All"
	}
	return url.Values{
		"is_read":     {r.Read.String()},
		"chat_status": {status},
		"limit":       {fmt.Sprint(r.Limit)},
		"offset":      {fmt.Sprint(r.Offset)},
	}
}

// HistoryRequest selects one page of a conversation's history. Cursor is the
// message id to page from; empty starts at the newest message.
type HistoryRequest struct {
	ConversationID model.ConversationID
	AccountID      int
	Direction      model.Direction
	Cursor         string
	Limit          int
	MaxMessages    int
}

func (r HistoryRequest) validate() error {
	if r.ConversationID.IsZero() {
		return fmt.Errorf("history: empty conversation id: %w", model.ErrInvalidInput)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("history limit %d: %w", r.Limit, model.ErrInvalidInput)
	}
	if !r.Direction.Valid() {
		return fmt.Errorf("history direction %q: %w", r.Direction, model.ErrInvalidInput)
	}
	return nil
}

// SendRequest is an outgoing reply.
type SendRequest struct {
	ConversationID model.ConversationID
	AccountID      int
	Text           string
}

func (r SendRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return model.ErrEmptyMessage
	}
	if r.ConversationID.IsZero() {
		return fmt.Errorf("send: empty conversation id: %w", model.ErrInvalidInput)
	}
	return nil
}

// Options is shared by every adapter constructor.
type Options struct {
	Clock  Clock
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	o.Logger = logger.OrDiscard(o.Logger)
	return o
}

type sendBody struct {
	ClientID int    `json:"client_id"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
}

func sendResult(resp sendResponse) model.SendResult {
	return model.SendResult{Success: resp.Success, MessageID: string(resp.MessageID)}
}
