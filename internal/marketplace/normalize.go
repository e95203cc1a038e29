package marketplace

import (
	"log/slog"
	"time"

	"marketdesk/internal/model"
	"marketdesk/internal/util"
)

// normalizer turns hub items into model values for one marketplace.
type normalizer struct {
	marketplace model.Marketplace
	now         Clock
	logger      *slog.Logger
}

func (n normalizer) timestamp(raw string) time.Time {
	ts, err := util.ParseTimestamp(raw)
	if err != nil {
		// Unparseable stamps sort as oldest rather than failing the page.
		n.logger.Warn("unparseable timestamp", "marketplace", n.marketplace, "value", raw)
		return time.Time{}
	}
	return ts
}

func (n normalizer) conversation(item chatItem, name string) model.Conversation {
	ts := n.timestamp(item.CreatedAt)
	return model.Conversation{
		ID:           model.NewConversationID(n.marketplace, string(item.ChatID)),
		Name:         name,
		Marketplace:  n.marketplace,
		AccountID:    int(item.ClientID),
		Status:       model.ParseChatStatus(item.ChatStatus),
		RawStatus:    item.ChatStatus,
		ChatType:     item.ChatType,
		LastMessage:  util.TruncatePreview(item.Text),
		LastActivity: ts,
		TimeLabel:    util.RelativeTime(ts, n.now()),
		UnreadCount:  item.UnreadCount,
	}
}

func (n normalizer) message(item messageItem, now time.Time) model.Message {
	ts := n.timestamp(item.CreatedAt)
	role := model.ParseRole(item.AuthorRole)
	status := model.StatusSent
	if item.IsRead {
		status = model.StatusRead
	}
	m := model.Message{
		ID:          string(item.MessageID),
		Text:        item.Text,
		Timestamp:   ts,
		AuthorID:    string(item.AuthorID),
		Role:        role,
		Status:      status,
		IsRead:      item.IsRead,
		IsImage:     item.IsImage,
		IsOwn:       role == model.RoleSeller,
		Raw:         item.RawData,
		DisplayTime: util.DisplayDateTime(ts, now),
	}
	if item.Context != nil {
		m.Context = &model.OrderContext{
			SKU:         string(item.Context.SKU),
			OrderNumber: string(item.Context.OrderNumber),
		}
	}
	return m
}

// history normalizes a page and returns it sorted ascending by timestamp.
func (n normalizer) history(items []messageItem) []model.Message {
	now := n.now()
	out := make([]model.Message, 0, len(items))
	for _, it := range items {
		out = append(out, n.message(it, now))
	}
	model.SortMessages(out)
	return out
}

func shortID(id string, n int) string {
	r := []rune(id)
	if len(r) <= n {
		return id
	}
	return string(r[:n])
}
