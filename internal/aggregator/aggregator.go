// Package aggregator merges every marketplace's conversation list into one
// inbox and routes per-conversation calls to the adapter that owns them.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"marketdesk/internal/logger"
	"marketdesk/internal/marketplace"
	"marketdesk/internal/metrics"
	"marketdesk/internal/model"
)

// ListQuery is one list request across marketplaces. Offsets holds the page
// offset per marketplace; missing entries start at 0. An empty Marketplaces
// means every registered marketplace.
type ListQuery struct {
	Read         model.ReadFilter
	Status       string
	Limit        int
	Offsets      map[model.Marketplace]int
	Marketplaces []model.Marketplace
}

// ListResult is the merged outcome of a list request. Marketplaces whose
// adapter failed appear in Failed and contribute nothing else.
type ListResult struct {
	Conversations []model.Conversation
	TotalUnread   int
	UnreadBy      map[model.Marketplace]int
	Pages         map[model.Marketplace]model.Cursor
	Failed        map[model.Marketplace]error
}

// HasMore reports whether any marketplace has another page.
func (r ListResult) HasMore() bool {
	for _, c := range r.Pages {
		if c.HasMore {
			return true
		}
	}
	return false
}

// Aggregator is stateless apart from its adapter table.
type Aggregator struct {
	adapters map[model.Marketplace]marketplace.Adapter
	order    []model.Marketplace
	fallback marketplace.Adapter
	logger   *slog.Logger
	metrics  *metrics.Registry
}

// New registers adapters in order. The first adapter for a marketplace wins.
// The Ozon adapter, or the first one given, handles ids whose marketplace is
// unknown.
func New(l *slog.Logger, adapters ...marketplace.Adapter) *Aggregator {
	a := &Aggregator{
		adapters: make(map[model.Marketplace]marketplace.Adapter, len(adapters)),
		logger:   logger.OrDiscard(l),
	}
	for _, ad := range adapters {
		mp := ad.Marketplace()
		if _, dup := a.adapters[mp]; dup {
			continue
		}
		a.adapters[mp] = ad
		a.order = append(a.order, mp)
		if a.fallback == nil || mp == model.Ozon {
			a.fallback = ad
		}
	}
	return a
}

// WithMetrics counts per-marketplace fan-out failures in m.
func (a *Aggregator) WithMetrics(m *metrics.Registry) *Aggregator {
	a.metrics = m
	return a
}

// Marketplaces lists the registered marketplaces in registration order.
func (a *Aggregator) Marketplaces() []model.Marketplace {
	return append([]model.Marketplace(nil), a.order...)
}

// Route returns the adapter owning id. Unknown marketplaces go to the
// default adapter.
func (a *Aggregator) Route(id model.ConversationID) marketplace.Adapter {
	if ad, ok := a.adapters[id.Marketplace]; ok {
		return ad
	}
	return a.fallback
}

func (a *Aggregator) participants(q ListQuery) []model.Marketplace {
	if len(q.Marketplaces) == 0 {
		return a.order
	}
	var out []model.Marketplace
	for _, mp := range q.Marketplaces {
		if _, ok := a.adapters[mp]; ok {
			out = append(out, mp)
		}
	}
	return out
}

type pageResult struct {
	mp   model.Marketplace
	page model.ListPage
	err  error
}

// ListAll queries every participating marketplace concurrently and merges
// the pages, newest activity first. A failing marketplace is logged and
// skipped; ListAll errors only when every marketplace failed.
func (a *Aggregator) ListAll(ctx context.Context, creds model.Credentials, q ListQuery) (ListResult, error) {
	mps := a.participants(q)
	if len(mps) == 0 {
		return ListResult{}, fmt.Errorf("list: no adapter for %v: %w", q.Marketplaces, model.ErrInvalidInput)
	}

	results := make([]pageResult, len(mps))
	var wg sync.WaitGroup
	wg.Add(len(mps))
	for i, mp := range mps {
		go func(i int, mp model.Marketplace) {
			defer wg.Done()
			page, err := a.adapters[mp].ListConversations(ctx, creds, a.request(q, mp))
			results[i] = pageResult{mp: mp, page: page, err: err}
		}(i, mp)
	}
	wg.Wait()

	res := ListResult{
		UnreadBy: make(map[model.Marketplace]int, len(mps)),
		Pages:    make(map[model.Marketplace]model.Cursor, len(mps)),
		Failed:   make(map[model.Marketplace]error),
	}
	var errs []error
	for _, r := range results {
		if r.err != nil {
			// Record the failure but keep what the other marketplaces returned.
			// A canceled fetch was superseded by the caller, not dropped by
			// the marketplace.
			if !errors.Is(r.err, context.Canceled) {
				a.logger.WarnContext(ctx, "marketplace list failed", "marketplace", r.mp, "err", r.err)
				a.metrics.MarketplaceFailed(r.mp.String())
			}
			res.Failed[r.mp] = r.err
			errs = append(errs, fmt.Errorf("%s: %w", r.mp, r.err))
			continue
		}
		res.Conversations = append(res.Conversations, r.page.Conversations...)
		res.TotalUnread += r.page.TotalUnread
		res.UnreadBy[r.mp] = r.page.TotalUnread
		res.Pages[r.mp] = model.Cursor{Offset: q.Offsets[r.mp], Limit: q.Limit, HasMore: r.page.HasMore}
	}
	if len(errs) == len(mps) {
		return res, errors.Join(errs...)
	}
	SortByActivity(res.Conversations)
	return res, nil
}

// List queries a single marketplace. Its error is returned unchanged.
func (a *Aggregator) List(ctx context.Context, creds model.Credentials, mp model.Marketplace, q ListQuery) (ListResult, error) {
	ad, ok := a.adapters[mp]
	if !ok {
		return ListResult{}, fmt.Errorf("list: no adapter for %s: %w", mp, model.ErrInvalidInput)
	}
	page, err := ad.ListConversations(ctx, creds, a.request(q, mp))
	if err != nil {
		return ListResult{}, err
	}
	convs := append([]model.Conversation(nil), page.Conversations...)
	SortByActivity(convs)
	return ListResult{
		Conversations: convs,
		TotalUnread:   page.TotalUnread,
		UnreadBy:      map[model.Marketplace]int{mp: page.TotalUnread},
		Pages:         map[model.Marketplace]model.Cursor{mp: {Offset: q.Offsets[mp], Limit: q.Limit, HasMore: page.HasMore}},
		Failed:        map[model.Marketplace]error{},
	}, nil
}

func (a *Aggregator) request(q ListQuery, mp model.Marketplace) marketplace.ListRequest {
	return marketplace.ListRequest{Read: q.Read, Status: q.Status, Limit: q.Limit, Offset: q.Offsets[mp]}
}

// RouteHistory fetches history from the adapter owning req.ConversationID.
func (a *Aggregator) RouteHistory(ctx context.Context, creds model.Credentials, req marketplace.HistoryRequest) (model.HistoryPage, error) {
	return a.Route(req.ConversationID).GetHistory(ctx, creds, req)
}

// RouteSend sends through the adapter owning req.ConversationID.
func (a *Aggregator) RouteSend(ctx context.Context, creds model.Credentials, req marketplace.SendRequest) (model.SendResult, error) {
	return a.Route(req.ConversationID).SendMessage(ctx, creds, req)
}

// SortByActivity orders conversations newest first by their raw activity
// timestamp. Ties fall back to marketplace then id so the order is stable
// across refreshes.
func SortByActivity(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		if a.ID.Marketplace != b.ID.Marketplace {
			return a.ID.Marketplace < b.ID.Marketplace
		}
		return a.ID.NativeID < b.ID.NativeID
	})
}
