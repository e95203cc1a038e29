// Package inbox holds the console's working set: the conversation list under
// the current filter, the selected conversation and its history, per-
// conversation loading flags, pagination cursors and the last error.
//
// All state sits behind one mutex. Network calls run outside the lock and a
// result is applied only if the state it was requested for is still current.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketdesk/internal/aggregator"
	"marketdesk/internal/logger"
	"marketdesk/internal/marketplace"
	"marketdesk/internal/model"
	"marketdesk/internal/util"
)

// ErrSendRejected is recorded when the hub answers a send with success=false.
var ErrSendRejected = errors.New("message was not accepted by the marketplace")

// ErrUnknownConversation is returned for ids that are not in the working set.
var ErrUnknownConversation = fmt.Errorf("conversation is not in the list: %w", model.ErrInvalidInput)

// Router is what the store needs from the aggregator.
type Router interface {
	ListAll(ctx context.Context, creds model.Credentials, q aggregator.ListQuery) (aggregator.ListResult, error)
	List(ctx context.Context, creds model.Credentials, mp model.Marketplace, q aggregator.ListQuery) (aggregator.ListResult, error)
	RouteHistory(ctx context.Context, creds model.Credentials, req marketplace.HistoryRequest) (model.HistoryPage, error)
	RouteSend(ctx context.Context, creds model.Credentials, req marketplace.SendRequest) (model.SendResult, error)
}

// ListState tracks the conversation list's lifecycle.
type ListState int

const (
	ListUnfiltered ListState = iota
	ListLoading
	ListLoaded
)

func (s ListState) String() string {
	switch s {
	case ListLoading:
		return "loading"
	case ListLoaded:
		return "loaded"
	default:
		return "unfiltered"
	}
}

// Options tunes paging and injects clocks and ids for tests.
type Options struct {
	PageSize     int // default 30
	HistoryLimit int // default 50
	MaxMessages  int // default 1000
	Clock        func() time.Time
	NewID        func() string
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = 1000
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	o.Logger = logger.OrDiscard(o.Logger)
	return o
}

// Store is safe for concurrent use.
type Store struct {
	router Router
	creds  model.Credentials
	opts   Options
	log    *slog.Logger

	mu          sync.Mutex
	filter      model.Filter
	applied     bool
	listState   ListState
	convs       []model.Conversation
	selected    *model.Conversation
	// History fetches and sends are tracked apart so one never gates the
	// other. sending counts concurrent sends per conversation.
	historyLoading map[model.ConversationID]bool
	sending        map[model.ConversationID]int
	pages       map[model.Marketplace]model.Cursor
	unread      map[model.Marketplace]int
	unavailable map[model.Marketplace]error
	err         error

	listSeq    uint64
	cancelList context.CancelFunc

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// New returns an empty store using the default filter (every marketplace and
// account, unread only). Nothing is fetched until ApplyFilters.
func New(router Router, creds model.Credentials, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		router:  router,
		creds:   creds,
		opts:    opts,
		log:     opts.Logger,
		filter:  model.DefaultFilter(),
		subs:    map[int]chan struct{}{},

		historyLoading: map[model.ConversationID]bool{},
		sending:        map[model.ConversationID]int{},
	}
}

// Snapshot is a deep copy of the store's state for rendering.
type Snapshot struct {
	Filter         model.Filter
	FiltersApplied bool
	ListState      ListState
	Conversations  []model.Conversation
	Selected       *model.Conversation
	Loading        map[model.ConversationID]bool
	TotalUnread    int
	HasMore        bool
	Unavailable    []model.Marketplace
	Err            error
}

// IsLoading reports whether id has a request in flight.
func (s Snapshot) IsLoading(id model.ConversationID) bool { return s.Loading[id] }

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Filter:         s.filter,
		FiltersApplied: s.applied,
		ListState:      s.listState,
		Conversations:  make([]model.Conversation, 0, len(s.convs)),
		Loading:        make(map[model.ConversationID]bool, len(s.historyLoading)+len(s.sending)),
		TotalUnread:    s.totalUnreadLocked(),
		HasMore:        s.hasMoreLocked(),
		Err:            s.err,
	}
	for _, c := range s.convs {
		snap.Conversations = append(snap.Conversations, c.Clone())
	}
	if s.selected != nil {
		sel := s.selected.Clone()
		snap.Selected = &sel
	}
	for id := range s.historyLoading {
		snap.Loading[id] = true
	}
	for id := range s.sending {
		snap.Loading[id] = true
	}
	for _, mp := range model.Marketplaces() {
		if _, ok := s.unavailable[mp]; ok {
			snap.Unavailable = append(snap.Unavailable, mp)
		}
	}
	return snap
}

// Subscribe returns a channel that receives a value after every state
// change. Notifications coalesce; a slow reader sees the latest state on its
// next Snapshot. Call cancel to unsubscribe.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Err returns the current error, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError empties the error slot.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	s.notify()
}

// fail records err and returns it. Callers must not hold the lock.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Store) checkCreds() error {
	if err := s.creds.Validate(s.opts.Clock()); err != nil {
		return s.fail(err)
	}
	return nil
}

// Conversation returns a copy of the conversation with id from the list.
func (s *Store) Conversation(id model.ConversationID) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.convs[i].Clone(), true
	}
	return model.Conversation{}, false
}

// Adopt adds a conversation known from elsewhere (an id typed on the command
// line) to the working set so it can be selected. Existing entries win.
func (s *Store) Adopt(c model.Conversation) {
	s.mu.Lock()
	if s.indexLocked(c.ID) < 0 {
		if c.Marketplace == model.MarketplaceUnknown {
			c.Marketplace = c.ID.Marketplace
		}
		s.convs = append(s.convs, c)
		aggregator.SortByActivity(s.convs)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) indexLocked(id model.ConversationID) int {
	for i := range s.convs {
		if s.convs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) totalUnreadLocked() int {
	n := 0
	for _, v := range s.unread {
		n += v
	}
	return n
}

func (s *Store) hasMoreLocked() bool {
	for _, c := range s.pages {
		if c.HasMore {
			return true
		}
	}
	return false
}

// resetListLocked clears everything derived from the previous filter and
// invalidates requests made for it.
func (s *Store) resetListLocked() uint64 {
	if s.cancelList != nil {
		s.cancelList()
		s.cancelList = nil
	}
	s.listSeq++
	s.convs = nil
	s.selected = nil
	s.historyLoading = map[model.ConversationID]bool{}
	s.sending = map[model.ConversationID]int{}
	s.pages = nil
	s.unread = nil
	s.unavailable = nil
	return s.listSeq
}

// SetFilter replaces the filter without fetching. The list is cleared until
// ApplyFilters runs.
func (s *Store) SetFilter(f model.Filter) {
	s.mu.Lock()
	s.resetListLocked()
	s.filter = f
	s.applied = false
	s.listState = ListUnfiltered
	s.mu.Unlock()
	s.notify()
}

// ApplyFilters replaces the filter and loads the first page for it. Any list
// request still running for an earlier filter is cancelled and its answer
// discarded.
func (s *Store) ApplyFilters(ctx context.Context, f model.Filter) error {
	if err := s.checkCreds(); err != nil {
		return err
	}
	s.mu.Lock()
	seq := s.resetListLocked()
	ctx, cancel := context.WithCancel(ctx)
	s.cancelList = cancel
	s.filter = f
	s.applied = true
	s.listState = ListLoading
	s.mu.Unlock()
	s.notify()
	defer cancel()

	s.log.DebugContext(ctx, "applying filter", "filter", f.String(), "seq", seq)
	q := aggregator.ListQuery{Read: f.Read, Limit: s.opts.PageSize}
	res, err := s.fetchList(ctx, f, q)

	s.mu.Lock()
	if seq != s.listSeq {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "discarding stale list", "seq", seq)
		return nil
	}
	s.cancelList = nil
	s.listState = ListLoaded
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.convs = s.matching(f, res.Conversations)
	s.pages = res.Pages
	s.unread = res.UnreadBy
	s.unavailable = res.Failed
	s.mu.Unlock()
	s.notify()
	return nil
}

// Refresh re-applies the current filter.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	f := s.filter
	s.mu.Unlock()
	return s.ApplyFilters(ctx, f)
}

func (s *Store) fetchList(ctx context.Context, f model.Filter, q aggregator.ListQuery) (aggregator.ListResult, error) {
	if f.AllMarketplaces() {
		return s.router.ListAll(ctx, s.creds, q)
	}
	return s.router.List(ctx, s.creds, f.Marketplace, q)
}

// matching keeps conversations that pass f's marketplace and account
// selectors, newest first.
func (s *Store) matching(f model.Filter, convs []model.Conversation) []model.Conversation {
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	aggregator.SortByActivity(out)
	return out
}

// LoadMoreConversations fetches the next page from every marketplace that
// reported more. It issues no request when none did.
func (s *Store) LoadMoreConversations(ctx context.Context) error {
	s.mu.Lock()
	if s.listState != ListLoaded || !s.hasMoreLocked() {
		s.mu.Unlock()
		return nil
	}
	f := s.filter
	q := aggregator.ListQuery{Read: f.Read, Limit: s.opts.PageSize, Offsets: map[model.Marketplace]int{}}
	for _, mp := range model.Marketplaces() {
		if c, ok := s.pages[mp]; ok && c.HasMore {
			q.Offsets[mp] = c.Next().Offset
			q.Marketplaces = append(q.Marketplaces, mp)
		}
	}
	seq := s.listSeq
	s.listState = ListLoading
	s.mu.Unlock()
	s.notify()

	if err := s.checkCreds(); err != nil {
		s.mu.Lock()
		if seq == s.listSeq {
			s.listState = ListLoaded
		}
		s.mu.Unlock()
		return err
	}

	s.log.DebugContext(ctx, "loading more conversations", "marketplaces", len(q.Marketplaces))
	var (
		res aggregator.ListResult
		err error
	)
	if f.AllMarketplaces() {
		res, err = s.router.ListAll(ctx, s.creds, q)
	} else {
		res, err = s.router.List(ctx, s.creds, f.Marketplace, q)
	}

	s.mu.Lock()
	if seq != s.listSeq {
		s.mu.Unlock()
		return nil
	}
	s.listState = ListLoaded
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	for _, c := range s.matching(f, res.Conversations) {
		if s.indexLocked(c.ID) < 0 {
			s.convs = append(s.convs, c)
		}
	}
	aggregator.SortByActivity(s.convs)
	for mp, c := range res.Pages {
		s.pages[mp] = c
	}
	if s.unread == nil {
		s.unread = map[model.Marketplace]int{}
	}
	for mp, n := range res.UnreadBy {
		s.unread[mp] = n
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SelectConversation makes id the selection and loads its history unless it
// is already loaded or loading. Selecting a loaded conversation issues no
// request.
func (s *Store) SelectConversation(ctx context.Context, id model.ConversationID) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.err = ErrUnknownConversation
		s.mu.Unlock()
		s.notify()
		return ErrUnknownConversation
	}
	c := s.convs[i]
	sel := c.Clone()
	if !c.HistoryLoaded {
		sel.Messages = nil
	}
	s.selected = &sel
	if c.HistoryLoaded || s.historyLoading[id] {
		s.mu.Unlock()
		s.notify()
		return nil
	}
	s.mu.Unlock()

	return s.fetchHistory(ctx, c, "")
}

// LoadOlderMessages pages the selected conversation's history backwards from
// its oldest loaded message.
func (s *Store) LoadOlderMessages(ctx context.Context) error {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil
	}
	i := s.indexLocked(s.selected.ID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	c := s.convs[i]
	if !c.HistoryLoaded || !c.HasMoreHistory || s.historyLoading[c.ID] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.fetchHistory(ctx, c, c.OldestMessageID)
}

func (s *Store) fetchHistory(ctx context.Context, c model.Conversation, cursor string) error {
	if err := s.checkCreds(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.historyLoading[c.ID] {
		s.mu.Unlock()
		return nil
	}
	s.historyLoading[c.ID] = true
	seq := s.listSeq
	s.mu.Unlock()
	s.notify()

	s.log.DebugContext(ctx, "fetching history", "conversation", c.ID.NativeID, "marketplace", c.ID.Marketplace, "cursor", cursor)
	page, err := s.router.RouteHistory(ctx, s.creds, marketplace.HistoryRequest{
		ConversationID: c.ID,
		AccountID:      c.AccountID,
		Direction:      model.Backward,
		Cursor:         cursor,
		Limit:          s.opts.HistoryLimit,
		MaxMessages:    s.opts.MaxMessages,
	})

	s.mu.Lock()
	if seq != s.listSeq {
		// The list was replaced while this was in flight.
		s.mu.Unlock()
		return nil
	}
	delete(s.historyLoading, c.ID)
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	if i := s.indexLocked(c.ID); i >= 0 {
		rec := &s.convs[i]
		rec.Messages = model.MergeMessages(rec.Messages, page.Messages)
		rec.HistoryLoaded = true
		// An empty older page ends paging even if the hub says otherwise.
		rec.HasMoreHistory = page.HasMore && (cursor == "" || len(page.Messages) > 0)
		if len(rec.Messages) > 0 {
			rec.OldestMessageID = rec.Messages[0].ID
		}
		s.mirrorLocked(*rec)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// mirrorLocked copies rec into the selection when it is still selected.
func (s *Store) mirrorLocked(rec model.Conversation) {
	if s.selected != nil && s.selected.ID == rec.ID {
		sel := rec.Clone()
		s.selected = &sel
	}
}

// SendMessage sends text to the conversation and, once the hub accepts it,
// appends it locally as the newest own message. Failures leave the
// conversation untouched.
func (s *Store) SendMessage(ctx context.Context, id model.ConversationID, accountID int, text string) error {
	if strings.TrimSpace(text) == "" {
		return s.fail(model.ErrEmptyMessage)
	}
	if err := s.checkCreds(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sending[id]++
	seq := s.listSeq
	s.mu.Unlock()
	s.notify()

	res, err := s.router.RouteSend(ctx, s.creds, marketplace.SendRequest{ConversationID: id, AccountID: accountID, Text: text})
	if err == nil && !res.Success {
		err = ErrSendRejected
	}

	s.mu.Lock()
	if seq == s.listSeq {
		if s.sending[id]--; s.sending[id] <= 0 {
			delete(s.sending, id)
		}
	}
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	now := s.opts.Clock()
	msgID := res.MessageID
	if msgID == "" {
		msgID = s.opts.NewID()
	}
	msg := model.Message{
		ID:          msgID,
		Text:        text,
		Timestamp:   now,
		AuthorID:    "current_user",
		Role:        model.RoleSeller,
		Status:      model.StatusSent,
		IsOwn:       true,
		DisplayTime: util.DisplayDateTime(now, now),
	}
	if i := s.indexLocked(id); i >= 0 && seq == s.listSeq {
		rec := &s.convs[i]
		rec.Messages = model.MergeMessages(rec.Messages, []model.Message{msg})
		rec.UnreadCount = 0
		rec.LastMessage = util.TruncatePreview(text)
		rec.LastActivity = now
		rec.TimeLabel = util.RelativeTime(now, now)
		updated := *rec
		aggregator.SortByActivity(s.convs)
		s.mirrorLocked(updated)
	}
	s.mu.Unlock()
	s.notify()
	s.log.DebugContext(ctx, "message sent", "conversation", id.NativeID, "message_id", msgID)
	return nil
}

// ClearMessages drops id's loaded history so the next selection refetches.
func (s *Store) ClearMessages(id model.ConversationID) {
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		rec := &s.convs[i]
		rec.Messages = nil
		rec.HistoryLoaded = false
		rec.HasMoreHistory = false
		rec.OldestMessageID = ""
		s.mirrorLocked(*rec)
	}
	s.mu.Unlock()
	s.notify()
}
