// Package hubtest runs an in-process marketplace hub for tests. It serves the
// same routes as the real hub from canned data and records every request.
package hubtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// Route names used by Fail, Hold and Count.
const (
	RouteOzonList    = "ozon.list"
	RouteOzonHistory = "ozon.history"
	RouteOzonSend    = "ozon.send"
	RouteWBList      = "wb.list"
	RouteWBHistory   = "wb.history"
	RouteWBSend      = "wb.send"
	RouteGenerate    = "auth.generate_code"
	RouteToken       = "auth.token"
	RouteMe          = "auth.me"
)

// Chat is a list entry as the hub serves it.
type Chat struct {
	ChatID      string         `json:"chat_id"`
	Text        string         `json:"text"`
	CreatedAt   string         `json:"created_at"`
	UnreadCount int            `json:"unread_count"`
	ClientID    any            `json:"client_id"`
	Marketplace string         `json:"marketplace"`
	ChatStatus  string         `json:"chat_status"`
	ChatType    string         `json:"chat_type"`
	WBData      map[string]any `json:"wb_data,omitempty"`
}

// Message is a history entry as the hub serves it.
type Message struct {
	MessageID  any            `json:"message_id"`
	Text       string         `json:"text"`
	CreatedAt  string         `json:"created_at"`
	AuthorRole string         `json:"author_role"`
	AuthorID   any            `json:"author_id"`
	IsRead     bool           `json:"is_read"`
	IsImage    bool           `json:"is_image"`
	Context    map[string]any `json:"context,omitempty"`
	RawData    any            `json:"raw_data,omitempty"`
}

// Request is one recorded call.
type Request struct {
	Route  string
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Auth   string
}

// JSON decodes the recorded body into a generic map.
func (r Request) JSON() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(r.Body, &m)
	return m
}

type failure struct {
	status int
	body   string
}

// Server is the fake hub. The zero configuration accepts Token as bearer
// and serves empty lists.
type Server struct {
	*httptest.Server

	// Token is the bearer every protected route requires. Code is the login
	// code /token accepts.
	Token string
	Code  string
	Email string

	mu        sync.Mutex
	chats     map[string][]Chat // keyed by "OZON" / "WB"
	histories map[string][]Message
	hasNext   map[string]bool
	nextMsgID int
	sendOK    bool
	failures  map[string]failure
	holds     map[string]chan struct{}
	requests  []Request
}

// New starts a fake hub and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Token:     "test-token",
		Code:      "123456",
		Email:     "seller@example.com",
		chats:     map[string][]Chat{},
		histories: map[string][]Message{},
		hasNext:   map[string]bool{},
		nextMsgID: 1000,
		sendOK:    true,
		failures:  map[string]failure{},
		holds:     map[string]chan struct{}{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the hub root to hand to hub.Options.
func (s *Server) BaseURL() string { return s.URL + "/api" }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate_code", s.handle(RouteGenerate, s.generateCode))
		r.Post("/token", s.handle(RouteToken, s.issueToken))

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/me", s.handle(RouteMe, s.me))
			r.Get("/chats/chat-list", s.handle(RouteOzonList, s.listChats("OZON")))
			r.Post("/chats/chat-history", s.handle(RouteOzonHistory, s.ozonHistory))
			r.Post("/chats/send-message", s.handle(RouteOzonSend, s.send))
			r.Get("/wb/chats", s.handle(RouteWBList, s.listChats("WB")))
			r.Get("/wb/chat-history/{chatID}", s.handle(RouteWBHistory, s.wbHistory))
			r.Post("/wb/send-message", s.handle(RouteWBSend, s.send))
		})
	})
	return r
}

// SetChats replaces the list a marketplace ("OZON" or "WB") serves.
func (s *Server) SetChats(marketplace string, chats ...Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[marketplace] = chats
}

// SetHistory replaces a chat's history. WB histories also report hasNext.
func (s *Server) SetHistory(chatID string, hasNext bool, msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[chatID] = msgs
	s.hasNext[chatID] = hasNext
}

// SetNextMessageID fixes the id the next successful send returns.
func (s *Server) SetNextMessageID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsgID = id
}

// SetSendSuccess controls the success flag of send responses.
func (s *Server) SetSendSuccess(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendOK = ok
}

// Fail makes route answer with status and body until Recover is called.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

// Recover undoes Fail.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Hold blocks every request to route until the returned func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns a copy of everything recorded so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests for one route.
func (s *Server) RequestsTo(route string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Count is len(RequestsTo(route)).
func (s *Server) Count(route string) int { return len(s.RequestsTo(route)) }

// Reset forgets recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Route:  route,
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   body,
			Auth:   r.Header.Get("Authorization"),
		})
		f, failing := s.failures[route]
		hold := s.holds[route]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			http.Error(w, f.body, f.status)
			return
		}
		h(w, r)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] != s.Token {
			http.Error(w, `{"detail":"Could not validate credentials"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) generateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserEmail string `json:"user_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserEmail == "" {
		http.Error(w, "user_email is required", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]string{"message": "code sent"})
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserEmail string `json:"user_email"`
		Code      string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code != s.Code {
		http.Error(w, `{"detail":"invalid code"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"access_token": s.Token, "token_type": "bearer"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"email": s.Email, "id": 1})
}

func (s *Server) listChats(marketplace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		s.mu.Lock()
		all := append([]Chat(nil), s.chats[marketplace]...)
		s.mu.Unlock()

		var matched []Chat
		unread := 0
		for _, c := range all {
			if q.Get("is_read") == "unread" && c.UnreadCount == 0 {
				continue
			}
			matched = append(matched, c)
			unread += c.UnreadCount
		}
		page := window(len(matched), offset, limit)
		out := matched[page[0]:page[1]]
		if out == nil {
			out = []Chat{}
		}
		writeJSON(w, map[string]any{"messages": out, "total_unread_messages": unread})
	}
}

func (s *Server) ozonHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID      any    `json:"client_id"`
		ChatID        string `json:"chat_id"`
		Direction     string `json:"direction"`
		FromMessageID any    `json:"from_message_id"`
		Limit         int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msgs := s.page(req.ChatID, fmt.Sprint(orEmpty(req.FromMessageID)), req.Limit)
	writeJSON(w, map[string]any{"messages": msgs, "total_messages": s.total(req.ChatID)})
}

func (s *Server) wbHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if unescaped, err := url.PathUnescape(chatID); err == nil {
		chatID = unescaped
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs := s.page(chatID, r.URL.Query().Get("from_message_id"), limit)

	s.mu.Lock()
	next := s.hasNext[chatID]
	s.mu.Unlock()
	writeJSON(w, map[string]any{"messages": msgs, "total_messages": s.total(chatID), "has_next": next})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID any    `json:"client_id"`
		ChatID   string `json:"chat_id"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	ok := s.sendOK
	id := s.nextMsgID
	if ok {
		s.nextMsgID++
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{"success": false})
		return
	}
	writeJSON(w, map[string]any{"success": true, "message_id": id})
}

// page returns up to limit messages older than from (all when from is
// empty), newest first as the real hub does.
func (s *Server) page(chatID, from string, limit int) []Message {
	s.mu.Lock()
	all := append([]Message(nil), s.histories[chatID]...)
	s.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	var out []Message
	passed := from == ""
	for _, m := range all {
		if !passed {
			if fmt.Sprint(m.MessageID) == from {
				passed = true
			}
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if out == nil {
		out = []Message{}
	}
	return out
}

func (s *Server) total(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories[chatID])
}

func window(n, offset, limit int) [2]int {
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return [2]int{offset, end}
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}

// SignedToken issues an HS256 JWT expiring at exp, for tests that need a
// token carrying a real expiry claim.
func SignedToken(t testing.TB, subject string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("hubtest-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// Stamp formats t the way the hub emits timestamps (naive UTC).
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}
