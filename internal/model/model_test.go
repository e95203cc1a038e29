package model

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"seller", RoleSeller},
		{"Seller", RoleSeller},
		{"ADMIN", RoleSeller},
		{"operator", RoleSeller},
		{"customer", RoleCustomer},
		{"Customer", RoleCustomer},
		{"client", RoleCustomer},
		{"user", RoleCustomer},
		{"support", RoleSupport},
		{"Support", RoleSupport},
		{"system", RoleSystem},
		{"SYSTEM", RoleSystem},
		{"NotificationUser", RoleNotificationUser},
		{"notification_user", RoleNotificationUser},
		{"notification", RoleNotificationUser},
		{"  seller  ", RoleSeller},
		{"", RoleCustomer},
		{"courier", RoleCustomer}, // unmapped falls back to Customer
	}
	for _, tc := range tests {
		if got := ParseRole(tc.in); got != tc.want {
			t.Errorf("ParseRole(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseChatStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ChatStatus
	}{
		{"OPENED", ChatOpened},
		{"opened", ChatOpened},
		{"Open", ChatOpened},
		{"CLOSED", ChatClosed},
		{"Processing", ChatProcessing},
		{"", ChatStatusUnknown},
		{"ARCHIVED", ChatStatusUnknown},
	}
	for _, tc := range tests {
		if got := ParseChatStatus(tc.in); got != tc.want {
			t.Errorf("ParseChatStatus(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseMarketplace(t *testing.T) {
	tests := []struct {
		in   string
		want Marketplace
	}{
		{"OZON", Ozon},
		{"ozon", Ozon},
		{"WB", Wildberries},
		{"wildberries", Wildberries},
		{"all", MarketplaceUnknown},
		{"", MarketplaceUnknown},
		{"amazon", MarketplaceUnknown},
	}
	for _, tc := range tests {
		if got := ParseMarketplace(tc.in); got != tc.want {
			t.Errorf("ParseMarketplace(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseConversationID(t *testing.T) {
	tests := []struct {
		in   string
		want ConversationID
	}{
		{"1:4019cd7d-1111", ConversationID{Wildberries, "1:4019cd7d-1111"}},
		{"abc123", ConversationID{Ozon, "abc123"}},
		{"", ConversationID{Ozon, ""}},
		{" 7:x ", ConversationID{Wildberries, "7:x"}},
	}
	for _, tc := range tests {
		if got := ParseConversationID(tc.in); got != tc.want {
			t.Errorf("ParseConversationID(%q) = %+v; want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("all", "all", "unread")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if f != DefaultFilter() {
		t.Fatalf("got %+v; want default filter", f)
	}

	f, err = ParseFilter("WB", "3", "all")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	want := Filter{Marketplace: Wildberries, AccountID: 3, Read: ReadAll}
	if f != want {
		t.Fatalf("got %+v; want %+v", f, want)
	}

	for _, bad := range [][3]string{
		{"ebay", "all", "all"},
		{"all", "zero", "all"},
		{"all", "-1", "all"},
		{"all", "all", "starred"},
	} {
		if _, err := ParseFilter(bad[0], bad[1], bad[2]); !IsValidation(err) {
			t.Errorf("ParseFilter(%q) err = %v; want validation error", bad, err)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	oz := Conversation{Marketplace: Ozon, AccountID: 1}
	wb := Conversation{Marketplace: Wildberries, AccountID: 2}

	tests := []struct {
		f      Filter
		oz, wb bool
	}{
		{Filter{}, true, true},
		{Filter{Marketplace: Ozon}, true, false},
		{Filter{Marketplace: Wildberries}, false, true},
		{Filter{AccountID: 2}, false, true},
		{Filter{Marketplace: Ozon, AccountID: 2}, false, false},
	}
	for _, tc := range tests {
		if got := tc.f.Matches(oz); got != tc.oz {
			t.Errorf("%v matches ozon = %v; want %v", tc.f, got, tc.oz)
		}
		if got := tc.f.Matches(wb); got != tc.wb {
			t.Errorf("%v matches wb = %v; want %v", tc.f, got, tc.wb)
		}
	}
}

func TestMergeMessages(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	existing := []Message{
		{ID: "2", Text: "b", Timestamp: base.Add(2 * time.Minute)},
		{ID: "3", Text: "c", Timestamp: base.Add(3 * time.Minute)},
	}
	incoming := []Message{
		{ID: "3", Text: "c-edited", Timestamp: base.Add(3 * time.Minute)},
		{ID: "1", Text: "a", Timestamp: base.Add(1 * time.Minute)},
	}
	got := MergeMessages(existing, incoming)
	if len(got) != 3 {
		t.Fatalf("len=%d; want 3", len(got))
	}
	for i, id := range []string{"1", "2", "3"} {
		if got[i].ID != id {
			t.Fatalf("idx %d id=%s; want %s", i, got[i].ID, id)
		}
	}
	if got[2].Text != "c-edited" {
		t.Fatalf("duplicate id kept stale copy: %q", got[2].Text)
	}
}

func TestConversationCloneDoesNotAlias(t *testing.T) {
	c := Conversation{Messages: []Message{{ID: "1", Context: &OrderContext{SKU: "a"}}}}
	cp := c.Clone()
	cp.Messages[0].ID = "x"
	cp.Messages[0].Context.SKU = "b"
	if c.Messages[0].ID != "1" || c.Messages[0].Context.SKU != "a" {
		t.Fatalf("clone aliases the original: %+v", c.Messages[0])
	}
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "seller@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestCredentialsValidate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := (Credentials{}).Validate(now); !errors.Is(err, ErrMissingToken) || !IsValidation(err) {
		t.Fatalf("empty token err = %v; want ErrMissingToken", err)
	}
	if err := (Credentials{AccessToken: "opaque"}).Validate(now); err != nil {
		t.Fatalf("opaque token err = %v; want nil", err)
	}
	live := Credentials{AccessToken: signed(t, now.Add(time.Hour))}
	if err := live.Validate(now); err != nil {
		t.Fatalf("live token err = %v", err)
	}
	expired := Credentials{AccessToken: signed(t, now.Add(-time.Minute))}
	if err := expired.Validate(now); !errors.Is(err, ErrTokenExpired) || !IsAuth(err) {
		t.Fatalf("expired token err = %v; want ErrTokenExpired", err)
	}
	explicit := Credentials{AccessToken: "opaque", Expiry: now}
	if err := explicit.Validate(now); !IsAuth(err) {
		t.Fatalf("explicit expiry err = %v; want auth error", err)
	}
}

func TestCredentialsToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://hub.local/me", nil)
	Credentials{AccessToken: "abc", TokenType: "bearer"}.Token().SetAuthHeader(req)
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Fatalf("Authorization = %q", got)
	}
}
