package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ReadFilter selects conversations by read state.
type ReadFilter int

const (
	ReadAll ReadFilter = iota
	ReadUnread
)

// ParseReadFilter accepts "all" and "unread".
func ParseReadFilter(raw string) (ReadFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return ReadAll, nil
	case "unread":
		return ReadUnread, nil
	default:
		return ReadAll, fmt.Errorf("%w: read filter %q", ErrInvalidInput, raw)
	}
}

// String returns the value the hub expects in is_read.
func (r ReadFilter) String() string {
	if r == ReadUnread {
		return "unread"
	}
	return "all"
}

// Filter is the inbox query. It is replaced wholesale on apply.
type Filter struct {
	Marketplace Marketplace // MarketplaceUnknown selects every marketplace
	AccountID   int         // 0 selects every account
	Read        ReadFilter
}

// DefaultFilter is every marketplace and account, unread only.
func DefaultFilter() Filter {
	return Filter{Read: ReadUnread}
}

// AllMarketplaces reports whether the filter spans every marketplace.
func (f Filter) AllMarketplaces() bool { return f.Marketplace == MarketplaceUnknown }

// Matches reports whether c passes the marketplace and account selectors.
// Read state is enforced by the hub, not here.
func (f Filter) Matches(c Conversation) bool {
	if f.Marketplace != MarketplaceUnknown && c.Marketplace != f.Marketplace {
		return false
	}
	if f.AccountID != 0 && c.AccountID != f.AccountID {
		return false
	}
	return true
}

// ParseFilter builds a Filter from the string forms used on the command
// line: marketplace "all"|"OZON"|"WB", account "all"|"<n>", read "all"|"unread".
func ParseFilter(marketplace, account, read string) (Filter, error) {
	var f Filter
	switch mp := strings.TrimSpace(marketplace); strings.ToLower(mp) {
	case "", "all":
	default:
		f.Marketplace = ParseMarketplace(mp)
		if f.Marketplace == MarketplaceUnknown {
			return Filter{}, fmt.Errorf("%w: marketplace %q", ErrInvalidInput, marketplace)
		}
	}
	switch acc := strings.TrimSpace(account); strings.ToLower(acc) {
	case "", "all":
	default:
		n, err := strconv.Atoi(acc)
		if err != nil || n <= 0 {
			return Filter{}, fmt.Errorf("%w: account %q", ErrInvalidInput, account)
		}
		f.AccountID = n
	}
	r, err := ParseReadFilter(read)
	if err != nil {
		return Filter{}, err
	}
	f.Read = r
	return f, nil
}

func (f Filter) String() string {
	acc := "all"
	if f.AccountID != 0 {
		acc = strconv.Itoa(f.AccountID)
	}
	return fmt.Sprintf("marketplace=%s account=%s read=%s", f.Marketplace, acc, f.Read)
}
