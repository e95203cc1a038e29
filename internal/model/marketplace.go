package model

import "strings"

// Marketplace identifies which marketplace integration owns a conversation.
// The zero value is MarketplaceUnknown, which filters treat as "all".
type Marketplace int

const (
	MarketplaceUnknown Marketplace = iota
	Ozon
	Wildberries
)

// Marketplaces returns every supported marketplace in a fixed order. The
// order doubles as the tie-breaker when merged lists share a timestamp.
func Marketplaces() []Marketplace {
	return []Marketplace{Ozon, Wildberries}
}

// ParseMarketplace maps a hub tag or filter value to a Marketplace,
// case-insensitively. Anything unrecognized (including "all") is Unknown.
func ParseMarketplace(raw string) Marketplace {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OZON":
		return Ozon
	case "WB", "WILDBERRIES":
		return Wildberries
	default:
		return MarketplaceUnknown
	}
}

// String returns the tag the hub uses for the marketplace.
func (m Marketplace) String() string {
	switch m {
	case Ozon:
		return "OZON"
	case Wildberries:
		return "WB"
	default:
		return "all"
	}
}

// wbSeparator appears in every Wildberries chat id ("1:4019cd7d-...") and in
// no Ozon one.
const wbSeparator = ":"

// ConversationID is a chat id tagged with the marketplace it came from. It is
// built once, by the adapter that ingests the chat, so dispatch never has to
// inspect the raw id again.
type ConversationID struct {
	Marketplace Marketplace
	NativeID    string
}

// NewConversationID tags a native id with its marketplace.
func NewConversationID(m Marketplace, nativeID string) ConversationID {
	return ConversationID{Marketplace: m, NativeID: nativeID}
}

// ParseConversationID recovers the marketplace of an untagged id from its
// shape. Ids containing ':' belong to Wildberries; every other shape falls
// back to Ozon, the default adapter.
func ParseConversationID(raw string) ConversationID {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, wbSeparator) {
		return ConversationID{Marketplace: Wildberries, NativeID: raw}
	}
	return ConversationID{Marketplace: Ozon, NativeID: raw}
}

func (id ConversationID) String() string { return id.NativeID }

// IsZero reports whether the id is empty.
func (id ConversationID) IsZero() bool { return id.NativeID == "" }
