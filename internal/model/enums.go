package model

import "strings"

// Role is the normalized author role of a message.
type Role int

const (
	RoleCustomer Role = iota
	RoleSeller
	RoleSupport
	RoleSystem
	RoleNotificationUser
)

// ParseRole maps the free-form role strings marketplaces send onto Role.
// Matching is case-insensitive and total: unmapped values are Customer.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "seller", "admin", "operator":
		return RoleSeller
	case "customer", "client", "user":
		return RoleCustomer
	case "support":
		return RoleSupport
	case "system":
		return RoleSystem
	case "notificationuser", "notification_user", "notification":
		return RoleNotificationUser
	default:
		return RoleCustomer
	}
}

func (r Role) String() string {
	switch r {
	case RoleSeller:
		return "Seller"
	case RoleSupport:
		return "Support"
	case RoleSystem:
		return "System"
	case RoleNotificationUser:
		return "NotificationUser"
	default:
		return "Customer"
	}
}

// ChatStatus is the lifecycle state of a conversation on the marketplace.
type ChatStatus int

const (
	ChatStatusUnknown ChatStatus = iota
	ChatOpened
	ChatClosed
	ChatProcessing
)

// ParseChatStatus maps hub status strings case-insensitively.
func ParseChatStatus(raw string) ChatStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OPENED", "OPEN":
		return ChatOpened
	case "CLOSED":
		return ChatClosed
	case "PROCESSING":
		return ChatProcessing
	default:
		return ChatStatusUnknown
	}
}

func (s ChatStatus) String() string {
	switch s {
	case ChatOpened:
		return "Opened"
	case ChatClosed:
		return "Closed"
	case ChatProcessing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// DeliveryStatus tracks an individual message.
type DeliveryStatus int

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "sent"
	}
}

// Direction selects which way a history page extends from its cursor.
type Direction string

const (
	Backward Direction = "Backward"
	Forward  Direction = "Forward"
)

// Valid reports whether d is one of the two directions the hub accepts.
func (d Direction) Valid() bool {
	return d == Backward || d == Forward
}
