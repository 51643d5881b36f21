package model

import (
	"errors"
	"time"
)

// ErrUnknownNotifyKind is returned for a kind other than the two below.
var ErrUnknownNotifyKind = errors.New("unknown notification kind")

// Notification kinds.
const (
	NotifyApproval   = "approval"
	NotifyAcceptance = "acceptance"
)

// ValidNotifyKind reports whether kind is a known notification kind.
func ValidNotifyKind(kind string) bool {
	return kind == NotifyApproval || kind == NotifyAcceptance
}

// Notification is one message about a transfer, as published to the broker
// and returned by the resend endpoints.
type Notification struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TransferID int64     `json:"transfer_id"`
	RequestNo  string    `json:"request_no"`
	Recipients []string  `json:"recipients"`
	SentBy     string    `json:"sent_by"`
	Reminder   bool      `json:"reminder,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoutingKey is the topic the notification is published under.
func (n Notification) RoutingKey() string {
	return "transfer." + n.Kind
}
