package domain

import "time"

// NotificationType classifies outgoing messages.
type NotificationType string

const (
	NotificationSecurity   NotificationType = "SECURITY"
	NotificationDispatched NotificationType = "DISPATCHED"
	NotificationReceived   NotificationType = "RECEIVED"
	NotificationUpdate     NotificationType = "UPDATE"
	NotificationReset      NotificationType = "RESET"
)

// Notification is a composed message addressed to one user.
type Notification struct {
	ID        string
	To        string
	UserID    string
	Subject   string
	Body      string
	Type      NotificationType
	IssueID   *string
	Degraded  bool
	IsRead    bool
	CreatedAt time.Time
}
