package dto

import "time"

// ComposeRequest asks for a draft about an issue.
type ComposeRequest struct {
	Action  string `json:"action"`
	IssueID string `json:"issue_id"`
}

// DraftResponse is a composed notification that was not stored.
type DraftResponse struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Type     string `json:"type"`
	Degraded bool   `json:"degraded"`
}

// NotificationResponse is a stored notification.
type NotificationResponse struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	IssueID   *string   `json:"issue_id,omitempty"`
	Degraded  bool      `json:"degraded"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
