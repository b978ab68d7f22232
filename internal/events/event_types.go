package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/fixmyward/ward-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventUserLoggedIn       EventType = "user_logged_in"
	EventPasswordReset      EventType = "password_reset_requested"
)

// Event represents a domain event emitted by services after a committed write.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id,omitempty"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType EventType, issueID, actorID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Ward            string               `json:"ward"`
	Category        domain.IssueCategory `json:"category"`
	Title           string               `json:"title"`
	ReportedByID    string               `json:"reported_by_id"`
	ReportedByEmail string               `json:"reported_by_email"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	Ward            string             `json:"ward"`
	Title           string             `json:"title"`
	OldStatus       domain.IssueStatus `json:"old_status"`
	NewStatus       domain.IssueStatus `json:"new_status"`
	Message         string             `json:"message"`
	ReportedByID    string             `json:"reported_by_id"`
	ReportedByEmail string             `json:"reported_by_email"`
}

// UserLoggedInPayload payload.
type UserLoggedInPayload struct {
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// PasswordResetPayload carries the link a reset email must contain.
type PasswordResetPayload struct {
	ResetLink string    `json:"reset_link"`
	ExpiresAt time.Time `json:"expires_at"`
}
