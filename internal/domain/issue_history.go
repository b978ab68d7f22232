package domain

import "time"

// StatusChange is an immutable audit entry written whenever an issue moves
// between statuses.
type StatusChange struct {
	ID            string
	IssueID       string
	ChangedByID   string
	ChangedByName string
	From          IssueStatus
	To            IssueStatus
	Note          string
	CreatedAt     time.Time
}
