package wardroom

import (
	"errors"
	"strings"
	"time"
)

// Outbound frame names.
const (
	FrameNewIssue     = "new-issue"
	FrameIssueUpdated = "issue-updated"
	FrameWardJoined   = "ward-joined"
	FrameWardLeft     = "ward-left"
	FramePong         = "pong"
	FrameError        = "error"
)

// Inbound frame names.
const (
	FrameJoinWard          = "join-ward"
	FrameLeaveWard         = "leave-ward"
	FrameChangeWard        = "change-ward"
	FramePing              = "ping"
	FrameIssueCreated      = "issue-created"
	FrameIssueStatusUpdate = "issue-status-update"
)

var (
	errMissingWard  = errors.New("ward is required")
	errMissingIssue = errors.New("issue id is required")
)

// OutboundEvent is a frame pushed to a connected client.
type OutboundEvent struct {
	Event     string    `json:"event"`
	Ward      string    `json:"ward,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	IssueID   string    `json:"issueId,omitempty"`
	Category  string    `json:"category,omitempty"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WardEvent is one of the closed set of events the hub fans out:
// IssueCreated or IssueStatusChanged.
type WardEvent interface {
	room() string
	validate() error
	frame(at time.Time) OutboundEvent
}

// IssueCreated announces a newly filed issue to its ward.
type IssueCreated struct {
	IssueID  string
	Ward     string
	Category string
	Title    string
}

func (e IssueCreated) room() string { return normalizeWard(e.Ward) }

func (e IssueCreated) validate() error {
	if e.room() == "" {
		return errMissingWard
	}
	if strings.TrimSpace(e.IssueID) == "" {
		return errMissingIssue
	}
	return nil
}

func (e IssueCreated) frame(at time.Time) OutboundEvent {
	return OutboundEvent{
		Event:     FrameNewIssue,
		Ward:      e.room(),
		IssueID:   e.IssueID,
		Category:  e.Category,
		Title:     e.Title,
		Timestamp: at,
	}
}

// IssueStatusChanged announces a committed status transition to its ward.
type IssueStatusChanged struct {
	IssueID string
	Ward    string
	Status  string
	Message string
}

func (e IssueStatusChanged) room() string { return normalizeWard(e.Ward) }

func (e IssueStatusChanged) validate() error {
	if e.room() == "" {
		return errMissingWard
	}
	if strings.TrimSpace(e.IssueID) == "" {
		return errMissingIssue
	}
	if strings.TrimSpace(e.Status) == "" {
		return errors.New("status is required")
	}
	return nil
}

func (e IssueStatusChanged) frame(at time.Time) OutboundEvent {
	return OutboundEvent{
		Event:     FrameIssueUpdated,
		Ward:      e.room(),
		IssueID:   e.IssueID,
		Status:    e.Status,
		Message:   e.Message,
		Timestamp: at,
	}
}

func normalizeWard(ward string) string {
	return strings.TrimSpace(ward)
}
