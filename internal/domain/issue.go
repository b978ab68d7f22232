package domain

import (
	"strings"
	"time"
)

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "PENDING"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusRejected   IssueStatus = "REJECTED"
)

var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusPending:    {IssueStatusInProgress, IssueStatusResolved, IssueStatusRejected},
	IssueStatusInProgress: {IssueStatusResolved, IssueStatusRejected},
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusResolved, IssueStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusResolved || s == IssueStatusRejected
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s IssueStatus) CanTransitionTo(next IssueStatus) bool {
	for _, allowed := range issueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IssuePriority enumerates triage urgency.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "Low"
	IssuePriorityMedium IssuePriority = "Medium"
	IssuePriorityHigh   IssuePriority = "High"
)

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	return p == IssuePriorityLow || p == IssuePriorityMedium || p == IssuePriorityHigh
}

// IssueCategory is the kind of infrastructure problem reported.
type IssueCategory string

const (
	CategoryPothole         IssueCategory = "Pothole"
	CategoryStreetLight     IssueCategory = "Street Light"
	CategoryWasteManagement IssueCategory = "Waste Management"
	CategoryRoadDamage      IssueCategory = "Road Damage"
	CategoryTrafficSignal   IssueCategory = "Traffic Signal"
	CategoryWaterSupply     IssueCategory = "Water Supply"
	CategoryDrainage        IssueCategory = "Drainage"
	CategoryParkMaintenance IssueCategory = "Park Maintenance"
	CategoryOther           IssueCategory = "Other"
)

// Categories lists every accepted category in display order.
var Categories = []IssueCategory{
	CategoryPothole,
	CategoryStreetLight,
	CategoryWasteManagement,
	CategoryRoadDamage,
	CategoryTrafficSignal,
	CategoryWaterSupply,
	CategoryDrainage,
	CategoryParkMaintenance,
	CategoryOther,
}

// ParseCategory matches s case-insensitively against known categories.
func ParseCategory(s string) (IssueCategory, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Location is where an issue was observed.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Issue is the aggregate for a reported ward problem.
type Issue struct {
	ID              string
	Title           string
	Description     string
	Category        IssueCategory
	Status          IssueStatus
	Priority        IssuePriority
	Ward            string
	Location        *Location
	ImageURL        *string
	ReportedBy      string
	ReportedByEmail string
	ReportedByID    string
	AssignedTo      *string
	AIAnalysis      *string
	Comments        []Comment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Comment is an entry in an issue's discussion thread.
type Comment struct {
	ID        string
	IssueID   string
	UserID    string
	UserName  string
	Text      string
	CreatedAt time.Time
}
