package dto

import "time"

// LocationPayload is a point with an optional street address.
type LocationPayload struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Priority    string           `json:"priority"`
	Ward        string           `json:"ward"`
	Location    *LocationPayload `json:"location"`
	ImageURL    *string          `json:"image_url"`
	AIAnalysis  *string          `json:"ai_analysis"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// AnalyzeRequest asks for an advisory triage of a draft report.
type AnalyzeRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AnalyzeResponse is the advisory triage.
type AnalyzeResponse struct {
	Summary         string `json:"summary"`
	Category        string `json:"category"`
	Priority        string `json:"priority"`
	SuggestedAction string `json:"suggested_action,omitempty"`
	Degraded        bool   `json:"degraded"`
}

// IssueResponse provides full issue info.
type IssueResponse struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Status          string            `json:"status"`
	Priority        string            `json:"priority"`
	Ward            string            `json:"ward"`
	Location        *LocationPayload  `json:"location,omitempty"`
	ImageURL        *string           `json:"image_url,omitempty"`
	ReportedBy      string            `json:"reported_by"`
	ReportedByEmail string            `json:"reported_by_email"`
	ReportedByID    string            `json:"reported_by_id"`
	AssignedTo      *string           `json:"assigned_to,omitempty"`
	AIAnalysis      *string           `json:"ai_analysis,omitempty"`
	Comments        []CommentResponse `json:"comments"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusChangeResponse is one entry of an issue's status history.
type StatusChangeResponse struct {
	ID            string    `json:"id"`
	ChangedByID   string    `json:"changed_by_id"`
	ChangedByName string    `json:"changed_by_name"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
