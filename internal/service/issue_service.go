package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/events"
	"github.com/fixmyward/ward-service/internal/repository"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxCommentLength     = 2000
)

// IssueService coordinates issue workflows and publishes events once writes commit.
type IssueService struct {
	issues     repository.IssueRepository
	history    repository.IssueHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// IssueDependencies bundles requirements for issue service.
type IssueDependencies struct {
	IssueRepo   repository.IssueRepository
	HistoryRepo repository.IssueHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// IssueCreateInput describes a new report.
type IssueCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    string
	Ward        string
	Location    *domain.Location
	ImageURL    *string
	AIAnalysis  *string
}

// IssueListFilter describes caller-supplied list filters.
type IssueListFilter struct {
	Ward     string
	Status   string
	Category string
	Limit    int
	Offset   int
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{
		issues:     deps.IssueRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create files a report on behalf of a citizen. The ward defaults to the reporter's.
func (s *IssueService) Create(ctx context.Context, p *auth.Principal, in IssueCreateInput) (*domain.Issue, error) {
	if !p.IsCitizen() {
		return nil, apperrors.NewForbidden("only citizens can report issues")
	}

	issue, err := buildIssue(p, in)
	if err != nil {
		return nil, err
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, apperrors.MapError(err)
	}
	issue.Comments = []domain.Comment{}

	s.publishEvent(ctx, events.New(events.EventIssueCreated, issue.ID, p.UserID, events.IssueCreatedPayload{
		Ward:            issue.Ward,
		Category:        issue.Category,
		Title:           issue.Title,
		ReportedByID:    issue.ReportedByID,
		ReportedByEmail: issue.ReportedByEmail,
	}))
	return issue, nil
}

// List returns issues visible to the caller, newest first.
// Citizens only see their own reports; councillors only see their ward.
func (s *IssueService) List(ctx context.Context, p *auth.Principal, filter IssueListFilter) ([]domain.Issue, error) {
	repoFilter := repository.IssueFilter{
		Ward:   strings.TrimSpace(filter.Ward),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if filter.Status != "" {
		status := domain.IssueStatus(strings.ToUpper(strings.TrimSpace(filter.Status)))
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": filter.Status})
		}
		repoFilter.Status = status
	}
	if filter.Category != "" {
		category, ok := domain.ParseCategory(filter.Category)
		if !ok {
			return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": filter.Category})
		}
		repoFilter.Category = category
	}

	switch p.Role {
	case domain.RoleCitizen:
		repoFilter.ReportedByID = p.UserID
	case domain.RoleCouncillor:
		repoFilter.Ward = p.Ward
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}

	issues, err := s.issues.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	return issues, nil
}

// Get returns an issue with its comments when the caller may see it.
func (s *IssueService) Get(ctx context.Context, p *auth.Principal, id string) (*domain.Issue, error) {
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(p, issue); err != nil {
		return nil, err
	}
	return s.withComments(ctx, issue)
}

// UpdateStatus moves an issue along its lifecycle. Only a councillor of the
// issue's ward may do so, and becomes its assignee. The ward is notified
// only after the write commits.
func (s *IssueService) UpdateStatus(ctx context.Context, p *auth.Principal, id, status, note string) (*domain.Issue, error) {
	if !p.IsCouncillor() {
		return nil, apperrors.NewForbidden("only councillors can update issue status")
	}
	next := domain.IssueStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Ward != p.Ward {
		return nil, apperrors.NewForbidden("can only update issues in your ward")
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": current.Status,
			"to":   next,
		})
	}

	assignee := p.UserID
	updated, err := s.issues.UpdateStatus(ctx, id, current.Status, next, &assignee)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, apperrors.NewConflict("issue was updated concurrently; reload and retry", map[string]any{"id": id})
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": id})
		default:
			return nil, apperrors.MapError(err)
		}
	}

	note = strings.TrimSpace(note)
	s.recordChange(ctx, p, current.Status, updated, note)

	message := note
	if message == "" {
		message = fmt.Sprintf("Issue status updated to %s", next)
	}
	s.publishEvent(ctx, events.New(events.EventIssueStatusChanged, updated.ID, p.UserID, events.IssueStatusChangedPayload{
		Ward:            updated.Ward,
		Title:           updated.Title,
		OldStatus:       current.Status,
		NewStatus:       updated.Status,
		Message:         message,
		ReportedByID:    updated.ReportedByID,
		ReportedByEmail: updated.ReportedByEmail,
	}))

	return s.withComments(ctx, updated)
}

// History lists an issue's status changes, oldest first.
func (s *IssueService) History(ctx context.Context, p *auth.Principal, id string) ([]domain.StatusChange, error) {
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(p, issue); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.StatusChange{}, nil
	}
	changes, err := s.history.ListByIssue(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return changes, nil
}

// recordChange keeps the audit trail. The status write has already
// committed, so a failure here is logged rather than returned.
func (s *IssueService) recordChange(ctx context.Context, p *auth.Principal, from domain.IssueStatus, updated *domain.Issue, note string) {
	if s.history == nil {
		return
	}
	change := &domain.StatusChange{
		IssueID:       updated.ID,
		ChangedByID:   p.UserID,
		ChangedByName: p.Name,
		From:          from,
		To:            updated.Status,
		Note:          note,
	}
	if err := s.history.Record(ctx, change); err != nil {
		s.logger.Warn("failed to record status change",
			zap.String("issue_id", updated.ID),
			zap.Error(err))
	}
}

// AddComment appends to the issue's thread. Comments are not pushed to ward rooms.
func (s *IssueService) AddComment(ctx context.Context, p *auth.Principal, id, text string) (*domain.Issue, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text is required", nil)
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment too long", map[string]any{"max": maxCommentLength})
	}

	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(p, issue); err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		IssueID:  issue.ID,
		UserID:   p.UserID,
		UserName: p.Name,
		Text:     text,
	}
	if err := s.issues.AddComment(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.withComments(ctx, issue)
}

// Delete removes an issue. Only its reporter may do so.
func (s *IssueService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	issue, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if issue.ReportedByID != p.UserID {
		return apperrors.NewForbidden("only the reporter can delete this issue")
	}
	deleted, err := s.issues.Delete(ctx, id, p.UserID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !deleted {
		return apperrors.NewNotFound("issue", map[string]any{"id": id})
	}
	return nil
}

func (s *IssueService) load(ctx context.Context, id string) (*domain.Issue, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("issue id is required", nil)
	}
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return issue, nil
}

func (s *IssueService) withComments(ctx context.Context, issue *domain.Issue) (*domain.Issue, error) {
	comments, err := s.issues.ListComments(ctx, issue.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	issue.Comments = comments
	return issue, nil
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func canView(p *auth.Principal, issue *domain.Issue) error {
	switch {
	case p.IsCitizen() && issue.ReportedByID == p.UserID:
		return nil
	case p.IsCouncillor() && issue.Ward == p.Ward:
		return nil
	default:
		return apperrors.NewForbidden("access denied")
	}
}

func buildIssue(p *auth.Principal, in IssueCreateInput) (*domain.Issue, error) {
	details := map[string]any{}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	switch {
	case title == "":
		details["title"] = "required"
	case utf8.RuneCountInString(title) > maxTitleLength:
		details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLength)
	}
	switch {
	case description == "":
		details["description"] = "required"
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		details["description"] = fmt.Sprintf("must be at most %d characters", maxDescriptionLength)
	}

	category, ok := domain.ParseCategory(in.Category)
	if !ok {
		details["category"] = "unknown category"
	}

	priority := domain.IssuePriorityMedium
	if strings.TrimSpace(in.Priority) != "" {
		priority = domain.IssuePriority(strings.TrimSpace(in.Priority))
		if !priority.Valid() {
			details["priority"] = "must be Low, Medium or High"
		}
	}

	ward := strings.TrimSpace(in.Ward)
	if ward == "" {
		ward = p.Ward
	}
	if ward == "" {
		details["ward"] = "required"
	}

	if loc := in.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
			details["location"] = "coordinates out of range"
		}
	}

	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid issue", details)
	}

	return &domain.Issue{
		Title:           title,
		Description:     description,
		Category:        category,
		Status:          domain.IssueStatusPending,
		Priority:        priority,
		Ward:            ward,
		Location:        in.Location,
		ImageURL:        in.ImageURL,
		AIAnalysis:      in.AIAnalysis,
		ReportedBy:      p.Name,
		ReportedByEmail: p.Email,
		ReportedByID:    p.UserID,
	}, nil
}
