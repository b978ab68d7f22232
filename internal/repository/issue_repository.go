package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixmyward/ward-service/internal/domain"
)

// ErrStaleStatus means the issue changed status between read and write.
var ErrStaleStatus = errors.New("issue status changed concurrently")

// IssueFilter captures list parameters. Zero values are ignored.
type IssueFilter struct {
	ReportedByID string
	Ward         string
	Status       domain.IssueStatus
	Category     domain.IssueCategory
	Limit        int
	Offset       int
}

// IssueRepository encapsulates issue and comment persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.IssueStatus, assignedTo *string) (*domain.Issue, error)
	Delete(ctx context.Context, id, reporterID string) (bool, error)
	AddComment(ctx context.Context, comment *domain.Comment) error
	ListComments(ctx context.Context, issueID string) ([]domain.Comment, error)
}

type issueRepository struct {
	db DBTX
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(db DBTX) IssueRepository {
	return &issueRepository{db: db}
}

const issueColumns = `id, title, description, category, status, priority, ward,
               location_lat, location_lng, location_address, image_url,
               reported_by, reported_by_email, reported_by_id, assigned_to, ai_analysis,
               created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	var lat, lng *float64
	var address *string
	if issue.Location != nil {
		lat, lng = &issue.Location.Lat, &issue.Location.Lng
		if issue.Location.Address != "" {
			address = &issue.Location.Address
		}
	}

	const query = `
        INSERT INTO issues (id, title, description, category, status, priority, ward,
            location_lat, location_lng, location_address, image_url,
            reported_by, reported_by_email, reported_by_id, ai_analysis)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		string(issue.Category),
		string(issue.Status),
		string(issue.Priority),
		issue.Ward,
		lat,
		lng,
		address,
		issue.ImageURL,
		issue.ReportedBy,
		issue.ReportedByEmail,
		issue.ReportedByID,
		issue.AIAnalysis,
	).Scan(&issue.CreatedAt, &issue.UpdatedAt)
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	return scanIssue(r.db.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id))
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ReportedByID != "" {
		args = append(args, filter.ReportedByID)
		clauses = append(clauses, fmt.Sprintf("reported_by_id=$%d", len(args)))
	}
	if filter.Ward != "" {
		args = append(args, filter.Ward)
		clauses = append(clauses, fmt.Sprintf("ward=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		issueColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// UpdateStatus moves the issue from one status to another only if it is still in from.
// A missing issue yields pgx.ErrNoRows; a status that moved underneath yields ErrStaleStatus.
func (r *issueRepository) UpdateStatus(ctx context.Context, id string, from, to domain.IssueStatus, assignedTo *string) (*domain.Issue, error) {
	query := `
        UPDATE issues SET status=$1, assigned_to=COALESCE($2, assigned_to), updated_at=NOW()
        WHERE id=$3 AND status=$4
        RETURNING ` + issueColumns
	issue, err := scanIssue(r.db.QueryRow(ctx, query, string(to), assignedTo, id, string(from)))
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, pgx.ErrNoRows
	}
	return nil, ErrStaleStatus
}

func (r *issueRepository) Delete(ctx context.Context, id, reporterID string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM issues WHERE id=$1 AND reported_by_id=$2`, id, reporterID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *issueRepository) AddComment(ctx context.Context, comment *domain.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO issue_comments (id, issue_id, user_id, user_name, text)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	if err := r.db.QueryRow(ctx, query,
		comment.ID,
		comment.IssueID,
		comment.UserID,
		comment.UserName,
		comment.Text,
	).Scan(&comment.CreatedAt); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `UPDATE issues SET updated_at=NOW() WHERE id=$1`, comment.IssueID)
	return err
}

func (r *issueRepository) ListComments(ctx context.Context, issueID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, issue_id, user_id, user_name, text, created_at
        FROM issue_comments WHERE issue_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.UserID, &c.UserName, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var (
		issue                      domain.Issue
		category, status, priority string
		lat, lng                   *float64
		address                    *string
	)
	if err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&category,
		&status,
		&priority,
		&issue.Ward,
		&lat,
		&lng,
		&address,
		&issue.ImageURL,
		&issue.ReportedBy,
		&issue.ReportedByEmail,
		&issue.ReportedByID,
		&issue.AssignedTo,
		&issue.AIAnalysis,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	issue.Category = domain.IssueCategory(category)
	issue.Status = domain.IssueStatus(status)
	issue.Priority = domain.IssuePriority(priority)
	if lat != nil && lng != nil {
		issue.Location = &domain.Location{Lat: *lat, Lng: *lng}
		if address != nil {
			issue.Location.Address = *address
		}
	}
	return &issue, nil
}
