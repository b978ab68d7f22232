package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fixmyward/ward-service/internal/domain"
)

// IssueHistoryRepository stores status audit entries.
type IssueHistoryRepository interface {
	Record(ctx context.Context, change *domain.StatusChange) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.StatusChange, error)
}

type issueHistoryRepository struct {
	db DBTX
}

// NewIssueHistoryRepository builds repository.
func NewIssueHistoryRepository(db DBTX) IssueHistoryRepository {
	return &issueHistoryRepository{db: db}
}

func (r *issueHistoryRepository) Record(ctx context.Context, change *domain.StatusChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO issue_status_history (id, issue_id, changed_by_id, changed_by_name, from_status, to_status, note)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		change.ID,
		change.IssueID,
		change.ChangedByID,
		change.ChangedByName,
		string(change.From),
		string(change.To),
		change.Note,
	).Scan(&change.CreatedAt)
}

func (r *issueHistoryRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.StatusChange, error) {
	const query = `
        SELECT id, issue_id, changed_by_id, changed_by_name, from_status, to_status, note, created_at
        FROM issue_status_history WHERE issue_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.StatusChange{}
	for rows.Next() {
		var (
			change   domain.StatusChange
			from, to string
		)
		if err := rows.Scan(
			&change.ID,
			&change.IssueID,
			&change.ChangedByID,
			&change.ChangedByName,
			&from,
			&to,
			&change.Note,
			&change.CreatedAt,
		); err != nil {
			return nil, err
		}
		change.From, change.To = domain.IssueStatus(from), domain.IssueStatus(to)
		result = append(result, change)
	}
	return result, rows.Err()
}
