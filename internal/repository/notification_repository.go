package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixmyward/ward-service/internal/domain"
)

// NotificationRepository stores composed notifications for audit and read state.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationRepository struct {
	db DBTX
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO notifications (id, user_id, recipient, subject, body, type, issue_id, degraded)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.To,
		n.Subject,
		n.Body,
		string(n.Type),
		n.IssueID,
		n.Degraded,
	).Scan(&n.CreatedAt)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	limit, offset = clampPage(limit, offset)
	const query = `
        SELECT id, user_id, recipient, subject, body, type, issue_id, degraded, is_read, created_at
        FROM notifications WHERE user_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Notification{}
	for rows.Next() {
		var (
			n     domain.Notification
			ntype string
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.To,
			&n.Subject,
			&n.Body,
			&ntype,
			&n.IssueID,
			&n.Degraded,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(ntype)
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead flags a notification owned by userID as read.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
