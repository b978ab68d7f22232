package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PasswordReset is a single-use token that lets a user choose a new password.
type PasswordReset struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetRepository manages reset token persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *PasswordReset) error
	// Consume marks an unused, unexpired token as used and returns it.
	// Unknown, spent and expired tokens all yield pgx.ErrNoRows.
	Consume(ctx context.Context, token string, now time.Time) (*PasswordReset, error)
}

type passwordResetRepository struct {
	db DBTX
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(db DBTX) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *PasswordReset) error {
	if reset.ID == "" {
		reset.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO password_reset_tokens (id, user_id, token, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		reset.ID,
		reset.UserID,
		reset.Token,
		reset.ExpiresAt,
	).Scan(&reset.CreatedAt)
}

func (r *passwordResetRepository) Consume(ctx context.Context, token string, now time.Time) (*PasswordReset, error) {
	const query = `
        UPDATE password_reset_tokens SET used_at=$2
        WHERE token=$1 AND used_at IS NULL AND expires_at > $2
        RETURNING id, user_id, token, expires_at, used_at, created_at`
	var reset PasswordReset
	if err := r.db.QueryRow(ctx, query, token, now).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.Token,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &reset, nil
}
