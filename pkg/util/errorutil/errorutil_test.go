package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	notFound := ToDomainError(fmt.Errorf("get issue: %w", pgx.ErrNoRows))
	assert.Equal(t, CodeNotFound, notFound.Code)
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)

	dup := ToDomainError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.Equal(t, CodeConflict, dup.Code)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, "internal server error", internal.Message)
}

func TestDomainErrorPassThrough(t *testing.T) {
	original := NewForbidden("not your ward")
	wrapped := fmt.Errorf("update: %w", original)

	got := ToDomainError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code)
	assert.True(t, HasCode(wrapped, CodeForbidden))
	assert.False(t, HasCode(wrapped, CodeConflict))
}

func TestUnavailableUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewUnavailable("database unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "refused")
	assert.Nil(t, MapError(nil))
}
