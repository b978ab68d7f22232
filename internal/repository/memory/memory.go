// Package memory holds process-local stores used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/repository"
)

var (
	_ repository.UserRepository          = (*Users)(nil)
	_ repository.IssueRepository         = (*Issues)(nil)
	_ repository.NotificationRepository  = (*Notifications)(nil)
	_ repository.PasswordResetRepository = (*PasswordResets)(nil)
	_ repository.IssueHistoryRepository  = (*History)(nil)
)

// Errors mirror what the pgx repositories return so services behave the same.
var errUnique = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

// Users stores accounts.
type Users struct {
	mu   sync.RWMutex
	byID map[string]domain.User
}

// NewUsers returns a store seeded with users.
func NewUsers(users ...domain.User) *Users {
	s := &Users{byID: make(map[string]domain.User)}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *Users) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Username == u.Username || existing.Email == u.Email {
			return errUnique
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	s.byID[u.ID] = *u
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (s *Users) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return s.find(func(u domain.User) bool { return u.Username == username })
}

func (s *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u domain.User) bool { return u.Email == email })
}

func (s *Users) ListByWardAndRole(_ context.Context, ward string, role domain.Role) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.User{}
	for _, u := range s.byID {
		if u.Ward == ward && u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Users) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	s.byID[id] = u
	return nil
}

func (s *Users) find(match func(domain.User) bool) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// Issues stores issues and their comments.
type Issues struct {
	mu       sync.RWMutex
	byID     map[string]domain.Issue
	comments map[string][]domain.Comment
	order    int64
	now      func() time.Time
}

// NewIssues returns an empty store.
func NewIssues() *Issues {
	return &Issues{
		byID:     make(map[string]domain.Issue),
		comments: make(map[string][]domain.Comment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Issues) Create(_ context.Context, issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	// Strictly increasing timestamps keep newest-first ordering stable.
	s.order++
	issue.CreatedAt = s.now().Add(time.Duration(s.order) * time.Microsecond)
	issue.UpdatedAt = issue.CreatedAt
	s.byID[issue.ID] = cloneIssue(*issue)
	return nil
}

func (s *Issues) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneIssue(issue)
	return &out, nil
}

func (s *Issues) List(_ context.Context, f repository.IssueFilter) ([]domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Issue{}
	for _, issue := range s.byID {
		switch {
		case f.ReportedByID != "" && issue.ReportedByID != f.ReportedByID:
			continue
		case f.Ward != "" && issue.Ward != f.Ward:
			continue
		case f.Status != "" && issue.Status != f.Status:
			continue
		case f.Category != "" && issue.Category != f.Category:
			continue
		}
		out = append(out, cloneIssue(issue))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []domain.Issue{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// UpdateStatus is a compare-and-set on the current status, like the SQL version.
func (s *Issues) UpdateStatus(_ context.Context, id string, from, to domain.IssueStatus, assignedTo *string) (*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if issue.Status != from {
		return nil, repository.ErrStaleStatus
	}
	issue.Status = to
	if assignedTo != nil {
		assignee := *assignedTo
		issue.AssignedTo = &assignee
	}
	issue.UpdatedAt = s.now()
	s.byID[id] = issue
	out := cloneIssue(issue)
	return &out, nil
}

func (s *Issues) Delete(_ context.Context, id, reporterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	if !ok || issue.ReportedByID != reporterID {
		return false, nil
	}
	delete(s.byID, id)
	delete(s.comments, id)
	return true, nil
}

func (s *Issues) AddComment(_ context.Context, c *domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.IssueID]; !ok {
		return pgx.ErrNoRows
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now()
	s.comments[c.IssueID] = append(s.comments[c.IssueID], *c)
	return nil
}

func (s *Issues) ListComments(_ context.Context, issueID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Comment{}, s.comments[issueID]...), nil
}

func cloneIssue(issue domain.Issue) domain.Issue {
	if issue.Location != nil {
		loc := *issue.Location
		issue.Location = &loc
	}
	issue.Comments = nil
	return issue
}

// Notifications stores composed notifications.
type Notifications struct {
	mu    sync.RWMutex
	items []domain.Notification
}

// NewNotifications returns an empty store.
func NewNotifications() *Notifications {
	return &Notifications{}
}

func (s *Notifications) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	s.items = append(s.items, *n)
	return nil
}

func (s *Notifications) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	out := []domain.Notification{}
	skipped := 0
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		if s.items[i].UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, s.items[i])
	}
	return out, nil
}

func (s *Notifications) MarkRead(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].UserID == userID {
			s.items[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

// All returns every stored notification in insertion order.
func (s *Notifications) All() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification{}, s.items...)
}

// PasswordResets stores reset tokens.
type PasswordResets struct {
	mu      sync.Mutex
	byToken map[string]repository.PasswordReset
}

// NewPasswordResets returns an empty store.
func NewPasswordResets() *PasswordResets {
	return &PasswordResets{byToken: make(map[string]repository.PasswordReset)}
}

func (s *PasswordResets) Create(_ context.Context, r *repository.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[r.Token]; exists {
		return errUnique
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	s.byToken[r.Token] = *r
	return nil
}

func (s *PasswordResets) Consume(_ context.Context, token string, now time.Time) (*repository.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byToken[token]
	if !ok || r.UsedAt != nil || !r.ExpiresAt.After(now) {
		return nil, pgx.ErrNoRows
	}
	used := now
	r.UsedAt = &used
	s.byToken[token] = r
	return &r, nil
}

// History stores issue status changes.
type History struct {
	mu      sync.RWMutex
	byIssue map[string][]domain.StatusChange
}

// NewHistory returns an empty store.
func NewHistory() *History {
	return &History{byIssue: make(map[string][]domain.StatusChange)}
}

func (s *History) Record(_ context.Context, change *domain.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	change.CreatedAt = time.Now().UTC()
	s.byIssue[change.IssueID] = append(s.byIssue[change.IssueID], *change)
	return nil
}

func (s *History) ListByIssue(_ context.Context, issueID string) ([]domain.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StatusChange{}, s.byIssue[issueID]...), nil
}
