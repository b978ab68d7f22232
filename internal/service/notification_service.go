package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/compose"
	"github.com/fixmyward/ward-service/internal/config"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/events"
	"github.com/fixmyward/ward-service/internal/repository"
	"github.com/fixmyward/ward-service/internal/worker"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

// DraftComposer writes notification drafts.
type DraftComposer interface {
	Compose(ctx context.Context, action compose.Action, in compose.Input) (compose.Draft, error)
}

// JobRunner runs background work off the request path.
type JobRunner interface {
	Submit(job worker.Job) error
}

// NotificationService turns domain events into stored notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	issues        repository.IssueRepository
	composer      DraftComposer
	jobs          JobRunner
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	cfg           config.NotificationConfig
}

// NotificationDependencies bundles requirements for the notification service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	IssueRepo        repository.IssueRepository
	Composer         DraftComposer
	Jobs             JobRunner
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(cfg config.NotificationConfig, deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		issues:        deps.IssueRepo,
		composer:      deps.Composer,
		jobs:          deps.Jobs,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		cfg:           cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueCreated, n.handleIssueCreated)
	n.dispatcher.Subscribe(events.EventIssueStatusChanged, n.handleIssueStatusChanged)
	n.dispatcher.Subscribe(events.EventUserLoggedIn, n.handleUserLoggedIn)
	n.dispatcher.Subscribe(events.EventPasswordReset, n.handlePasswordReset)
}

// List returns the caller's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, p *auth.Principal, limit, offset int) ([]domain.Notification, error) {
	items, err := n.notifications.ListByUser(ctx, p.UserID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, p *auth.Principal, id string) error {
	if err := n.notifications.MarkRead(ctx, id, p.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// ComposeForIssue drafts a notification about an issue the caller can see.
// Nothing is stored or sent.
func (n *NotificationService) ComposeForIssue(ctx context.Context, p *auth.Principal, action, issueID string) (compose.Draft, error) {
	a, ok := compose.ParseAction(action)
	if !ok {
		return compose.Draft{}, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
	}
	if a != compose.ActionNewReport && a != compose.ActionReportResult && a != compose.ActionStatusChange {
		return compose.Draft{}, apperrors.NewValidationError("action does not describe an issue", map[string]any{"action": action})
	}

	issue, err := n.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return compose.Draft{}, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		}
		return compose.Draft{}, apperrors.MapError(err)
	}
	if err := canView(p, issue); err != nil {
		return compose.Draft{}, err
	}
	return n.composer.Compose(ctx, a, compose.Input{Issue: issue, User: p.User})
}

func (n *NotificationService) handleIssueCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.submit("issue_created:"+event.IssueID, func(ctx context.Context) error {
		issue, err := n.issues.GetByID(ctx, event.IssueID)
		if err != nil {
			return fmt.Errorf("load issue: %w", err)
		}

		var errs []error
		receipt := recipient{userID: payload.ReportedByID, to: payload.ReportedByEmail}
		if err := n.deliver(ctx, compose.ActionReportResult, receipt, issue); err != nil {
			errs = append(errs, err)
		}

		councillors, err := n.users.ListByWardAndRole(ctx, payload.Ward, domain.RoleCouncillor)
		if err != nil {
			return errors.Join(append(errs, fmt.Errorf("list councillors: %w", err))...)
		}
		for _, c := range councillors {
			if err := n.deliver(ctx, compose.ActionNewReport, recipient{userID: c.ID, to: c.Email}, issue); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func (n *NotificationService) handleIssueStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.submit("issue_status_changed:"+event.IssueID, func(ctx context.Context) error {
		issue, err := n.issues.GetByID(ctx, event.IssueID)
		if err != nil {
			return fmt.Errorf("load issue: %w", err)
		}
		// Compose against the status this event announced, not a later one.
		issue.Status = payload.NewStatus
		return n.deliver(ctx, compose.ActionStatusChange, recipient{userID: payload.ReportedByID, to: payload.ReportedByEmail}, issue)
	})
}

func (n *NotificationService) handleUserLoggedIn(_ context.Context, event events.Event) error {
	if _, ok := event.Payload.(events.UserLoggedInPayload); !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.submit("user_logged_in:"+event.ActorID, func(ctx context.Context) error {
		user, err := n.users.GetByID(ctx, event.ActorID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		draft, err := n.composer.Compose(ctx, compose.ActionLoginAlert, compose.Input{User: user})
		if err != nil {
			return err
		}
		return n.store(ctx, recipient{userID: user.ID, to: user.Email}, draft, nil)
	})
}

func (n *NotificationService) handlePasswordReset(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.submit("password_reset:"+event.ActorID, func(ctx context.Context) error {
		user, err := n.users.GetByID(ctx, event.ActorID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		draft, err := n.composer.Compose(ctx, compose.ActionPasswordReset, compose.Input{User: user, ResetLink: payload.ResetLink})
		if err != nil {
			return err
		}
		return n.store(ctx, recipient{userID: user.ID, to: user.Email}, draft, nil)
	})
}

type recipient struct {
	userID string
	to     string
}

func (n *NotificationService) deliver(ctx context.Context, action compose.Action, to recipient, issue *domain.Issue) error {
	draft, err := n.composer.Compose(ctx, action, compose.Input{Issue: issue})
	if err != nil {
		return err
	}
	issueID := issue.ID
	return n.store(ctx, to, draft, &issueID)
}

func (n *NotificationService) store(ctx context.Context, to recipient, draft compose.Draft, issueID *string) error {
	if strings.TrimSpace(to.userID) == "" {
		return errors.New("notification recipient has no user id")
	}
	record := &domain.Notification{
		To:       to.to,
		UserID:   to.userID,
		Subject:  draft.Subject,
		Body:     draft.Body,
		Type:     draft.Type,
		IssueID:  issueID,
		Degraded: draft.Degraded,
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	n.logger.Debug("notification stored",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", record.To),
		zap.String("type", string(record.Type)),
		zap.Bool("degraded", record.Degraded))
	return nil
}

func (n *NotificationService) submit(name string, run func(ctx context.Context) error) error {
	if n.jobs == nil {
		return errors.New("notification jobs are not configured")
	}
	return n.jobs.Submit(worker.Job{Name: name, Run: run})
}
