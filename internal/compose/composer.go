package compose

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/domain"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

// GenerateOptions tunes one generation call.
type GenerateOptions struct {
	Temperature float32
	// JSONSchema asks for a JSON object with these string properties.
	JSONSchema []string
}

// TextGenerator produces free text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Draft is a composed notification.
type Draft struct {
	Subject  string                  `json:"subject"`
	Body     string                  `json:"body"`
	Type     domain.NotificationType `json:"type"`
	Degraded bool                    `json:"degraded"`
}

// Composer writes notification drafts, preferring the generator and
// falling back to fixed templates.
type Composer struct {
	generator TextGenerator
	cache     DraftCache
	timeout   time.Duration
	ttl       time.Duration
	logger    *zap.Logger
}

// Options configures a Composer. Generator and Cache may be nil.
type Options struct {
	Generator TextGenerator
	Cache     DraftCache
	Timeout   time.Duration
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// NewComposer builds a composer.
func NewComposer(opts Options) *Composer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Composer{
		generator: opts.Generator,
		cache:     opts.Cache,
		timeout:   opts.Timeout,
		ttl:       opts.CacheTTL,
		logger:    opts.Logger,
	}
}

// Compose returns a draft for action. It only fails on invalid input; a
// generator failure yields a templated draft with Degraded set.
func (c *Composer) Compose(ctx context.Context, action Action, in Input) (Draft, error) {
	if err := validateInput(action, in); err != nil {
		return Draft{}, err
	}

	key := cacheKey(action, in)
	if key != "" && c.cache != nil {
		draft, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Debug("draft cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return draft, nil
		}
	}

	draft := Draft{
		Subject: subjectFor(action, in),
		Type:    action.NotificationType(),
	}

	body, err := c.generate(ctx, promptFor(action, in), GenerateOptions{Temperature: 0.7})
	if err != nil {
		c.logger.Warn("notification body generation degraded",
			zap.String("action", string(action)),
			zap.Error(err))
		draft.Body = fallbackBody(action, in)
		draft.Degraded = true
		return draft, nil
	}
	draft.Body = body

	if key != "" && c.cache != nil {
		if err := c.cache.Set(ctx, key, draft, c.ttl); err != nil {
			c.logger.Debug("draft cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return draft, nil
}

func (c *Composer) generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if c.generator == nil {
		return "", errGeneratorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyGeneration
	}
	return text, nil
}

func validateInput(action Action, in Input) error {
	if _, ok := ParseAction(string(action)); !ok {
		return apperrors.NewValidationError("unknown notification action", map[string]any{"action": action})
	}
	if action.needsIssue() && in.Issue == nil {
		return apperrors.NewValidationError("issue is required", map[string]any{"action": action})
	}
	if !action.needsIssue() && in.User == nil {
		return apperrors.NewValidationError("user is required", map[string]any{"action": action})
	}
	if action == ActionPasswordReset && strings.TrimSpace(in.ResetLink) == "" {
		return apperrors.NewValidationError("reset link is required", nil)
	}
	return nil
}

// cacheKey is empty for per-user actions, which are never cached.
func cacheKey(action Action, in Input) string {
	if !action.needsIssue() {
		return ""
	}
	return "notify:draft:" + string(action) + ":" + in.Issue.ID + ":" + string(in.Issue.Status)
}
