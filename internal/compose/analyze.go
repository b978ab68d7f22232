package compose

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/domain"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

// Analysis is advisory triage for a report before it is filed.
type Analysis struct {
	Summary         string               `json:"summary"`
	Category        domain.IssueCategory `json:"category"`
	Priority        domain.IssuePriority `json:"priority"`
	SuggestedAction string               `json:"suggestedAction,omitempty"`
	Degraded        bool                 `json:"degraded"`
}

var fallbackAnalysis = Analysis{
	Summary:  "Manual review required.",
	Category: domain.CategoryOther,
	Priority: domain.IssuePriorityMedium,
	Degraded: true,
}

// Analyze suggests a summary, category and priority for a report.
func (c *Composer) Analyze(ctx context.Context, title, description string) (Analysis, error) {
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if title == "" && description == "" {
		return Analysis{}, apperrors.NewValidationError("title or description is required", nil)
	}

	prompt := "Analyze this infrastructure issue for a local ward management system:\n" +
		"Title: " + title + "\nDescription: " + description + "\n\n" +
		"Provide a concise summary, suggest an appropriate category (one of: " + categoryList() + "), " +
		"recommend a priority level (Low, Medium, High) and a suggested action."

	text, err := c.generate(ctx, prompt, GenerateOptions{
		Temperature: 0.2,
		JSONSchema:  []string{"summary", "category", "priority", "suggestedAction"},
	})
	if err != nil {
		c.logger.Warn("issue analysis degraded", zap.Error(err))
		return fallbackAnalysis, nil
	}

	var raw struct {
		Summary         string `json:"summary"`
		Category        string `json:"category"`
		Priority        string `json:"priority"`
		SuggestedAction string `json:"suggestedAction"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil || strings.TrimSpace(raw.Summary) == "" {
		c.logger.Warn("issue analysis unparseable", zap.Error(err))
		return fallbackAnalysis, nil
	}

	out := Analysis{
		Summary:         strings.TrimSpace(raw.Summary),
		Category:        domain.CategoryOther,
		Priority:        domain.IssuePriorityMedium,
		SuggestedAction: strings.TrimSpace(raw.SuggestedAction),
	}
	if cat, ok := domain.ParseCategory(raw.Category); ok {
		out.Category = cat
	}
	for _, p := range []domain.IssuePriority{domain.IssuePriorityLow, domain.IssuePriorityMedium, domain.IssuePriorityHigh} {
		if strings.EqualFold(string(p), strings.TrimSpace(raw.Priority)) {
			out.Priority = p
		}
	}
	return out, nil
}

func categoryList() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
