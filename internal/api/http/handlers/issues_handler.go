package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fixmyward/ward-service/internal/api/dto"
	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/compose"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/service"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// IssuesHandler manages issue endpoints for citizens and councillors.
type IssuesHandler struct {
	service  *service.IssueService
	composer *compose.Composer
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issueService *service.IssueService, composer *compose.Composer) *IssuesHandler {
	return &IssuesHandler{service: issueService, composer: composer}
}

// CreateIssue POST /issues.
func (h *IssuesHandler) CreateIssue(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.IssueCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Ward:        req.Ward,
		ImageURL:    req.ImageURL,
		AIAnalysis:  req.AIAnalysis,
	}
	if req.Location != nil {
		input.Location = &domain.Location{Lat: req.Location.Lat, Lng: req.Location.Lng, Address: req.Location.Address}
	}

	issue, err := h.service.Create(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": issueResponse(issue)})
}

// ListIssues GET /issues.
func (h *IssuesHandler) ListIssues(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	page, pageSize := parsePaging(c)
	issues, err := h.service.List(c.UserContext(), principal, service.IssueListFilter{
		Ward:     c.Query("ward"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return err
	}
	items := make([]dto.IssueResponse, 0, len(issues))
	for i := range issues {
		items = append(items, issueResponse(&issues[i]))
	}
	return c.JSON(fiber.Map{"data": items, "page": page, "page_size": pageSize})
}

// GetIssue GET /issues/:id.
func (h *IssuesHandler) GetIssue(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	issue, err := h.service.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// UpdateStatus PATCH /issues/:id/status.
func (h *IssuesHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	issue, err := h.service.UpdateStatus(c.UserContext(), principal, c.Params("id"), req.Status, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// AddComment POST /issues/:id/comments.
func (h *IssuesHandler) AddComment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.service.AddComment(c.UserContext(), principal, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": issueResponse(issue)})
}

// History GET /issues/:id/history.
func (h *IssuesHandler) History(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	changes, err := h.service.History(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]dto.StatusChangeResponse, 0, len(changes))
	for _, ch := range changes {
		out = append(out, dto.StatusChangeResponse{
			ID:            ch.ID,
			ChangedByID:   ch.ChangedByID,
			ChangedByName: ch.ChangedByName,
			From:          string(ch.From),
			To:            string(ch.To),
			Note:          ch.Note,
			CreatedAt:     ch.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// DeleteIssue DELETE /issues/:id.
func (h *IssuesHandler) DeleteIssue(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Analyze POST /issues/analyze. The result is advisory and never fails on generator errors.
func (h *IssuesHandler) Analyze(c *fiber.Ctx) error {
	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	analysis, err := h.composer.Analyze(c.UserContext(), req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AnalyzeResponse{
		Summary:         analysis.Summary,
		Category:        string(analysis.Category),
		Priority:        string(analysis.Priority),
		SuggestedAction: analysis.SuggestedAction,
		Degraded:        analysis.Degraded,
	}})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parsePaging(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	resp := dto.IssueResponse{
		ID:              issue.ID,
		Title:           issue.Title,
		Description:     issue.Description,
		Category:        string(issue.Category),
		Status:          string(issue.Status),
		Priority:        string(issue.Priority),
		Ward:            issue.Ward,
		ImageURL:        issue.ImageURL,
		ReportedBy:      issue.ReportedBy,
		ReportedByEmail: issue.ReportedByEmail,
		ReportedByID:    issue.ReportedByID,
		AssignedTo:      issue.AssignedTo,
		AIAnalysis:      issue.AIAnalysis,
		Comments:        make([]dto.CommentResponse, 0, len(issue.Comments)),
		CreatedAt:       issue.CreatedAt,
		UpdatedAt:       issue.UpdatedAt,
	}
	if issue.Location != nil {
		resp.Location = &dto.LocationPayload{Lat: issue.Location.Lat, Lng: issue.Location.Lng, Address: issue.Location.Address}
	}
	for _, cm := range issue.Comments {
		resp.Comments = append(resp.Comments, dto.CommentResponse{
			ID:        cm.ID,
			UserID:    cm.UserID,
			UserName:  cm.UserName,
			Text:      cm.Text,
			CreatedAt: cm.CreatedAt,
		})
	}
	return resp
}
