package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fixmyward/ward-service/internal/api/dto"
	"github.com/fixmyward/ward-service/internal/service"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

// NotificationsHandler serves the caller's notification inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	page, pageSize := parsePaging(c)
	items, err := h.service.List(c.UserContext(), principal, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			To:        n.To,
			Subject:   n.Subject,
			Body:      n.Body,
			Type:      string(n.Type),
			IssueID:   n.IssueID,
			Degraded:  n.Degraded,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp, "page": page, "page_size": pageSize})
}

// MarkRead PATCH /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Compose POST /notifications/compose.
func (h *NotificationsHandler) Compose(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ComposeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Action == "" || req.IssueID == "" {
		return apperrors.NewValidationError("action and issue_id required", nil)
	}
	draft, err := h.service.ComposeForIssue(c.UserContext(), principal, req.Action, req.IssueID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DraftResponse{
		Subject:  draft.Subject,
		Body:     draft.Body,
		Type:     string(draft.Type),
		Degraded: draft.Degraded,
	}})
}
