package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"magabot/internal/autopilot"
	"magabot/internal/models"
	"magabot/internal/report"

	"github.com/gofiber/fiber/v2"
)

// CaseService is the part of the auto-pilot the operator API uses
type CaseService interface {
	Get(ctx context.Context, caseID string) (*models.Case, error)
	Status(ctx context.Context, caseID string) (string, error)
	Submit(ev models.CaseEvent) error
}

// CaseLister lists the cases of one user
type CaseLister interface {
	ListUserCases(ctx context.Context, userID string, limit int) ([]*models.Case, error)
}

// CasesHandler serves case status, control and export
type CasesHandler struct {
	cases CaseService
	list  CaseLister
	now   func() time.Time
}

// NewCasesHandler creates a new cases handler
func NewCasesHandler(cases CaseService, list CaseLister) *CasesHandler {
	return &CasesHandler{cases: cases, list: list, now: time.Now}
}

// Get returns a case with its chat status summary
func (h *CasesHandler) Get(c *fiber.Ctx) error {
	cs, err := h.cases.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return caseError(c, err)
	}
	status, err := h.cases.Status(c.UserContext(), cs.ID)
	if err != nil {
		return caseError(c, err)
	}
	return c.JSON(fiber.Map{"case": cs, "status": status})
}

// ListForUser returns the newest cases of a user
func (h *CasesHandler) ListForUser(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	cases, err := h.list.ListUserCases(c.UserContext(), c.Params("userId"), limit)
	if err != nil {
		log.Printf("❌ [CASES] Failed to list cases for %s: %v", c.Params("userId"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list cases",
		})
	}
	if cases == nil {
		cases = []*models.Case{}
	}
	return c.JSON(fiber.Map{"cases": cases, "count": len(cases)})
}

// Export downloads a case as JSON or XLSX (?format=xlsx)
func (h *CasesHandler) Export(c *fiber.Ctx) error {
	cs, err := h.cases.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return caseError(c, err)
	}

	var (
		data        []byte
		ext         string
		contentType string
	)
	switch c.Query("format", "json") {
	case "json":
		data, err = report.JSON(cs, h.now())
		ext, contentType = "json", fiber.MIMEApplicationJSON
	case "xlsx":
		data, err = report.XLSX(cs, h.now())
		ext, contentType = "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "format must be json or xlsx",
		})
	}
	if err != nil {
		log.Printf("❌ [CASES] Export of %s failed: %v", cs.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export case",
		})
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, report.FileName(cs, ext)))
	return c.Send(data)
}

// Control queues a retry or cancel for a case
func (h *CasesHandler) Control(c *fiber.Ctx) error {
	var kind models.CaseEventKind
	switch c.Params("action") {
	case "retry":
		kind = models.CaseEventRetry
	case "cancel":
		kind = models.CaseEventCancel
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action must be retry or cancel",
		})
	}

	cs, err := h.cases.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return caseError(c, err)
	}
	if kind == models.CaseEventRetry && (cs.Cancelled || cs.Stage == models.StageDone) {
		return caseError(c, autopilot.ErrNotRetryable)
	}

	ev := models.CaseEvent{
		CaseID:  cs.ID,
		UserID:  cs.UserID,
		ChatID:  cs.ChatID,
		Kind:    kind,
		EventID: fmt.Sprintf("operator-%s-%d", kind, h.now().UnixNano()),
	}
	if err := h.cases.Submit(ev); err != nil {
		return caseError(c, err)
	}
	log.Printf("🛠️ [CASES] Operator queued %s for case %s", kind, cs.ID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"case_id": cs.ID, "queued": kind})
}

func caseError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, autopilot.ErrCaseNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Case not found"})
	case errors.Is(err, autopilot.ErrNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, autopilot.ErrQueueFull), errors.Is(err, autopilot.ErrShuttingDown):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("❌ [CASES] %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
}
