package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
	"github.com/spec-kit/sla-service/internal/worker"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// SLAHandler manages ticket SLA endpoints.
type SLAHandler struct {
	service *service.SLAService
	scanner *worker.ReconciliationWorker
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService, scanner *worker.ReconciliationWorker) *SLAHandler {
	return &SLAHandler{service: slaService, scanner: scanner}
}

// Register POST /tickets/:id/sla.
func (h *SLAHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterSLARequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.PolicyID == "" {
		return apperrors.NewValidationError("policy_id required", nil)
	}
	priority, ok := domain.ParseTicketPriority(strings.ToUpper(strings.TrimSpace(req.Priority)))
	if !ok {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}

	createdAt := time.Now()
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}
	state, err := h.service.RegisterTicket(c.UserContext(), service.TicketRegistration{
		TicketID:  c.Params("id"),
		ProjectID: req.ProjectID,
		PolicyID:  req.PolicyID,
		Priority:  priority,
		Status:    domain.TicketStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		CreatedAt: createdAt,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": stateResponse(state)})
}

// GetStatus GET /tickets/:id/sla.
func (h *SLAHandler) GetStatus(c *fiber.Ctx) error {
	state, eval, err := h.service.Evaluate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SLAStatusResponse{
		State:      stateResponse(state),
		Evaluation: evaluationResponse(eval),
	}})
}

// Pause POST /tickets/:id/sla/pause.
func (h *SLAHandler) Pause(c *fiber.Ctx) error {
	state, err := h.service.Pause(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// Resume POST /tickets/:id/sla/resume.
func (h *SLAHandler) Resume(c *fiber.Ctx) error {
	state, err := h.service.Resume(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// StatusChanged POST /tickets/:id/sla/status.
func (h *SLAHandler) StatusChanged(c *fiber.Ctx) error {
	var req dto.StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	state, err := h.service.HandleStatusChange(c.UserContext(), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// ListBreached GET /sla/breached.
func (h *SLAHandler) ListBreached(c *fiber.Ctx) error {
	filter := repository.BreachedFilter{}
	if projectID := c.Query("project_id"); projectID != "" {
		filter.ProjectID = &projectID
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		priority, ok := domain.ParseTicketPriority(strings.ToUpper(strings.TrimSpace(priorityStr)))
		if !ok {
			return apperrors.NewValidationError("unknown priority", map[string]any{"priority": priorityStr})
		}
		filter.Priority = &priority
	}
	filter.Limit = parseIntQuery(c.Query("limit"), 50)
	filter.Offset = parseIntQuery(c.Query("offset"), 0)

	states, err := h.service.ListBreached(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.SLAStateResponse, 0, len(states))
	for i := range states {
		items = append(items, stateResponse(&states[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// TriggerScan POST /sla/scan.
func (h *SLAHandler) TriggerScan(c *fiber.Ctx) error {
	report, err := h.scanner.ScanOnce(c.UserContext())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": report})
}

func parseIntQuery(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func stateResponse(state *domain.TicketSLAState) dto.SLAStateResponse {
	return dto.SLAStateResponse{
		TicketID:                state.TicketID,
		ProjectID:               state.ProjectID,
		PolicyID:                state.PolicyID,
		Priority:                state.Priority,
		Status:                  state.Status,
		CreatedAt:               state.CreatedAt,
		ResponseDeadline:        state.ResponseDeadline,
		ResolutionDeadline:      state.ResolutionDeadline,
		PausedAt:                state.PausedAt,
		AccumulatedPauseMinutes: state.AccumulatedPauseMinutes,
		Breached:                state.Breached,
		AtRisk:                  state.AtRisk,
		BreachStatus:            state.BreachStatus,
		UpdatedAt:               state.UpdatedAt,
	}
}

func evaluationResponse(eval *domain.BreachEvaluation) dto.BreachEvaluationResponse {
	return dto.BreachEvaluationResponse{
		ResponseBreached:    eval.ResponseBreached,
		ResolutionBreached:  eval.ResolutionBreached,
		BreachStatus:        eval.BreachStatus,
		IsBreached:          eval.IsBreached,
		IsAtRisk:            eval.IsAtRisk,
		TimeRemainingMS:     eval.TimeRemainingMS,
		BusinessMinutesUsed: eval.BusinessMinutesUsed,
	}
}
