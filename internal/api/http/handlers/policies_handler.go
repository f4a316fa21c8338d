package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// PoliciesHandler manages SLA policy endpoints.
type PoliciesHandler struct {
	policies repository.SLAPolicyRepository
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policies repository.SLAPolicyRepository) *PoliciesHandler {
	return &PoliciesHandler{policies: policies}
}

// Create POST /sla/policies.
func (h *PoliciesHandler) Create(c *fiber.Ctx) error {
	var req dto.PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}

	policy := &domain.SLAPolicy{
		Name:                      strings.TrimSpace(req.Name),
		CriticalResponseMinutes:   req.CriticalResponseMinutes,
		CriticalResolutionMinutes: req.CriticalResolutionMinutes,
		HighResponseMinutes:       req.HighResponseMinutes,
		HighResolutionMinutes:     req.HighResolutionMinutes,
		MediumResponseMinutes:     req.MediumResponseMinutes,
		MediumResolutionMinutes:   req.MediumResolutionMinutes,
		LowResponseMinutes:        req.LowResponseMinutes,
		LowResolutionMinutes:      req.LowResolutionMinutes,
		BusinessHoursOnly:         req.BusinessHoursOnly,
		BusinessHourStart:         req.BusinessHourStart,
		BusinessHourEnd:           req.BusinessHourEnd,
	}
	if err := sla.ValidatePolicy(policy); err != nil {
		return err
	}
	if err := h.policies.Create(c.UserContext(), policy); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// Get GET /sla/policies/:id.
func (h *PoliciesHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policies.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperrors.NewNotFound("sla policy", map[string]any{"policy_id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// List GET /sla/policies.
func (h *PoliciesHandler) List(c *fiber.Ctx) error {
	limit := parseIntQuery(c.Query("limit"), 50)
	offset := parseIntQuery(c.Query("offset"), 0)
	policies, err := h.policies.List(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func policyResponse(policy *domain.SLAPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                        policy.ID,
		Name:                      policy.Name,
		CriticalResponseMinutes:   policy.CriticalResponseMinutes,
		CriticalResolutionMinutes: policy.CriticalResolutionMinutes,
		HighResponseMinutes:       policy.HighResponseMinutes,
		HighResolutionMinutes:     policy.HighResolutionMinutes,
		MediumResponseMinutes:     policy.MediumResponseMinutes,
		MediumResolutionMinutes:   policy.MediumResolutionMinutes,
		LowResponseMinutes:        policy.LowResponseMinutes,
		LowResolutionMinutes:      policy.LowResolutionMinutes,
		BusinessHoursOnly:         policy.BusinessHoursOnly,
		BusinessHourStart:         policy.BusinessHourStart,
		BusinessHourEnd:           policy.BusinessHourEnd,
		CreatedAt:                 policy.CreatedAt,
		UpdatedAt:                 policy.UpdatedAt,
	}
}
