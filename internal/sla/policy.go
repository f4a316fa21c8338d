package sla

import (
	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// Targets is the resolved minute budget for a single priority.
type Targets struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// DefaultTargets is the fallback table applied when a policy leaves a
// priority unset. Values are minutes.
var DefaultTargets = map[domain.TicketPriority]Targets{
	domain.TicketPriorityCritical: {ResponseMinutes: 15, ResolutionMinutes: 240},
	domain.TicketPriorityHigh:     {ResponseMinutes: 60, ResolutionMinutes: 480},
	domain.TicketPriorityMedium:   {ResponseMinutes: 240, ResolutionMinutes: 1440},
	domain.TicketPriorityLow:      {ResponseMinutes: 480, ResolutionMinutes: 2880},
}

// ResolveTargets maps a priority to its minute budgets, preferring explicit
// policy overrides over the default table. A nil policy yields defaults.
func ResolveTargets(policy *domain.SLAPolicy, priority domain.TicketPriority) (Targets, error) {
	targets, ok := DefaultTargets[priority]
	if !ok {
		return Targets{}, apperrors.NewConfigurationError("unknown ticket priority", map[string]any{
			"priority": string(priority),
		})
	}
	if policy == nil {
		return targets, nil
	}
	switch priority {
	case domain.TicketPriorityCritical:
		applyOverride(&targets, policy.CriticalResponseMinutes, policy.CriticalResolutionMinutes)
	case domain.TicketPriorityHigh:
		applyOverride(&targets, policy.HighResponseMinutes, policy.HighResolutionMinutes)
	case domain.TicketPriorityMedium:
		applyOverride(&targets, policy.MediumResponseMinutes, policy.MediumResolutionMinutes)
	case domain.TicketPriorityLow:
		applyOverride(&targets, policy.LowResponseMinutes, policy.LowResolutionMinutes)
	}
	return targets, nil
}

func applyOverride(targets *Targets, response, resolution *int) {
	if response != nil {
		targets.ResponseMinutes = *response
	}
	if resolution != nil {
		targets.ResolutionMinutes = *resolution
	}
}

// ValidatePolicy rejects configurations the calculator cannot honor. Called
// at policy load and create time, never on the evaluation path.
func ValidatePolicy(policy *domain.SLAPolicy) error {
	if policy == nil {
		return apperrors.NewConfigurationError("sla policy required", nil)
	}
	if policy.BusinessHoursOnly {
		if err := RuleFromPolicy(policy).validate(); err != nil {
			return err
		}
	}
	for _, priority := range domain.TicketPriorities() {
		targets, err := ResolveTargets(policy, priority)
		if err != nil {
			return err
		}
		if targets.ResponseMinutes <= 0 || targets.ResolutionMinutes <= 0 {
			return apperrors.NewConfigurationError("sla minutes must be positive", map[string]any{
				"priority": string(priority),
			})
		}
		if targets.ResolutionMinutes < targets.ResponseMinutes {
			return apperrors.NewConfigurationError("resolution budget below response budget", map[string]any{
				"priority":           string(priority),
				"response_minutes":   targets.ResponseMinutes,
				"resolution_minutes": targets.ResolutionMinutes,
			})
		}
	}
	return nil
}
