package sla

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// DefaultAtRiskThreshold is the elapsed fraction of the resolution budget
// at which an unbreached ticket is flagged at risk.
const DefaultAtRiskThreshold = 0.80

// EvaluationInput carries everything EvaluateBreach needs. The resolution
// budget is required for the at-risk fraction.
type EvaluationInput struct {
	Now                time.Time
	ResponseDeadline   time.Time
	ResolutionDeadline time.Time
	PausedAt           *time.Time
	Status             domain.TicketStatus
	ResolutionMinutes  int
	AtRiskThreshold    float64
}

// EvaluateBreach computes the breach truth table and at-risk flag for an
// instant. Terminal or paused tickets are forced to not-breached; the exact
// deadline instant itself is not a breach. Pure and safe for concurrent use.
func EvaluateBreach(in EvaluationInput) domain.BreachEvaluation {
	remainingMS := in.ResolutionDeadline.Sub(in.Now).Milliseconds()
	eval := domain.BreachEvaluation{
		BreachStatus:    domain.BreachStatusNone,
		TimeRemainingMS: remainingMS,
	}
	if in.Status.IsTerminal() || in.PausedAt != nil {
		return eval
	}

	eval.ResponseBreached = in.Now.After(in.ResponseDeadline)
	eval.ResolutionBreached = in.Now.After(in.ResolutionDeadline)
	eval.IsBreached = eval.ResolutionBreached
	switch {
	case eval.ResponseBreached && eval.ResolutionBreached:
		eval.BreachStatus = domain.BreachStatusBoth
	case eval.ResolutionBreached:
		eval.BreachStatus = domain.BreachStatusResolution
	case eval.ResponseBreached:
		eval.BreachStatus = domain.BreachStatusResponse
	}

	threshold := in.AtRiskThreshold
	if threshold <= 0 {
		threshold = DefaultAtRiskThreshold
	}
	if !eval.IsBreached && in.ResolutionMinutes > 0 {
		remainingMinutes := int(remainingMS / 60000)
		elapsed := in.ResolutionMinutes - remainingMinutes
		eval.IsAtRisk = float64(elapsed)/float64(in.ResolutionMinutes) >= threshold
	}
	return eval
}
