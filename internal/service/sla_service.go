package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

const defaultUpdateRetries = 3

// SLAService owns the SLA lifecycle of a ticket: deadline computation at
// registration, the pause/resume state machine, and on-demand breach
// evaluation. All state writes go through a versioned update so concurrent
// pause/resume/scan calls on the same ticket serialize cleanly.
type SLAService struct {
	states          repository.TicketSLARepository
	policies        repository.PolicyStore
	dispatcher      events.Dispatcher
	clock           sla.Clock
	logger          *zap.Logger
	atRiskThreshold float64
	retryAttempts   int
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	StateRepo       repository.TicketSLARepository
	PolicyStore     repository.PolicyStore
	Dispatcher      events.Dispatcher
	Clock           sla.Clock
	Logger          *zap.Logger
	AtRiskThreshold float64
	RetryAttempts   int
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	clock := deps.Clock
	if clock == nil {
		clock = sla.SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := deps.RetryAttempts
	if retries <= 0 {
		retries = defaultUpdateRetries
	}
	return &SLAService{
		states:          deps.StateRepo,
		policies:        deps.PolicyStore,
		dispatcher:      deps.Dispatcher,
		clock:           clock,
		logger:          logger,
		atRiskThreshold: deps.AtRiskThreshold,
		retryAttempts:   retries,
	}
}

// TicketRegistration describes a newly created ticket entering SLA tracking.
type TicketRegistration struct {
	TicketID  string
	ProjectID string
	PolicyID  string
	Priority  domain.TicketPriority
	Status    domain.TicketStatus
	CreatedAt time.Time
}

// RegisterTicket resolves the policy, computes both deadlines and persists
// the initial SLA state.
func (s *SLAService) RegisterTicket(ctx context.Context, input TicketRegistration) (*domain.TicketSLAState, error) {
	policy, err := s.loadPolicy(ctx, input.PolicyID)
	if err != nil {
		return nil, err
	}
	targets, err := sla.ResolveTargets(policy, input.Priority)
	if err != nil {
		return nil, err
	}

	rule := sla.RuleFromPolicy(policy)
	responseDeadline, _, err := sla.AddMinutes(input.CreatedAt, targets.ResponseMinutes, rule)
	if err != nil {
		return nil, err
	}
	resolutionDeadline, _, err := sla.AddMinutes(input.CreatedAt, targets.ResolutionMinutes, rule)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	state := &domain.TicketSLAState{
		TicketID:           input.TicketID,
		ProjectID:          input.ProjectID,
		PolicyID:           policy.ID,
		Priority:           input.Priority,
		Status:             status,
		CreatedAt:          input.CreatedAt,
		ResponseDeadline:   responseDeadline,
		ResolutionDeadline: resolutionDeadline,
		BreachStatus:       domain.BreachStatusNone,
	}
	if err := s.states.Create(ctx, state); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventSLARegistered,
		TicketID: state.TicketID,
		Actor:    systemActor(),
		Payload: events.SLARegisteredPayload{
			PolicyID:           state.PolicyID,
			Priority:           string(state.Priority),
			ResponseDeadline:   state.ResponseDeadline,
			ResolutionDeadline: state.ResolutionDeadline,
		},
	})
	return state, nil
}

// Pause freezes the SLA clock. Valid only while running and non-terminal.
func (s *SLAService) Pause(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	now := s.clock.Now()
	state, err := s.mutateState(ctx, ticketID, func(state *domain.TicketSLAState) error {
		return applyPause(state, now)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSLAPaused,
		TicketID: ticketID,
		Actor:    systemActor(),
		Payload:  events.SLAPausedPayload{PausedAt: now},
	})
	return state, nil
}

// Resume unfreezes the SLA clock, shifting both deadlines forward by the
// exact wall-clock pause duration so the remaining time at resume equals
// the remaining time at pause.
func (s *SLAService) Resume(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	now := s.clock.Now()
	var pauseMinutes int
	state, err := s.mutateState(ctx, ticketID, func(state *domain.TicketSLAState) error {
		var applyErr error
		pauseMinutes, applyErr = applyResume(state, now)
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSLAResumed,
		TicketID: ticketID,
		Actor:    systemActor(),
		Payload: events.SLAResumedPayload{
			PauseMinutes:       pauseMinutes,
			ResponseDeadline:   state.ResponseDeadline,
			ResolutionDeadline: state.ResolutionDeadline,
		},
	})
	return state, nil
}

// HandleStatusChange mirrors the ticket lifecycle onto the SLA state:
// entering PENDING_CUSTOMER pauses the clock, leaving it for a live status
// resumes. Terminal statuses are recorded as-is; evaluation simply stops.
func (s *SLAService) HandleStatusChange(ctx context.Context, ticketID string, newStatus domain.TicketStatus) (*domain.TicketSLAState, error) {
	now := s.clock.Now()
	return s.mutateState(ctx, ticketID, func(state *domain.TicketSLAState) error {
		if state.Status == newStatus {
			return nil
		}
		switch {
		case newStatus == domain.TicketStatusPendingCustomer:
			if !state.Paused() {
				if err := applyPause(state, now); err != nil {
					return err
				}
			}
		case state.Paused() && !newStatus.IsTerminal():
			if _, err := applyResume(state, now); err != nil {
				return err
			}
		}
		state.Status = newStatus
		return nil
	})
}

// Evaluate computes the current breach position of a ticket without
// mutating anything.
func (s *SLAService) Evaluate(ctx context.Context, ticketID string) (*domain.TicketSLAState, *domain.BreachEvaluation, error) {
	state, err := s.getState(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	eval, err := s.evaluateState(ctx, state)
	if err != nil {
		return nil, nil, err
	}
	return state, eval, nil
}

// EvaluateState runs the breach evaluator against an already-loaded state.
func (s *SLAService) EvaluateState(ctx context.Context, state *domain.TicketSLAState) (*domain.BreachEvaluation, error) {
	return s.evaluateState(ctx, state)
}

// ListBreached returns currently breached, still-open tickets.
func (s *SLAService) ListBreached(ctx context.Context, filter repository.BreachedFilter) ([]domain.TicketSLAState, error) {
	return s.states.ListBreached(ctx, filter)
}

func (s *SLAService) evaluateState(ctx context.Context, state *domain.TicketSLAState) (*domain.BreachEvaluation, error) {
	policy, err := s.loadPolicy(ctx, state.PolicyID)
	if err != nil {
		return nil, err
	}
	targets, err := sla.ResolveTargets(policy, state.Priority)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	eval := sla.EvaluateBreach(sla.EvaluationInput{
		Now:                now,
		ResponseDeadline:   state.ResponseDeadline,
		ResolutionDeadline: state.ResolutionDeadline,
		PausedAt:           state.PausedAt,
		Status:             state.Status,
		ResolutionMinutes:  targets.ResolutionMinutes,
		AtRiskThreshold:    s.atRiskThreshold,
	})

	if policy.BusinessHoursOnly {
		_, used, calErr := sla.AddMinutes(state.CreatedAt, targets.ResponseMinutes, sla.RuleFromPolicy(policy))
		if calErr == nil {
			eval.BusinessMinutesUsed = used
		}
	} else {
		eval.BusinessMinutesUsed = int(now.Sub(state.CreatedAt) / time.Minute)
	}
	return &eval, nil
}

func applyPause(state *domain.TicketSLAState, now time.Time) error {
	if state.Paused() {
		return apperrors.NewInvalidState("ticket sla already paused", map[string]any{
			"ticket_id": state.TicketID,
		})
	}
	if state.Status.IsTerminal() {
		return apperrors.NewInvalidState("sla no longer applies to terminal ticket", map[string]any{
			"ticket_id": state.TicketID,
			"status":    string(state.Status),
		})
	}
	pausedAt := now
	state.PausedAt = &pausedAt
	return nil
}

func applyResume(state *domain.TicketSLAState, now time.Time) (int, error) {
	if !state.Paused() {
		return 0, apperrors.NewInvalidState("ticket not currently paused", map[string]any{
			"ticket_id": state.TicketID,
		})
	}
	pauseDuration := now.Sub(*state.PausedAt)
	if pauseDuration < 0 {
		pauseDuration = 0
	}
	pauseMinutes := int(pauseDuration / time.Minute)
	state.AccumulatedPauseMinutes += pauseMinutes
	state.ResponseDeadline = state.ResponseDeadline.Add(pauseDuration)
	state.ResolutionDeadline = state.ResolutionDeadline.Add(pauseDuration)
	state.PausedAt = nil
	return pauseMinutes, nil
}

// mutateState applies fn to a freshly read state and writes it back under
// the optimistic version check, retrying on conflict.
func (s *SLAService) mutateState(ctx context.Context, ticketID string, fn func(*domain.TicketSLAState) error) (*domain.TicketSLAState, error) {
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		state, err := s.getState(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if err := fn(state); err != nil {
			return nil, err
		}
		err = s.states.Update(ctx, state)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		s.logger.Debug("sla state version conflict, retrying",
			zap.String("ticket_id", ticketID),
			zap.Int("attempt", attempt+1))
	}
	return nil, apperrors.NewConflict("concurrent sla update, retries exhausted", map[string]any{
		"ticket_id": ticketID,
	})
}

func (s *SLAService) getState(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	state, err := s.states.GetByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket sla state", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return state, nil
}

func (s *SLAService) loadPolicy(ctx context.Context, policyID string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConfigurationError("sla policy not found", map[string]any{
				"policy_id": policyID,
			})
		}
		return nil, err
	}
	if err := sla.ValidatePolicy(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (s *SLAService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func systemActor() events.Actor {
	return events.Actor{Type: events.ActorTypeSystem}
}
