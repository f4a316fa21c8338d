package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
	"github.com/spec-kit/sla-service/internal/sla"
)

const scanLockKey = "sla:reconcile:lock"

// Dependencies bundles collaborators for the reconciliation worker.
type Dependencies struct {
	StateRepo  repository.TicketSLARepository
	SLAService *service.SLAService
	Dispatcher events.Dispatcher
	Clock      sla.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Locker     *redis.Client
	Interval   time.Duration
}

// ReconciliationWorker periodically re-evaluates every live ticket and
// persists breach/at-risk transitions. Events are emitted only when the
// freshly computed flags differ from the persisted ones, so a re-scan of
// an unchanged ticket never duplicates a notification.
type ReconciliationWorker struct {
	states     repository.TicketSLARepository
	slaService *service.SLAService
	dispatcher events.Dispatcher
	clock      sla.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	locker     *redis.Client
	interval   time.Duration
}

// ScanReport summarizes a single reconciliation pass.
type ScanReport struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Breaches   int `json:"breaches"`
	AtRisk     int `json:"at_risk"`
	Failures   int `json:"failures"`
	Skipped    bool `json:"skipped"`
}

// NewReconciliationWorker constructs the worker.
func NewReconciliationWorker(deps Dependencies) *ReconciliationWorker {
	clock := deps.Clock
	if clock == nil {
		clock = sla.SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconciliationWorker{
		states:     deps.StateRepo,
		slaService: deps.SLAService,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     logger,
		metrics:    deps.Metrics,
		locker:     deps.Locker,
		interval:   interval,
	}
}

// Run scans on the configured interval until the context is cancelled.
func (w *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconciliation worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			report, err := w.ScanOnce(ctx)
			if err != nil {
				w.logger.Error("reconciliation scan failed", zap.Error(err))
				continue
			}
			if !report.Skipped {
				w.logger.Info("reconciliation scan complete",
					zap.Int("candidates", report.Candidates),
					zap.Int("updated", report.Updated),
					zap.Int("breaches", report.Breaches),
					zap.Int("at_risk", report.AtRisk),
					zap.Int("failures", report.Failures))
			}
		}
	}
}

// ScanOnce runs a single reconciliation pass. Only a failure to enumerate
// candidates aborts the scan; per-ticket errors are logged and skipped.
// The stop signal is honored between tickets.
func (w *ReconciliationWorker) ScanOnce(ctx context.Context) (ScanReport, error) {
	report := ScanReport{}

	release, acquired := w.acquireLock(ctx)
	if !acquired {
		w.logger.Debug("reconciliation lock held elsewhere, skipping scan")
		report.Skipped = true
		return report, nil
	}
	defer release()

	candidates, err := w.states.ListReconciliationCandidates(ctx)
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)

	for _, ticketID := range candidates {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		changed, breached, atRisk, err := w.reconcileTicket(ctx, ticketID)
		if err != nil {
			report.Failures++
			w.logger.Warn("ticket reconciliation failed",
				zap.String("ticket_id", ticketID),
				zap.Error(err))
			continue
		}
		if changed {
			report.Updated++
		}
		if breached {
			report.Breaches++
		}
		if atRisk {
			report.AtRisk++
		}
	}

	w.metrics.RecordScan(report.Breaches, report.AtRisk)
	return report, nil
}

func (w *ReconciliationWorker) reconcileTicket(ctx context.Context, ticketID string) (changed, newlyBreached, newlyAtRisk bool, err error) {
	state, err := w.states.GetByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// removed between enumeration and evaluation
			return false, false, false, nil
		}
		return false, false, false, err
	}
	// a pause or terminal transition may have raced the enumeration
	if state.Paused() || state.Status.IsTerminal() {
		return false, false, false, nil
	}

	eval, err := w.slaService.EvaluateState(ctx, state)
	if err != nil {
		return false, false, false, err
	}
	if state.Breached == eval.IsBreached && state.AtRisk == eval.IsAtRisk && state.BreachStatus == eval.BreachStatus {
		return false, false, false, nil
	}

	prev := *state
	state.Breached = eval.IsBreached
	state.AtRisk = eval.IsAtRisk
	state.BreachStatus = eval.BreachStatus
	if err := w.states.Update(ctx, state); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// a live pause/resume won the race; the next scan catches up
			w.logger.Debug("reconciliation lost version race", zap.String("ticket_id", ticketID))
			return false, false, false, nil
		}
		return false, false, false, err
	}

	detectedAt := w.clock.Now()
	if !includesResponseBreach(prev.BreachStatus) && includesResponseBreach(state.BreachStatus) {
		w.publish(ctx, events.Event{
			Type:     events.EventSLABreached,
			TicketID: state.TicketID,
			Actor:    events.Actor{Type: events.ActorTypeSystem},
			Payload: events.SLABreachedPayload{
				BreachType: events.BreachTypeResponse,
				Deadline:   state.ResponseDeadline,
				DetectedAt: detectedAt,
			},
		})
	}
	if !prev.Breached && state.Breached {
		newlyBreached = true
		w.publish(ctx, events.Event{
			Type:     events.EventSLABreached,
			TicketID: state.TicketID,
			Actor:    events.Actor{Type: events.ActorTypeSystem},
			Payload: events.SLABreachedPayload{
				BreachType: events.BreachTypeResolution,
				Deadline:   state.ResolutionDeadline,
				DetectedAt: detectedAt,
			},
		})
	}
	if !prev.AtRisk && state.AtRisk {
		newlyAtRisk = true
		w.publish(ctx, events.Event{
			Type:     events.EventSLAAtRisk,
			TicketID: state.TicketID,
			Actor:    events.Actor{Type: events.ActorTypeSystem},
			Payload: events.SLAAtRiskPayload{
				ResolutionDeadline: state.ResolutionDeadline,
				DetectedAt:         detectedAt,
			},
		})
	}
	return true, newlyBreached, newlyAtRisk, nil
}

func includesResponseBreach(status domain.BreachStatus) bool {
	return status == domain.BreachStatusResponse || status == domain.BreachStatusBoth
}

// acquireLock takes the cross-instance scan lock. Without a Redis client
// the worker runs unlocked (single-instance deployments and tests).
func (w *ReconciliationWorker) acquireLock(ctx context.Context) (func(), bool) {
	if w.locker == nil {
		return func() {}, true
	}
	ok, err := w.locker.SetNX(ctx, scanLockKey, "1", w.interval).Result()
	if err != nil {
		w.logger.Warn("scan lock unavailable, proceeding unlocked", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() {
		_ = w.locker.Del(context.WithoutCancel(ctx), scanLockKey).Err()
	}, true
}

func (w *ReconciliationWorker) publish(ctx context.Context, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = w.clock.Now()
	}
	_ = w.dispatcher.Publish(ctx, event)
}
