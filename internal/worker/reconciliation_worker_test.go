package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStateRepo struct {
	mu            sync.Mutex
	states        map[string]domain.TicketSLAState
	failGets      map[string]error
	candidatesErr error
	conflictsLeft int
}

var _ repository.TicketSLARepository = (*fakeStateRepo)(nil)

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{
		states:   make(map[string]domain.TicketSLAState),
		failGets: make(map[string]error),
	}
}

func (r *fakeStateRepo) Create(_ context.Context, state *domain.TicketSLAState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state.Version = 1
	r.states[state.TicketID] = *state
	return nil
}

func (r *fakeStateRepo) GetByTicketID(_ context.Context, ticketID string) (*domain.TicketSLAState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failGets[ticketID]; ok {
		return nil, err
	}
	state, ok := r.states[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &state, nil
}

func (r *fakeStateRepo) Update(_ context.Context, state *domain.TicketSLAState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return repository.ErrVersionConflict
	}
	stored, ok := r.states[state.TicketID]
	if !ok || stored.Version != state.Version {
		return repository.ErrVersionConflict
	}
	state.Version++
	r.states[state.TicketID] = *state
	return nil
}

func (r *fakeStateRepo) ListReconciliationCandidates(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.candidatesErr != nil {
		return nil, r.candidatesErr
	}
	var ids []string
	for id, state := range r.states {
		if !state.Status.IsTerminal() && state.PausedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeStateRepo) ListBreached(_ context.Context, _ repository.BreachedFilter) ([]domain.TicketSLAState, error) {
	return nil, nil
}

func (r *fakeStateRepo) get(t *testing.T, ticketID string) domain.TicketSLAState {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[ticketID]
	require.True(t, ok)
	return state
}

type fakePolicyStore struct {
	policies map[string]*domain.SLAPolicy
}

func (p *fakePolicyStore) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	policy, ok := p.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Dispatcher = (*recordingDispatcher)(nil)

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func intPtr(v int) *int { return &v }

func newTestWorker(t *testing.T) (*ReconciliationWorker, *fakeStateRepo, *fakeClock, *recordingDispatcher) {
	t.Helper()
	repo := newFakeStateRepo()
	clock := &fakeClock{now: time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)}
	dispatcher := &recordingDispatcher{}
	policies := &fakePolicyStore{policies: map[string]*domain.SLAPolicy{
		"pol-1": {ID: "pol-1", Name: "standard"},
		"pol-slow": {
			ID:                        "pol-slow",
			Name:                      "slow burn",
			CriticalResponseMinutes:   intPtr(1000),
			CriticalResolutionMinutes: intPtr(1000),
		},
	}}
	slaService := service.NewSLAService(service.SLADependencies{
		StateRepo:   repo,
		PolicyStore: policies,
		Clock:       clock,
		Logger:      zap.NewNop(),
	})
	w := NewReconciliationWorker(Dependencies{
		StateRepo:  repo,
		SLAService: slaService,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
		Interval:   time.Minute,
	})
	return w, repo, clock, dispatcher
}

func seedState(t *testing.T, repo *fakeStateRepo, ticketID, policyID string, created time.Time, responseMinutes, resolutionMinutes int) {
	t.Helper()
	err := repo.Create(context.Background(), &domain.TicketSLAState{
		TicketID:           ticketID,
		ProjectID:          "PRJ-1",
		PolicyID:           policyID,
		Priority:           domain.TicketPriorityCritical,
		Status:             domain.TicketStatusOpen,
		CreatedAt:          created,
		ResponseDeadline:   created.Add(time.Duration(responseMinutes) * time.Minute),
		ResolutionDeadline: created.Add(time.Duration(resolutionMinutes) * time.Minute),
		BreachStatus:       domain.BreachStatusNone,
	})
	require.NoError(t, err)
}

func TestScanOnceDetectsBreachOnce(t *testing.T) {
	w, repo, clock, dispatcher := newTestWorker(t)
	seedState(t, repo, "TCK-1", "pol-1", clock.Now(), 15, 240)

	clock.Advance(5 * time.Hour)
	report, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Candidates)
	require.Equal(t, 1, report.Updated)
	require.Equal(t, 1, report.Breaches)
	require.Zero(t, report.Failures)

	state := repo.get(t, "TCK-1")
	require.True(t, state.Breached)
	require.Equal(t, domain.BreachStatusBoth, state.BreachStatus)

	breachEvents := dispatcher.ofType(events.EventSLABreached)
	require.Len(t, breachEvents, 2)
	types := map[events.BreachType]bool{}
	for _, event := range breachEvents {
		payload, ok := event.Payload.(events.SLABreachedPayload)
		require.True(t, ok)
		types[payload.BreachType] = true
	}
	require.True(t, types[events.BreachTypeResponse])
	require.True(t, types[events.BreachTypeResolution])

	// a rescan of the unchanged ticket stays silent
	report, err = w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Updated)
	require.Zero(t, report.Breaches)
	require.Len(t, dispatcher.ofType(events.EventSLABreached), 2)
}

func TestScanOnceAtRiskThenBreach(t *testing.T) {
	w, repo, clock, dispatcher := newTestWorker(t)
	seedState(t, repo, "TCK-1", "pol-slow", clock.Now(), 1000, 1000)

	clock.Advance(900 * time.Minute)
	report, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.AtRisk)
	require.Zero(t, report.Breaches)
	require.Len(t, dispatcher.ofType(events.EventSLAAtRisk), 1)

	state := repo.get(t, "TCK-1")
	require.True(t, state.AtRisk)
	require.False(t, state.Breached)

	clock.Advance(200 * time.Minute)
	report, err = w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Breaches)
	require.Zero(t, report.AtRisk)
	require.Len(t, dispatcher.ofType(events.EventSLAAtRisk), 1)
	require.Len(t, dispatcher.ofType(events.EventSLABreached), 2)
}

func TestScanOnceSkipsPausedAndTerminal(t *testing.T) {
	w, repo, clock, dispatcher := newTestWorker(t)
	seedState(t, repo, "TCK-live", "pol-1", clock.Now(), 15, 240)
	seedState(t, repo, "TCK-paused", "pol-1", clock.Now(), 15, 240)
	seedState(t, repo, "TCK-done", "pol-1", clock.Now(), 15, 240)

	pausedAt := clock.Now()
	repo.mu.Lock()
	paused := repo.states["TCK-paused"]
	paused.PausedAt = &pausedAt
	repo.states["TCK-paused"] = paused
	done := repo.states["TCK-done"]
	done.Status = domain.TicketStatusResolved
	repo.states["TCK-done"] = done
	repo.mu.Unlock()

	clock.Advance(5 * time.Hour)
	report, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Candidates)
	require.Equal(t, 1, report.Breaches)

	require.False(t, repo.get(t, "TCK-paused").Breached)
	require.False(t, repo.get(t, "TCK-done").Breached)
	require.Len(t, dispatcher.ofType(events.EventSLABreached), 2)
}

func TestScanOnceContinuesPastTicketFailures(t *testing.T) {
	w, repo, clock, _ := newTestWorker(t)
	seedState(t, repo, "TCK-bad", "pol-1", clock.Now(), 15, 240)
	seedState(t, repo, "TCK-good", "pol-1", clock.Now(), 15, 240)
	repo.failGets["TCK-bad"] = errors.New("connection reset")

	clock.Advance(5 * time.Hour)
	report, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Candidates)
	require.Equal(t, 1, report.Failures)
	require.Equal(t, 1, report.Breaches)
	require.True(t, repo.get(t, "TCK-good").Breached)
}

func TestScanOnceAbortsWhenEnumerationFails(t *testing.T) {
	w, repo, _, _ := newTestWorker(t)
	repo.candidatesErr = errors.New("relation missing")

	_, err := w.ScanOnce(context.Background())
	require.Error(t, err)
}

func TestScanOnceHonorsCancellation(t *testing.T) {
	w, repo, clock, _ := newTestWorker(t)
	seedState(t, repo, "TCK-1", "pol-1", clock.Now(), 15, 240)
	clock.Advance(5 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ScanOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, repo.get(t, "TCK-1").Breached)
}

func TestScanOnceYieldsOnVersionConflict(t *testing.T) {
	w, repo, clock, dispatcher := newTestWorker(t)
	seedState(t, repo, "TCK-1", "pol-1", clock.Now(), 15, 240)
	clock.Advance(5 * time.Hour)

	repo.conflictsLeft = 1
	report, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Updated)
	require.Zero(t, report.Failures)
	require.Empty(t, dispatcher.ofType(events.EventSLABreached))

	// the next scan catches up
	report, err = w.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Breaches)
	require.Len(t, dispatcher.ofType(events.EventSLABreached), 2)
}

func TestScanReportMetrics(t *testing.T) {
	w, repo, clock, _ := newTestWorker(t)
	seedState(t, repo, "TCK-1", "pol-1", clock.Now(), 15, 240)
	clock.Advance(5 * time.Hour)

	_, err := w.ScanOnce(context.Background())
	require.NoError(t, err)

	scans, breaches, _ := w.metrics.ScanTotals()
	require.EqualValues(t, 1, scans)
	require.EqualValues(t, 1, breaches)
}
