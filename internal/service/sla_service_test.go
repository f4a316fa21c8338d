package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
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
	conflictsLeft int
}

var _ repository.TicketSLARepository = (*fakeStateRepo)(nil)

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]domain.TicketSLAState)}
}

func (r *fakeStateRepo) Create(_ context.Context, state *domain.TicketSLAState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state.Version = 1
	state.UpdatedAt = state.CreatedAt
	r.states[state.TicketID] = *state
	return nil
}

func (r *fakeStateRepo) GetByTicketID(_ context.Context, ticketID string) (*domain.TicketSLAState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	var ids []string
	for id, state := range r.states {
		if !state.Status.IsTerminal() && state.PausedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeStateRepo) ListBreached(_ context.Context, filter repository.BreachedFilter) ([]domain.TicketSLAState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketSLAState
	for _, state := range r.states {
		if !state.Breached || state.Status.IsTerminal() {
			continue
		}
		if filter.ProjectID != nil && state.ProjectID != *filter.ProjectID {
			continue
		}
		if filter.Priority != nil && state.Priority != *filter.Priority {
			continue
		}
		result = append(result, state)
	}
	return result, nil
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

func newTestService(t *testing.T) (*SLAService, *fakeStateRepo, *fakeClock, *recordingDispatcher) {
	t.Helper()
	repo := newFakeStateRepo()
	clock := &fakeClock{now: time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)}
	dispatcher := &recordingDispatcher{}
	svc := NewSLAService(SLADependencies{
		StateRepo: repo,
		PolicyStore: &fakePolicyStore{policies: map[string]*domain.SLAPolicy{
			"pol-1": {ID: "pol-1", Name: "standard"},
		}},
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     zap.NewNop(),
	})
	return svc, repo, clock, dispatcher
}

func registerCriticalTicket(t *testing.T, svc *SLAService, clock *fakeClock) *domain.TicketSLAState {
	t.Helper()
	state, err := svc.RegisterTicket(context.Background(), TicketRegistration{
		TicketID:  "TCK-1",
		ProjectID: "PRJ-1",
		PolicyID:  "pol-1",
		Priority:  domain.TicketPriorityCritical,
		Status:    domain.TicketStatusOpen,
		CreatedAt: clock.Now(),
	})
	require.NoError(t, err)
	return state
}

func TestRegisterTicketComputesDeadlines(t *testing.T) {
	svc, _, clock, dispatcher := newTestService(t)
	created := clock.Now()

	state := registerCriticalTicket(t, svc, clock)
	require.Equal(t, created.Add(15*time.Minute), state.ResponseDeadline)
	require.Equal(t, created.Add(240*time.Minute), state.ResolutionDeadline)
	require.Equal(t, domain.BreachStatusNone, state.BreachStatus)
	require.EqualValues(t, 1, state.Version)

	registered := dispatcher.ofType(events.EventSLARegistered)
	require.Len(t, registered, 1)
	require.Equal(t, "TCK-1", registered[0].TicketID)
}

func TestRegisterTicketUnknownPolicy(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	_, err := svc.RegisterTicket(context.Background(), TicketRegistration{
		TicketID:  "TCK-1",
		PolicyID:  "missing",
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: clock.Now(),
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, "CONFIGURATION_ERROR"))
}

func TestEvaluateAfterResponseDeadline(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	clock.Advance(time.Hour)
	state, eval, err := svc.Evaluate(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.True(t, eval.ResponseBreached)
	require.False(t, eval.ResolutionBreached)
	require.False(t, eval.IsBreached)
	require.False(t, eval.IsAtRisk)
	require.Equal(t, domain.BreachStatusResponse, eval.BreachStatus)
	require.Equal(t, (3 * time.Hour).Milliseconds(), eval.TimeRemainingMS)
	require.Equal(t, 60, eval.BusinessMinutesUsed)
	require.Equal(t, "TCK-1", state.TicketID)
}

func TestEvaluateUnknownTicket(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, _, err := svc.Evaluate(context.Background(), "nope")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, "NOT_FOUND"))
}

func TestPauseResumePreservesRemainingTime(t *testing.T) {
	svc, _, clock, dispatcher := newTestService(t)
	original := registerCriticalTicket(t, svc, clock)

	clock.Advance(time.Hour)
	pausedAt := clock.Now()
	remainingAtPause := original.ResolutionDeadline.Sub(pausedAt)

	paused, err := svc.Pause(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.True(t, paused.Paused())
	require.Equal(t, pausedAt, *paused.PausedAt)

	clock.Advance(30 * time.Minute)
	resumed, err := svc.Resume(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.False(t, resumed.Paused())
	require.Equal(t, 30, resumed.AccumulatedPauseMinutes)
	require.Equal(t, original.ResponseDeadline.Add(30*time.Minute), resumed.ResponseDeadline)
	require.Equal(t, original.ResolutionDeadline.Add(30*time.Minute), resumed.ResolutionDeadline)
	require.Equal(t, remainingAtPause, resumed.ResolutionDeadline.Sub(clock.Now()))

	require.Len(t, dispatcher.ofType(events.EventSLAPaused), 1)
	require.Len(t, dispatcher.ofType(events.EventSLAResumed), 1)
}

func TestResumeAfterSubMinutePause(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	original := registerCriticalTicket(t, svc, clock)

	_, err := svc.Pause(context.Background(), "TCK-1")
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	resumed, err := svc.Resume(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.Zero(t, resumed.AccumulatedPauseMinutes)
	require.Equal(t, original.ResolutionDeadline.Add(20*time.Second), resumed.ResolutionDeadline)
}

func TestPauseResumeInvalidTransitions(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	_, err := svc.Resume(context.Background(), "TCK-1")
	require.True(t, apperrors.HasCode(err, "INVALID_STATE"))

	_, err = svc.Pause(context.Background(), "TCK-1")
	require.NoError(t, err)

	_, err = svc.Pause(context.Background(), "TCK-1")
	require.True(t, apperrors.HasCode(err, "INVALID_STATE"))
}

func TestPauseTerminalTicketRejected(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	_, err := svc.HandleStatusChange(context.Background(), "TCK-1", domain.TicketStatusResolved)
	require.NoError(t, err)

	_, err = svc.Pause(context.Background(), "TCK-1")
	require.True(t, apperrors.HasCode(err, "INVALID_STATE"))
}

func TestHandleStatusChangeLifecycle(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	original := registerCriticalTicket(t, svc, clock)

	state, err := svc.HandleStatusChange(context.Background(), "TCK-1", domain.TicketStatusPendingCustomer)
	require.NoError(t, err)
	require.True(t, state.Paused())
	require.Equal(t, domain.TicketStatusPendingCustomer, state.Status)

	clock.Advance(time.Hour)
	state, err = svc.HandleStatusChange(context.Background(), "TCK-1", domain.TicketStatusInProgress)
	require.NoError(t, err)
	require.False(t, state.Paused())
	require.Equal(t, 60, state.AccumulatedPauseMinutes)
	require.Equal(t, original.ResolutionDeadline.Add(time.Hour), state.ResolutionDeadline)

	// paused tickets never breach while frozen
	clock.Advance(10 * time.Hour)
	state, err = svc.HandleStatusChange(context.Background(), "TCK-1", domain.TicketStatusResolved)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, state.Status)

	_, eval, err := svc.Evaluate(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.False(t, eval.IsBreached)
	require.Equal(t, domain.BreachStatusNone, eval.BreachStatus)
}

func TestHandleStatusChangeSameStatusIsNoOp(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	state, err := svc.HandleStatusChange(context.Background(), "TCK-1", domain.TicketStatusOpen)
	require.NoError(t, err)
	require.False(t, state.Paused())
}

func TestMutateStateRetriesVersionConflicts(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	repo.conflictsLeft = 1
	state, err := svc.Pause(context.Background(), "TCK-1")
	require.NoError(t, err)
	require.True(t, state.Paused())
}

func TestMutateStateExhaustsRetries(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	repo.conflictsLeft = 10
	_, err := svc.Pause(context.Background(), "TCK-1")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestListBreachedFiltersByProject(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	registerCriticalTicket(t, svc, clock)

	repo.mu.Lock()
	state := repo.states["TCK-1"]
	state.Breached = true
	repo.states["TCK-1"] = state
	repo.mu.Unlock()

	projectID := "PRJ-1"
	breached, err := svc.ListBreached(context.Background(), repository.BreachedFilter{ProjectID: &projectID})
	require.NoError(t, err)
	require.Len(t, breached, 1)

	other := "PRJ-2"
	breached, err = svc.ListBreached(context.Background(), repository.BreachedFilter{ProjectID: &other})
	require.NoError(t, err)
	require.Empty(t, breached)
}
