package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-service/internal/domain"
)

// ErrVersionConflict signals that a versioned update lost a race and the
// caller should re-read and retry.
var ErrVersionConflict = errors.New("sla state version conflict")

// BreachedFilter captures breached-ticket listing parameters.
type BreachedFilter struct {
	ProjectID *string
	Priority  *domain.TicketPriority
	Limit     int
	Offset    int
}

// TicketSLARepository encapsulates SLA state persistence. Updates are
// atomic per ticket via an optimistic version check.
type TicketSLARepository interface {
	Create(ctx context.Context, state *domain.TicketSLAState) error
	GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketSLAState, error)
	Update(ctx context.Context, state *domain.TicketSLAState) error
	ListReconciliationCandidates(ctx context.Context) ([]string, error)
	ListBreached(ctx context.Context, filter BreachedFilter) ([]domain.TicketSLAState, error)
}

type ticketSLARepository struct {
	pool *pgxpool.Pool
}

// NewTicketSLARepository instantiates repository.
func NewTicketSLARepository(pool *pgxpool.Pool) TicketSLARepository {
	return &ticketSLARepository{pool: pool}
}

const slaStateColumns = `ticket_id, project_id, policy_id, priority, status, created_at,
               response_deadline, resolution_deadline, paused_at, accumulated_pause_minutes,
               breached, at_risk, breach_status, version, updated_at`

func (r *ticketSLARepository) Create(ctx context.Context, state *domain.TicketSLAState) error {
	const query = `
        INSERT INTO ticket_sla_states (ticket_id, project_id, policy_id, priority, status, created_at,
            response_deadline, resolution_deadline, paused_at, accumulated_pause_minutes,
            breached, at_risk, breach_status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING version, updated_at`
	return r.pool.QueryRow(ctx, query,
		state.TicketID,
		state.ProjectID,
		state.PolicyID,
		state.Priority,
		state.Status,
		state.CreatedAt,
		state.ResponseDeadline,
		state.ResolutionDeadline,
		state.PausedAt,
		state.AccumulatedPauseMinutes,
		state.Breached,
		state.AtRisk,
		state.BreachStatus,
	).Scan(&state.Version, &state.UpdatedAt)
}

// Update persists all mutable fields guarded by the version the caller
// read. A stale version returns ErrVersionConflict and writes nothing.
func (r *ticketSLARepository) Update(ctx context.Context, state *domain.TicketSLAState) error {
	const query = `
        UPDATE ticket_sla_states
        SET status=$1, response_deadline=$2, resolution_deadline=$3, paused_at=$4,
            accumulated_pause_minutes=$5, breached=$6, at_risk=$7, breach_status=$8,
            version=version+1, updated_at=NOW()
        WHERE ticket_id=$9 AND version=$10
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		state.Status,
		state.ResponseDeadline,
		state.ResolutionDeadline,
		state.PausedAt,
		state.AccumulatedPauseMinutes,
		state.Breached,
		state.AtRisk,
		state.BreachStatus,
		state.TicketID,
		state.Version,
	).Scan(&state.Version, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *ticketSLARepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	query := fmt.Sprintf(`SELECT %s FROM ticket_sla_states WHERE ticket_id=$1`, slaStateColumns)
	var state domain.TicketSLAState
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&state.TicketID,
		&state.ProjectID,
		&state.PolicyID,
		&state.Priority,
		&state.Status,
		&state.CreatedAt,
		&state.ResponseDeadline,
		&state.ResolutionDeadline,
		&state.PausedAt,
		&state.AccumulatedPauseMinutes,
		&state.Breached,
		&state.AtRisk,
		&state.BreachStatus,
		&state.Version,
		&state.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListReconciliationCandidates returns ids of tickets whose SLA clock is
// live: non-terminal and not paused.
func (r *ticketSLARepository) ListReconciliationCandidates(ctx context.Context) ([]string, error) {
	const query = `
        SELECT ticket_id FROM ticket_sla_states
        WHERE status NOT IN ('RESOLVED','CLOSED','CANCELLED') AND paused_at IS NULL
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ticketSLARepository) ListBreached(ctx context.Context, filter BreachedFilter) ([]domain.TicketSLAState, error) {
	base := fmt.Sprintf(`SELECT %s FROM ticket_sla_states`, slaStateColumns)
	clauses := []string{
		"status NOT IN ('RESOLVED','CLOSED','CANCELLED')",
		"breached = TRUE",
	}
	args := []any{}

	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		clauses = append(clauses, fmt.Sprintf("project_id=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStates(rows)
}

func scanStates(rows pgx.Rows) ([]domain.TicketSLAState, error) {
	var result []domain.TicketSLAState
	for rows.Next() {
		var state domain.TicketSLAState
		if err := rows.Scan(
			&state.TicketID,
			&state.ProjectID,
			&state.PolicyID,
			&state.Priority,
			&state.Status,
			&state.CreatedAt,
			&state.ResponseDeadline,
			&state.ResolutionDeadline,
			&state.PausedAt,
			&state.AccumulatedPauseMinutes,
			&state.Breached,
			&state.AtRisk,
			&state.BreachStatus,
			&state.Version,
			&state.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, state)
	}
	return result, rows.Err()
}
