package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-service/internal/domain"
)

// PolicyStore is the policy lookup contract the SLA engine depends on.
type PolicyStore interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// SLAPolicyRepository handles persistence for SLA policies.
type SLAPolicyRepository interface {
	PolicyStore
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	List(ctx context.Context, limit, offset int) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository instantiates the repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, name, critical_response_minutes, critical_resolution_minutes,
               high_response_minutes, high_resolution_minutes,
               medium_response_minutes, medium_resolution_minutes,
               low_response_minutes, low_resolution_minutes,
               business_hours_only, business_hour_start, business_hour_end,
               created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, critical_response_minutes, critical_resolution_minutes,
            high_response_minutes, high_resolution_minutes,
            medium_response_minutes, medium_resolution_minutes,
            low_response_minutes, low_resolution_minutes,
            business_hours_only, business_hour_start, business_hour_end)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.CriticalResponseMinutes,
		policy.CriticalResolutionMinutes,
		policy.HighResponseMinutes,
		policy.HighResolutionMinutes,
		policy.MediumResponseMinutes,
		policy.MediumResolutionMinutes,
		policy.LowResponseMinutes,
		policy.LowResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.BusinessHourStart,
		policy.BusinessHourEnd,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	return scanPolicy(r.pool.QueryRow(ctx, query, id))
}

func (r *slaPolicyRepository) List(ctx context.Context, limit, offset int) ([]domain.SLAPolicy, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + policyColumns + ` FROM sla_policies ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.CriticalResponseMinutes,
		&policy.CriticalResolutionMinutes,
		&policy.HighResponseMinutes,
		&policy.HighResolutionMinutes,
		&policy.MediumResponseMinutes,
		&policy.MediumResolutionMinutes,
		&policy.LowResponseMinutes,
		&policy.LowResolutionMinutes,
		&policy.BusinessHoursOnly,
		&policy.BusinessHourStart,
		&policy.BusinessHourEnd,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
