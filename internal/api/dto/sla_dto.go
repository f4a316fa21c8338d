package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TokenRequest payload.
type TokenRequest struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

// TokenResponse payload.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterSLARequest enrolls a ticket into SLA tracking.
type RegisterSLARequest struct {
	ProjectID string     `json:"project_id"`
	PolicyID  string     `json:"policy_id"`
	Priority  string     `json:"priority"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at"`
}

// StatusChangeRequest mirrors a ticket status transition.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// SLAStateResponse is the persisted SLA view of a ticket.
type SLAStateResponse struct {
	TicketID                string                `json:"ticket_id"`
	ProjectID               string                `json:"project_id"`
	PolicyID                string                `json:"policy_id"`
	Priority                domain.TicketPriority `json:"priority"`
	Status                  domain.TicketStatus   `json:"status"`
	CreatedAt               time.Time             `json:"created_at"`
	ResponseDeadline        time.Time             `json:"response_deadline"`
	ResolutionDeadline      time.Time             `json:"resolution_deadline"`
	PausedAt                *time.Time            `json:"paused_at,omitempty"`
	AccumulatedPauseMinutes int                   `json:"accumulated_pause_minutes"`
	Breached                bool                  `json:"breached"`
	AtRisk                  bool                  `json:"at_risk"`
	BreachStatus            domain.BreachStatus   `json:"breach_status"`
	UpdatedAt               time.Time             `json:"updated_at"`
}

// BreachEvaluationResponse is the transient evaluation result.
type BreachEvaluationResponse struct {
	ResponseBreached    bool                `json:"response_breached"`
	ResolutionBreached  bool                `json:"resolution_breached"`
	BreachStatus        domain.BreachStatus `json:"breach_status"`
	IsBreached          bool                `json:"is_breached"`
	IsAtRisk            bool                `json:"is_at_risk"`
	TimeRemainingMS     int64               `json:"time_remaining_ms"`
	BusinessMinutesUsed int                 `json:"business_minutes_used"`
}

// SLAStatusResponse combines persisted state with a live evaluation.
type SLAStatusResponse struct {
	State      SLAStateResponse         `json:"state"`
	Evaluation BreachEvaluationResponse `json:"evaluation"`
}

// PolicyRequest creates an SLA policy. Omitted minute overrides fall back
// to the default table.
type PolicyRequest struct {
	Name                      string `json:"name"`
	CriticalResponseMinutes   *int   `json:"critical_response_minutes"`
	CriticalResolutionMinutes *int   `json:"critical_resolution_minutes"`
	HighResponseMinutes       *int   `json:"high_response_minutes"`
	HighResolutionMinutes     *int   `json:"high_resolution_minutes"`
	MediumResponseMinutes     *int   `json:"medium_response_minutes"`
	MediumResolutionMinutes   *int   `json:"medium_resolution_minutes"`
	LowResponseMinutes        *int   `json:"low_response_minutes"`
	LowResolutionMinutes      *int   `json:"low_resolution_minutes"`
	BusinessHoursOnly         bool   `json:"business_hours_only"`
	BusinessHourStart         int    `json:"business_hour_start"`
	BusinessHourEnd           int    `json:"business_hour_end"`
}

// PolicyResponse payload.
type PolicyResponse struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	CriticalResponseMinutes   *int      `json:"critical_response_minutes,omitempty"`
	CriticalResolutionMinutes *int      `json:"critical_resolution_minutes,omitempty"`
	HighResponseMinutes       *int      `json:"high_response_minutes,omitempty"`
	HighResolutionMinutes     *int      `json:"high_resolution_minutes,omitempty"`
	MediumResponseMinutes     *int      `json:"medium_response_minutes,omitempty"`
	MediumResolutionMinutes   *int      `json:"medium_resolution_minutes,omitempty"`
	LowResponseMinutes        *int      `json:"low_response_minutes,omitempty"`
	LowResolutionMinutes      *int      `json:"low_resolution_minutes,omitempty"`
	BusinessHoursOnly         bool      `json:"business_hours_only"`
	BusinessHourStart         int       `json:"business_hour_start"`
	BusinessHourEnd           int       `json:"business_hour_end"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}
