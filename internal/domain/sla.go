package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusPendingCustomer TicketStatus = "PENDING_CUSTOMER"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
	TicketStatusCancelled       TicketStatus = "CANCELLED"
)

// IsTerminal reports whether the SLA clock stopped for good.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "CRITICAL"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityLow      TicketPriority = "LOW"
)

// TicketPriorities lists all recognized priorities.
func TicketPriorities() []TicketPriority {
	return []TicketPriority{
		TicketPriorityCritical,
		TicketPriorityHigh,
		TicketPriorityMedium,
		TicketPriorityLow,
	}
}

// ParseTicketPriority normalizes a raw priority value.
func ParseTicketPriority(value string) (TicketPriority, bool) {
	switch TicketPriority(value) {
	case TicketPriorityCritical, TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return TicketPriority(value), true
	}
	return "", false
}

// SLAPolicy defines per-priority minute budgets and the calendar rule.
// Unset overrides fall back to the documented default table.
type SLAPolicy struct {
	ID                        string
	Name                      string
	CriticalResponseMinutes   *int
	CriticalResolutionMinutes *int
	HighResponseMinutes       *int
	HighResolutionMinutes     *int
	MediumResponseMinutes     *int
	MediumResolutionMinutes   *int
	LowResponseMinutes        *int
	LowResolutionMinutes      *int
	BusinessHoursOnly         bool
	BusinessHourStart         int
	BusinessHourEnd           int
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// TicketSLAState is the SLA-relevant subset of a ticket.
type TicketSLAState struct {
	TicketID                string
	ProjectID               string
	PolicyID                string
	Priority                TicketPriority
	Status                  TicketStatus
	CreatedAt               time.Time
	ResponseDeadline        time.Time
	ResolutionDeadline      time.Time
	PausedAt                *time.Time
	AccumulatedPauseMinutes int
	Breached                bool
	AtRisk                  bool
	BreachStatus            BreachStatus
	Version                 int64
	UpdatedAt               time.Time
}

// Paused reports whether the SLA clock is currently frozen.
func (t *TicketSLAState) Paused() bool {
	return t.PausedAt != nil
}

// BreachStatus summarizes which deadlines have been exceeded.
type BreachStatus string

const (
	BreachStatusNone       BreachStatus = "none"
	BreachStatusResponse   BreachStatus = "response_breached"
	BreachStatusResolution BreachStatus = "resolution_breached"
	BreachStatusBoth       BreachStatus = "both_breached"
)

// BreachEvaluation is the transient result of evaluating a ticket's SLA
// position at an instant. It is never persisted as-is.
type BreachEvaluation struct {
	ResponseBreached    bool
	ResolutionBreached  bool
	BreachStatus        BreachStatus
	IsBreached          bool
	IsAtRisk            bool
	TimeRemainingMS     int64
	BusinessMinutesUsed int
}
