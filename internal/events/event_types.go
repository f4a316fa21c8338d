package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLARegistered EventType = "sla_registered"
	EventSLAPaused     EventType = "sla_paused"
	EventSLAResumed    EventType = "sla_resumed"
	EventSLABreached   EventType = "sla_breached"
	EventSLAAtRisk     EventType = "sla_at_risk"
)

// BreachType identifies which deadline was exceeded.
type BreachType string

const (
	BreachTypeResponse   BreachType = "response"
	BreachTypeResolution BreachType = "resolution"
)

// ActorType distinguishes who triggered an event.
type ActorType string

const (
	ActorTypeAgent  ActorType = "AGENT"
	ActorTypeSystem ActorType = "SYSTEM"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type      ActorType `json:"type"`
	SubjectID *string   `json:"subject_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SLARegisteredPayload payload.
type SLARegisteredPayload struct {
	PolicyID           string    `json:"policy_id"`
	Priority           string    `json:"priority"`
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
}

// SLAPausedPayload payload.
type SLAPausedPayload struct {
	PausedAt time.Time `json:"paused_at"`
}

// SLAResumedPayload payload.
type SLAResumedPayload struct {
	PauseMinutes       int       `json:"pause_minutes"`
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
}

// SLABreachedPayload payload, handed to the notification collaborator.
type SLABreachedPayload struct {
	BreachType BreachType `json:"breach_type"`
	Deadline   time.Time  `json:"deadline"`
	DetectedAt time.Time  `json:"detected_at"`
}

// SLAAtRiskPayload payload.
type SLAAtRiskPayload struct {
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	DetectedAt         time.Time `json:"detected_at"`
}
