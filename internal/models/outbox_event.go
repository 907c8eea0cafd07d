package models

import "time"

// MaterialRequestEvent is the outbound domain event emitted per transition.
type MaterialRequestEvent struct {
	ID             string                `json:"id"`
	Name           string                `json:"event"`
	RequestID      string                `json:"request_id"`
	RequestNumber  string                `json:"request_number"`
	OrganizationID string                `json:"organization_id"`
	FromStatus     MaterialRequestStatus `json:"from_status,omitempty"`
	ToStatus       MaterialRequestStatus `json:"to_status"`
	ActorUserID    string                `json:"actor_user_id"`
	Timestamp      time.Time             `json:"timestamp"`
}

// OutboxEvent is an event stored with its transaction, waiting to be published.
type OutboxEvent struct {
	ID          string               `json:"id"`
	Event       MaterialRequestEvent `json:"event"`
	Attempts    int                  `json:"attempts"`
	LastError   string               `json:"last_error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	PublishedAt *time.Time           `json:"published_at,omitempty"`
	ParkedAt    *time.Time           `json:"parked_at,omitempty"`
}
