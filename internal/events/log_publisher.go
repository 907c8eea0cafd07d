package events

import (
	"context"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/models"
)

// LogPublisher writes events to the log. Used when Redis is unavailable.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("component", "event_log")}
}

func (p *LogPublisher) Publish(_ context.Context, e models.MaterialRequestEvent) error {
	p.log.Info("domain event",
		"event", e.Name,
		"request_id", e.RequestID,
		"organization_id", e.OrganizationID,
		"from_status", string(e.FromStatus),
		"to_status", string(e.ToStatus),
		"actor", e.ActorUserID,
	)
	return nil
}
