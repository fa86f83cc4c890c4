package server

import (
	"context"
	"time"
)

// HealthChecks reports each dependency. Database is nil when none is configured.
type HealthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status     string       `json:"status"`
	Checks     HealthChecks `json:"checks"`
	Operations int          `json:"operations"`
	Timestamp  string       `json:"timestamp"`
}

// Health checks the relay's dependencies.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	commsOk := s.nc != nil && s.nc.IsConnected()
	healthy := commsOk

	checks := HealthChecks{Comms: commsOk}
	if s.database != nil {
		dbOk := s.database.Ping(ctx) == nil
		checks.Database = &dbOk
		healthy = healthy && dbOk
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status:     status,
		Checks:     checks,
		Operations: s.reg.Len(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
