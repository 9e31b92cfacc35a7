package service

import (
	"context"
	"time"

	"leadrouter/internal/routing/candidates"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/repository"
	"leadrouter/internal/routing/sla"
	"leadrouter/platform/apperr"

	"github.com/google/uuid"
)

// CapacityEntry is one row of the capacity view.
type CapacityEntry struct {
	AgentID           uuid.UUID   `json:"agentId"`
	DisplayName       string      `json:"displayName"`
	CapacityRemaining int         `json:"capacityRemaining"`
	KeptApptRate      float64     `json:"keptApptRate"`
	TeamIDs           []uuid.UUID `json:"teamIds"`
}

// CapacityView reports current per-agent headroom derived the same way a
// decision would see it.
func (s *Service) CapacityView(ctx context.Context, tenantID uuid.UUID) ([]CapacityEntry, error) {
	roster, err := s.collaborateRoster(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// gating flags are irrelevant to the capacity read model
	snapshots := candidates.Build(candidates.BuildParams{
		Roster:         roster,
		ConsentReady:   true,
		MessagingReady: true,
	})

	entries := make([]CapacityEntry, 0, len(roster))
	for _, record := range roster {
		snapshot, ok := snapshots[record.Agent.ID]
		if !ok {
			continue
		}

		teamIDs := make([]uuid.UUID, 0, len(snapshot.Memberships))
		for _, m := range snapshot.Memberships {
			teamIDs = append(teamIDs, m.TeamID)
		}

		entries = append(entries, CapacityEntry{
			AgentID:           snapshot.Agent.AgentID,
			DisplayName:       snapshot.Agent.DisplayName,
			CapacityRemaining: snapshot.CapacityRemaining,
			KeptApptRate:      snapshot.Agent.KeptApptRate,
			TeamIDs:           teamIDs,
		})
	}
	return entries, nil
}

// ListRouteEvents pages the tenant's decision audit log.
func (s *Service) ListRouteEvents(ctx context.Context, tenantID uuid.UUID, leadID, cursor *uuid.UUID, limit int) (repository.RouteEventPage, error) {
	page, err := s.repo.ListRouteEvents(ctx, tenantID, leadID, cursor, limit)
	if err != nil {
		return repository.RouteEventPage{}, apperr.Wrap(apperr.KindInternal, "list route events", err)
	}
	return page, nil
}

// SlaDashboard pages the tenant's timers, soonest due first.
func (s *Service) SlaDashboard(ctx context.Context, tenantID uuid.UUID, status domain.TimerStatus, cursor *uuid.UUID, limit int) (repository.TimerPage, error) {
	switch status {
	case "", domain.TimerPending, domain.TimerSatisfied, domain.TimerBreached:
	default:
		return repository.TimerPage{}, apperr.Validation("unknown timer status")
	}

	page, err := s.repo.ListTimers(ctx, tenantID, status, cursor, limit)
	if err != nil {
		return repository.TimerPage{}, apperr.Wrap(apperr.KindInternal, "list sla timers", err)
	}
	return page, nil
}

// Metrics returns the tenant's routing metrics over the given window
// (default 30 days).
func (s *Service) Metrics(ctx context.Context, tenantID uuid.UUID, window time.Duration) (repository.Metrics, error) {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	metrics, err := s.repo.GetMetrics(ctx, tenantID, s.now().UTC().Add(-window))
	if err != nil {
		return repository.Metrics{}, apperr.Wrap(apperr.KindInternal, "get metrics", err)
	}
	return metrics, nil
}

// ProcessSlaTimers runs one sweep. A nil tenantID sweeps all tenants, which
// is how the scheduler invokes it.
func (s *Service) ProcessSlaTimers(ctx context.Context, tenantID *uuid.UUID) (sla.SweepResult, error) {
	result, err := s.sla.Sweep(ctx, tenantID, s.now().UTC())
	if err != nil {
		return result, apperr.Wrap(apperr.KindInternal, "sla sweep", err)
	}
	return result, nil
}

// RecordFirstTouch marks the lead's pending FIRST_TOUCH timers satisfied.
// Arriving after the timer already resolved is a quiet no-op.
func (s *Service) RecordFirstTouch(ctx context.Context, tenantID, leadID uuid.UUID) (int, error) {
	n, err := s.sla.Satisfy(ctx, tenantID, leadID, domain.TimerFirstTouch, s.now().UTC())
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "record first touch", err)
	}
	return n, nil
}

// RecordAppointmentKept marks the lead's pending KEPT_APPOINTMENT timers
// satisfied.
func (s *Service) RecordAppointmentKept(ctx context.Context, tenantID, leadID uuid.UUID) (int, error) {
	n, err := s.sla.Satisfy(ctx, tenantID, leadID, domain.TimerKeptAppointment, s.now().UTC())
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "record appointment kept", err)
	}
	return n, nil
}
