// Package sla manages the response-time timers created at assignment:
// creation from rule declarations, satisfaction on business events, and the
// periodic breach sweep.
package sla

import (
	"context"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/engine"
	"leadrouter/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the manager needs. BreachTimer must be
// atomic and idempotent: only the call that actually flips the timer reports
// breached=true, and only that call places the pond assignment.
type Store interface {
	DueTimers(ctx context.Context, tenantID *uuid.UUID, now time.Time, limit int) ([]domain.SlaTimer, error)
	BreachTimer(ctx context.Context, timer domain.SlaTimer, now time.Time) (breached, pondPlaced bool, err error)
	SatisfyTimers(ctx context.Context, tenantID, leadID uuid.UUID, timerType domain.TimerType, at time.Time) ([]domain.SlaTimer, error)
}

// Manager owns the SLA timer lifecycle.
type Manager struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func NewManager(store Store, bus events.Bus, log *logger.Logger) *Manager {
	return &Manager{store: store, bus: bus, log: log}
}

// TimersFor derives the timers a committed decision requires. Decisions
// without an assigned agent get no timers; there is nobody to hold to them.
func TimersFor(tenantID, leadID, routeEventID uuid.UUID, decision engine.Decision, pondTeamID *uuid.UUID, now time.Time) []domain.SlaTimer {
	if decision.AssignedAgentID == nil {
		return nil
	}

	var timers []domain.SlaTimer
	if decision.SlaFirstTouchMin != nil && *decision.SlaFirstTouchMin > 0 {
		timers = append(timers, domain.SlaTimer{
			TenantID:        tenantID,
			LeadID:          leadID,
			RouteEventID:    routeEventID,
			Type:            domain.TimerFirstTouch,
			Status:          domain.TimerPending,
			DueAt:           now.Add(time.Duration(*decision.SlaFirstTouchMin) * time.Minute),
			RuleID:          decision.RuleID,
			AssignedAgentID: decision.AssignedAgentID,
			PondTeamID:      pondTeamID,
		})
	}
	if decision.SlaKeptApptMin != nil && *decision.SlaKeptApptMin > 0 {
		timers = append(timers, domain.SlaTimer{
			TenantID:        tenantID,
			LeadID:          leadID,
			RouteEventID:    routeEventID,
			Type:            domain.TimerKeptAppointment,
			Status:          domain.TimerPending,
			DueAt:           now.Add(time.Duration(*decision.SlaKeptApptMin) * time.Minute),
			RuleID:          decision.RuleID,
			AssignedAgentID: decision.AssignedAgentID,
			PondTeamID:      pondTeamID,
		})
	}
	return timers
}

// Satisfy resolves the lead's pending timers of one type. Satisfying when
// nothing is pending is a no-op; the business event simply arrived after the
// timer already resolved.
func (m *Manager) Satisfy(ctx context.Context, tenantID, leadID uuid.UUID, timerType domain.TimerType, at time.Time) (int, error) {
	satisfied, err := m.store.SatisfyTimers(ctx, tenantID, leadID, timerType, at)
	if err != nil {
		return 0, err
	}

	for _, t := range satisfied {
		m.bus.Publish(ctx, events.SlaTimerSatisfied{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  t.TenantID,
			LeadID:    t.LeadID,
			TimerID:   t.ID,
			TimerType: string(t.Type),
		})
	}
	return len(satisfied), nil
}

// SweepResult summarizes one sweep batch.
type SweepResult struct {
	Processed      int `json:"processed"`
	Breached       int `json:"breached"`
	PondPlacements int `json:"pondPlacements"`
}

// Sweep breaches every due PENDING timer. Each timer flips in its own
// transaction, so a failure partway leaves earlier breaches committed and
// later timers due for the next sweep. Re-running a sweep over the same
// window changes nothing: the PENDING guard means a timer breaches once.
func (m *Manager) Sweep(ctx context.Context, tenantID *uuid.UUID, now time.Time) (SweepResult, error) {
	due, err := m.store.DueTimers(ctx, tenantID, now, 500)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, timer := range due {
		result.Processed++

		breached, pondPlaced, err := m.store.BreachTimer(ctx, timer, now)
		if err != nil {
			return result, err
		}
		if !breached {
			// lost the race to a concurrent sweep or satisfaction
			continue
		}
		result.Breached++
		if pondPlaced {
			result.PondPlacements++
		}

		m.bus.Publish(ctx, events.SlaTimerBreached{
			BaseEvent:       events.NewBaseEvent(),
			TenantID:        timer.TenantID,
			LeadID:          timer.LeadID,
			TimerID:         timer.ID,
			TimerType:       string(timer.Type),
			RuleID:          timer.RuleID,
			AssignedAgentID: timer.AssignedAgentID,
			PondTeamID:      timer.PondTeamID,
		})
	}

	m.log.SlaSweep(result.Processed, result.Breached, result.PondPlacements)
	return result, nil
}
