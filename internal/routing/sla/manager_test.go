package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/engine"
	"leadrouter/platform/logger"

	"github.com/google/uuid"
)

type fakeBus struct {
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *fakeBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

type fakeStore struct {
	due []domain.SlaTimer
	// breachResults maps timer ID to (breached, pondPlaced)
	breachResults map[uuid.UUID][2]bool
	breachCalls   []uuid.UUID
	satisfied     []domain.SlaTimer
	satisfyErr    error
}

func (s *fakeStore) DueTimers(_ context.Context, _ *uuid.UUID, _ time.Time, _ int) ([]domain.SlaTimer, error) {
	return s.due, nil
}

func (s *fakeStore) BreachTimer(_ context.Context, timer domain.SlaTimer, _ time.Time) (bool, bool, error) {
	s.breachCalls = append(s.breachCalls, timer.ID)
	result := s.breachResults[timer.ID]
	return result[0], result[1], nil
}

func (s *fakeStore) SatisfyTimers(_ context.Context, _, _ uuid.UUID, _ domain.TimerType, _ time.Time) ([]domain.SlaTimer, error) {
	return s.satisfied, s.satisfyErr
}

func intptr(v int) *int { return &v }

func TestTimersFor_NoAgentNoTimers(t *testing.T) {
	decision := engine.Decision{
		UsedFallback:     true,
		SlaFirstTouchMin: intptr(15),
		SlaKeptApptMin:   intptr(1440),
	}
	timers := TimersFor(uuid.New(), uuid.New(), uuid.New(), decision, nil, time.Now())
	if timers != nil {
		t.Fatalf("expected no timers without an assigned agent, got %d", len(timers))
	}
}

func TestTimersFor_DerivesBothTypes(t *testing.T) {
	agentID := uuid.New()
	ruleID := uuid.New()
	pondID := uuid.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	decision := engine.Decision{
		RuleID:           &ruleID,
		AssignedAgentID:  &agentID,
		SlaFirstTouchMin: intptr(15),
		SlaKeptApptMin:   intptr(1440),
	}

	timers := TimersFor(uuid.New(), uuid.New(), uuid.New(), decision, &pondID, now)
	if len(timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(timers))
	}

	first := timers[0]
	if first.Type != domain.TimerFirstTouch {
		t.Fatalf("expected FIRST_TOUCH first, got %s", first.Type)
	}
	if !first.DueAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("expected due at +15m, got %v", first.DueAt)
	}
	if first.PondTeamID == nil || *first.PondTeamID != pondID {
		t.Fatalf("expected pond team carried onto the timer")
	}

	kept := timers[1]
	if kept.Type != domain.TimerKeptAppointment {
		t.Fatalf("expected KEPT_APPOINTMENT second, got %s", kept.Type)
	}
	if !kept.DueAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expected due at +24h, got %v", kept.DueAt)
	}
}

func TestTimersFor_ZeroThresholdSkipped(t *testing.T) {
	agentID := uuid.New()
	decision := engine.Decision{
		AssignedAgentID:  &agentID,
		SlaFirstTouchMin: intptr(0),
		SlaKeptApptMin:   intptr(60),
	}
	timers := TimersFor(uuid.New(), uuid.New(), uuid.New(), decision, nil, time.Now())
	if len(timers) != 1 || timers[0].Type != domain.TimerKeptAppointment {
		t.Fatalf("expected only the kept-appointment timer, got %d", len(timers))
	}
}

func TestSweep_BreachesDueTimers(t *testing.T) {
	pondTimer := domain.SlaTimer{ID: uuid.New(), Type: domain.TimerFirstTouch}
	plainTimer := domain.SlaTimer{ID: uuid.New(), Type: domain.TimerKeptAppointment}
	lostRace := domain.SlaTimer{ID: uuid.New(), Type: domain.TimerFirstTouch}

	store := &fakeStore{
		due: []domain.SlaTimer{pondTimer, plainTimer, lostRace},
		breachResults: map[uuid.UUID][2]bool{
			pondTimer.ID:  {true, true},
			plainTimer.ID: {true, false},
			lostRace.ID:   {false, false},
		},
	}
	bus := &fakeBus{}
	manager := NewManager(store, bus, logger.New("test"))

	result, err := manager.Sweep(context.Background(), nil, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", result.Processed)
	}
	if result.Breached != 2 {
		t.Fatalf("expected 2 breached, got %d", result.Breached)
	}
	if result.PondPlacements != 1 {
		t.Fatalf("expected 1 pond placement, got %d", result.PondPlacements)
	}
	// only flipped timers publish
	if len(bus.published) != 2 {
		t.Fatalf("expected 2 breach events, got %d", len(bus.published))
	}
}

func TestSweep_RerunIsIdempotent(t *testing.T) {
	timer := domain.SlaTimer{ID: uuid.New(), Type: domain.TimerFirstTouch}
	store := &fakeStore{
		due:           []domain.SlaTimer{timer},
		breachResults: map[uuid.UUID][2]bool{timer.ID: {true, false}},
	}
	bus := &fakeBus{}
	manager := NewManager(store, bus, logger.New("test"))

	if _, err := manager.Sweep(context.Background(), nil, time.Now()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// the store already flipped the timer; the rerun finds it due but loses
	// the guarded update
	store.breachResults[timer.ID] = [2]bool{false, false}
	result, err := manager.Sweep(context.Background(), nil, time.Now())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.Breached != 0 || result.PondPlacements != 0 {
		t.Fatalf("expected rerun to breach nothing, got %+v", result)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected no duplicate breach events, got %d", len(bus.published))
	}
}

func TestSatisfy_PublishesPerTimer(t *testing.T) {
	store := &fakeStore{satisfied: []domain.SlaTimer{
		{ID: uuid.New(), Type: domain.TimerFirstTouch},
		{ID: uuid.New(), Type: domain.TimerFirstTouch},
	}}
	bus := &fakeBus{}
	manager := NewManager(store, bus, logger.New("test"))

	count, err := manager.Satisfy(context.Background(), uuid.New(), uuid.New(), domain.TimerFirstTouch, time.Now())
	if err != nil {
		t.Fatalf("satisfy: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 satisfied, got %d", count)
	}
	if len(bus.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(bus.published))
	}
}

func TestSatisfy_NothingPendingIsNoop(t *testing.T) {
	bus := &fakeBus{}
	manager := NewManager(&fakeStore{}, bus, logger.New("test"))

	count, err := manager.Satisfy(context.Background(), uuid.New(), uuid.New(), domain.TimerFirstTouch, time.Now())
	if err != nil {
		t.Fatalf("satisfy: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 satisfied, got %d", count)
	}
	if len(bus.published) != 0 {
		t.Fatalf("expected no events, got %d", len(bus.published))
	}
}

func TestSatisfy_StoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("db down")
	manager := NewManager(&fakeStore{satisfyErr: wantErr}, &fakeBus{}, logger.New("test"))

	if _, err := manager.Satisfy(context.Background(), uuid.New(), uuid.New(), domain.TimerFirstTouch, time.Now()); !errors.Is(err, wantErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
