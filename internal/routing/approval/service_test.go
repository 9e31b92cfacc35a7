package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/repository"
	"leadrouter/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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
	items map[uuid.UUID]domain.ApprovalQueueItem

	resolvedStatus  domain.QueueStatus
	resolvedAgentID *uuid.UUID
	expiredCount    int
	assignments     []repository.Assignment
	outboxEvents    []outbox.InsertParams
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (s *fakeStore) ListQueueItems(_ context.Context, _ uuid.UUID, status domain.QueueStatus, _ *uuid.UUID, _ int) (repository.QueuePage, error) {
	var page repository.QueuePage
	for _, item := range s.items {
		if item.Status == status {
			page.Items = append(page.Items, item)
		}
	}
	return page, nil
}

func (s *fakeStore) GetQueueItemForUpdate(_ context.Context, _ repository.DB, _, id uuid.UUID) (domain.ApprovalQueueItem, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.ApprovalQueueItem{}, repository.ErrQueueItemNotFound
	}
	return item, nil
}

func (s *fakeStore) ResolveQueueItem(_ context.Context, _ repository.DB, id uuid.UUID, status domain.QueueStatus, _ uuid.UUID, approvedAgentID *uuid.UUID, _ time.Time) (bool, error) {
	item := s.items[id]
	if item.Status != domain.QueuePending {
		return false, nil
	}
	item.Status = status
	item.ApprovedAgentID = approvedAgentID
	s.items[id] = item
	s.resolvedStatus = status
	s.resolvedAgentID = approvedAgentID
	return true, nil
}

func (s *fakeStore) ExpireCompeting(_ context.Context, _ repository.DB, _, leadID, exceptID uuid.UUID, _ time.Time) (int, error) {
	count := 0
	for id, item := range s.items {
		if item.LeadID == leadID && id != exceptID && item.Status == domain.QueuePending {
			item.Status = domain.QueueExpired
			s.items[id] = item
			count++
		}
	}
	s.expiredCount = count
	return count, nil
}

func (s *fakeStore) InsertAssignment(_ context.Context, _ repository.DB, a repository.Assignment) (uuid.UUID, error) {
	s.assignments = append(s.assignments, a)
	return uuid.New(), nil
}

func (s *fakeStore) InsertOutbox(_ context.Context, _ repository.DB, p outbox.InsertParams) error {
	s.outboxEvents = append(s.outboxEvents, p)
	return nil
}

func pendingItem(tenantID uuid.UUID, ranked []domain.ConsideredCandidate) domain.ApprovalQueueItem {
	return domain.ApprovalQueueItem{
		ID:               uuid.New(),
		TenantID:         tenantID,
		LeadID:           uuid.New(),
		RouteEventID:     uuid.New(),
		Status:           domain.QueuePending,
		RankedCandidates: ranked,
	}
}

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr, got %v", err)
	}
	return appErr.Kind
}

func TestApprove_TakesRecommendationByDefault(t *testing.T) {
	tenantID := uuid.New()
	recommended := uuid.New()
	runnerUp := uuid.New()

	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: recommended, Status: domain.CandidateSelected},
		{AgentID: runnerUp, Status: domain.CandidateRejected},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	bus := &fakeBus{}
	svc := NewService(store, bus)

	resolution, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolution.Status != domain.QueueApproved {
		t.Fatalf("expected APPROVED, got %s", resolution.Status)
	}
	if resolution.AssignedAgentID == nil || *resolution.AssignedAgentID != recommended {
		t.Fatalf("expected the recommendation to be assigned")
	}
	if len(store.assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(store.assignments))
	}
	if store.assignments[0].Source != repository.SourceApproval {
		t.Fatalf("expected APPROVAL source, got %s", store.assignments[0].Source)
	}
	if len(store.outboxEvents) != 1 || store.outboxEvents[0].EventName != events.NameApprovalResolved {
		t.Fatalf("expected one approval-resolved outbox row")
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 bus event, got %d", len(bus.published))
	}
}

func TestApprove_ExplicitAlternate(t *testing.T) {
	tenantID := uuid.New()
	recommended := uuid.New()
	alternate := uuid.New()

	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: recommended, Status: domain.CandidateSelected},
		{AgentID: alternate, Status: domain.CandidateRejected},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	svc := NewService(store, &fakeBus{})

	resolution, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), &alternate)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolution.AssignedAgentID == nil || *resolution.AssignedAgentID != alternate {
		t.Fatalf("expected the alternate to be assigned")
	}
}

func TestApprove_DisqualifiedChoiceRejected(t *testing.T) {
	tenantID := uuid.New()
	recommended := uuid.New()
	gated := uuid.New()

	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: recommended, Status: domain.CandidateSelected},
		{AgentID: gated, Status: domain.CandidateDisqualified, Reasons: []string{domain.ReasonConsentNotGranted}},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	svc := NewService(store, &fakeBus{})

	_, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), &gated)
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation error for disqualified choice, got %v", err)
	}
	if len(store.assignments) != 0 {
		t.Fatalf("expected no assignment on rejected choice")
	}
}

func TestApprove_NonCandidateChoiceRejected(t *testing.T) {
	tenantID := uuid.New()
	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: uuid.New(), Status: domain.CandidateSelected},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	svc := NewService(store, &fakeBus{})

	outsider := uuid.New()
	_, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), &outsider)
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation error for outsider choice, got %v", err)
	}
}

func TestApprove_AlreadyResolvedConflicts(t *testing.T) {
	tenantID := uuid.New()
	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: uuid.New(), Status: domain.CandidateSelected},
	})
	item.Status = domain.QueueApproved
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	bus := &fakeBus{}
	svc := NewService(store, bus)

	_, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), nil)
	if kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.assignments) != 0 || len(bus.published) != 0 {
		t.Fatalf("expected resolving a resolved entry to have no side effects")
	}
}

func TestApprove_NotFound(t *testing.T) {
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{}}
	svc := NewService(store, &fakeBus{})

	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New(), uuid.New(), nil)
	if kindOf(t, err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApprove_NoEligibleCandidates(t *testing.T) {
	tenantID := uuid.New()
	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: uuid.New(), Status: domain.CandidateDisqualified},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	svc := NewService(store, &fakeBus{})

	_, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), nil)
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation error when nothing is selectable, got %v", err)
	}
}

func TestApprove_ExpiresCompetingEntries(t *testing.T) {
	tenantID := uuid.New()
	recommended := uuid.New()

	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: recommended, Status: domain.CandidateSelected},
	})
	competing := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: recommended, Status: domain.CandidateSelected},
	})
	competing.LeadID = item.LeadID

	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{
		item.ID:      item,
		competing.ID: competing,
	}}
	svc := NewService(store, &fakeBus{})

	resolution, err := svc.Approve(context.Background(), tenantID, item.ID, uuid.New(), nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolution.ExpiredEntries != 1 {
		t.Fatalf("expected 1 expired entry, got %d", resolution.ExpiredEntries)
	}
	if store.items[competing.ID].Status != domain.QueueExpired {
		t.Fatalf("expected competing entry EXPIRED, got %s", store.items[competing.ID].Status)
	}
}

func TestReject_ClosesWithoutAssigning(t *testing.T) {
	tenantID := uuid.New()
	item := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: uuid.New(), Status: domain.CandidateSelected},
	})
	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{item.ID: item}}
	bus := &fakeBus{}
	svc := NewService(store, bus)

	resolution, err := svc.Reject(context.Background(), tenantID, item.ID, uuid.New())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if resolution.Status != domain.QueueRejected {
		t.Fatalf("expected REJECTED, got %s", resolution.Status)
	}
	if resolution.AssignedAgentID != nil {
		t.Fatalf("expected no assignment on reject")
	}
	if len(store.assignments) != 0 {
		t.Fatalf("expected no assignment row on reject")
	}
	if len(store.outboxEvents) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(store.outboxEvents))
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 bus event, got %d", len(bus.published))
	}
}

func TestList_DefaultsToPending(t *testing.T) {
	tenantID := uuid.New()
	recommended := uuid.New()
	pending := pendingItem(tenantID, []domain.ConsideredCandidate{
		{AgentID: uuid.New(), Status: domain.CandidateDisqualified},
		{AgentID: recommended, Status: domain.CandidateSelected},
		{AgentID: uuid.New(), Status: domain.CandidateRejected},
	})
	resolved := pendingItem(tenantID, nil)
	resolved.Status = domain.QueueApproved

	store := &fakeStore{items: map[uuid.UUID]domain.ApprovalQueueItem{
		pending.ID:  pending,
		resolved.ID: resolved,
	}}
	svc := NewService(store, &fakeBus{})

	page, err := svc.List(context.Background(), tenantID, "", nil, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected only the pending entry, got %d", len(page.Items))
	}
	view := page.Items[0]
	if view.Recommendation == nil || view.Recommendation.AgentID != recommended {
		t.Fatalf("expected the first selectable candidate as recommendation")
	}
	if len(view.Alternates) != 1 {
		t.Fatalf("expected 1 alternate, got %d", len(view.Alternates))
	}
}
