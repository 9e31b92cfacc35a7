// Package approval implements the broker review queue used by tenants in
// APPROVAL_POOL routing mode: staged decisions are listed with the engine's
// recommendation, then approved (committing an assignment) or rejected.
package approval

import (
	"context"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/repository"
	"leadrouter/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxAlternates = 5

// Store is the persistence surface the service needs; *repository.Repository
// implements it.
type Store interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ListQueueItems(ctx context.Context, tenantID uuid.UUID, status domain.QueueStatus, cursor *uuid.UUID, limit int) (repository.QueuePage, error)
	GetQueueItemForUpdate(ctx context.Context, db repository.DB, tenantID, id uuid.UUID) (domain.ApprovalQueueItem, error)
	ResolveQueueItem(ctx context.Context, db repository.DB, id uuid.UUID, status domain.QueueStatus, resolvedBy uuid.UUID, approvedAgentID *uuid.UUID, at time.Time) (bool, error)
	ExpireCompeting(ctx context.Context, db repository.DB, tenantID, leadID, exceptID uuid.UUID, at time.Time) (int, error)
	InsertAssignment(ctx context.Context, db repository.DB, a repository.Assignment) (uuid.UUID, error)
	InsertOutbox(ctx context.Context, db repository.DB, p outbox.InsertParams) error
}

type Service struct {
	store Store
	bus   events.Bus
	now   func() time.Time
}

func NewService(store Store, bus events.Bus) *Service {
	return &Service{store: store, bus: bus, now: time.Now}
}

// QueueItemView is one review entry as shown to the broker.
type QueueItemView struct {
	ID             uuid.UUID                    `json:"id"`
	LeadID         uuid.UUID                    `json:"leadId"`
	RouteEventID   uuid.UUID                    `json:"routeEventId"`
	Status         domain.QueueStatus           `json:"status"`
	Lead           domain.LeadSummary           `json:"lead"`
	Recommendation *domain.ConsideredCandidate  `json:"recommendation,omitempty"`
	Alternates     []domain.ConsideredCandidate `json:"alternates,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
}

// ListPage is a page of review entries plus the cursor for the next page.
type ListPage struct {
	Items      []QueueItemView `json:"items"`
	NextCursor *uuid.UUID      `json:"nextCursor,omitempty"`
}

// List returns the tenant's queue in arrival order. An empty status defaults
// to PENDING, the broker's working set.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status domain.QueueStatus, cursor *uuid.UUID, limit int) (ListPage, error) {
	if status == "" {
		status = domain.QueuePending
	}

	page, err := s.store.ListQueueItems(ctx, tenantID, status, cursor, limit)
	if err != nil {
		return ListPage{}, apperr.Wrap(apperr.KindInternal, "list approval queue", err)
	}

	views := make([]QueueItemView, 0, len(page.Items))
	for _, item := range page.Items {
		views = append(views, QueueItemView{
			ID:             item.ID,
			LeadID:         item.LeadID,
			RouteEventID:   item.RouteEventID,
			Status:         item.Status,
			Lead:           item.LeadSummary,
			Recommendation: item.Recommendation(),
			Alternates:     item.Alternates(maxAlternates),
			CreatedAt:      item.CreatedAt,
		})
	}
	return ListPage{Items: views, NextCursor: page.NextCursor}, nil
}

// Resolution reports the outcome of an approve or reject.
type Resolution struct {
	QueueItemID     uuid.UUID  `json:"queueItemId"`
	LeadID          uuid.UUID  `json:"leadId"`
	Status          domain.QueueStatus `json:"status"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	ExpiredEntries  int        `json:"expiredEntries"`
}

// Approve commits the staged assignment. A nil chosenAgentID takes the
// engine's recommendation; an explicit choice must be one of the entry's
// non-disqualified candidates. Resolving a non-PENDING entry is a conflict
// and has no side effects.
func (s *Service) Approve(ctx context.Context, tenantID, itemID, resolvedBy uuid.UUID, chosenAgentID *uuid.UUID) (Resolution, error) {
	now := s.now().UTC()
	var resolution Resolution

	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		item, err := s.store.GetQueueItemForUpdate(ctx, tx, tenantID, itemID)
		if err != nil {
			if err == repository.ErrQueueItemNotFound {
				return apperr.NotFound("approval queue item")
			}
			return apperr.Wrap(apperr.KindInternal, "load approval queue item", err)
		}
		if item.Status != domain.QueuePending {
			return apperr.Conflict("approval queue item already resolved")
		}

		agentID, err := resolveChoice(item, chosenAgentID)
		if err != nil {
			return err
		}

		resolved, err := s.store.ResolveQueueItem(ctx, tx, item.ID, domain.QueueApproved, resolvedBy, &agentID, now)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "resolve approval queue item", err)
		}
		if !resolved {
			return apperr.Conflict("approval queue item already resolved")
		}

		expired, err := s.store.ExpireCompeting(ctx, tx, tenantID, item.LeadID, item.ID, now)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "expire competing entries", err)
		}

		if _, err := s.store.InsertAssignment(ctx, tx, repository.Assignment{
			TenantID:     tenantID,
			LeadID:       item.LeadID,
			AgentID:      &agentID,
			RouteEventID: &item.RouteEventID,
			Source:       repository.SourceApproval,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert assignment", err)
		}

		if err := s.store.InsertOutbox(ctx, tx, outbox.InsertParams{
			TenantID:  tenantID,
			EventName: events.NameApprovalResolved,
			Payload: map[string]any{
				"tenantId":        tenantID,
				"leadId":          item.LeadID,
				"queueItemId":     item.ID,
				"approved":        true,
				"assignedAgentId": agentID,
				"resolvedBy":      resolvedBy,
				"resolvedAt":      now,
			},
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert outbox event", err)
		}

		resolution = Resolution{
			QueueItemID:     item.ID,
			LeadID:          item.LeadID,
			Status:          domain.QueueApproved,
			AssignedAgentID: &agentID,
			ExpiredEntries:  expired,
		}
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}

	s.bus.Publish(ctx, events.ApprovalResolved{
		BaseEvent:       events.NewBaseEvent(),
		TenantID:        tenantID,
		LeadID:          resolution.LeadID,
		QueueItemID:     resolution.QueueItemID,
		Approved:        true,
		AssignedAgentID: resolution.AssignedAgentID,
		ResolvedBy:      resolvedBy,
	})
	return resolution, nil
}

// Reject closes the entry without assigning; the lead stays where routing
// parked it. Rejecting a non-PENDING entry is a conflict.
func (s *Service) Reject(ctx context.Context, tenantID, itemID, resolvedBy uuid.UUID) (Resolution, error) {
	now := s.now().UTC()
	var resolution Resolution

	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		item, err := s.store.GetQueueItemForUpdate(ctx, tx, tenantID, itemID)
		if err != nil {
			if err == repository.ErrQueueItemNotFound {
				return apperr.NotFound("approval queue item")
			}
			return apperr.Wrap(apperr.KindInternal, "load approval queue item", err)
		}
		if item.Status != domain.QueuePending {
			return apperr.Conflict("approval queue item already resolved")
		}

		resolved, err := s.store.ResolveQueueItem(ctx, tx, item.ID, domain.QueueRejected, resolvedBy, nil, now)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "resolve approval queue item", err)
		}
		if !resolved {
			return apperr.Conflict("approval queue item already resolved")
		}

		if err := s.store.InsertOutbox(ctx, tx, outbox.InsertParams{
			TenantID:  tenantID,
			EventName: events.NameApprovalResolved,
			Payload: map[string]any{
				"tenantId":    tenantID,
				"leadId":      item.LeadID,
				"queueItemId": item.ID,
				"approved":    false,
				"resolvedBy":  resolvedBy,
				"resolvedAt":  now,
			},
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert outbox event", err)
		}

		resolution = Resolution{
			QueueItemID: item.ID,
			LeadID:      item.LeadID,
			Status:      domain.QueueRejected,
		}
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}

	s.bus.Publish(ctx, events.ApprovalResolved{
		BaseEvent:   events.NewBaseEvent(),
		TenantID:    tenantID,
		LeadID:      resolution.LeadID,
		QueueItemID: resolution.QueueItemID,
		Approved:    false,
		ResolvedBy:  resolvedBy,
	})
	return resolution, nil
}

// resolveChoice validates the broker's pick against the stored candidate
// ranking. Disqualified candidates stay off limits; their gating reasons
// (consent, messaging readiness) do not soften under human review.
func resolveChoice(item domain.ApprovalQueueItem, chosenAgentID *uuid.UUID) (uuid.UUID, error) {
	if chosenAgentID == nil {
		rec := item.Recommendation()
		if rec == nil {
			return uuid.Nil, apperr.Validation("entry has no eligible candidates; choose reject")
		}
		return rec.AgentID, nil
	}

	for _, c := range item.RankedCandidates {
		if c.AgentID != *chosenAgentID {
			continue
		}
		if c.Status == domain.CandidateDisqualified {
			return uuid.Nil, apperr.Validation("chosen agent is disqualified for this lead")
		}
		return c.AgentID, nil
	}
	return uuid.Nil, apperr.Validation("chosen agent was not a candidate for this lead")
}
