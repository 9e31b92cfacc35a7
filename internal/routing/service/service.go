// Package service orchestrates one routing decision end to end: context
// assembly, engine evaluation, and the atomic commit of assignment, timers,
// audit event, and outbox row.
package service

import (
	"context"
	"errors"
	"time"

	"leadrouter/internal/directory"
	"leadrouter/internal/events"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/candidates"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/engine"
	"leadrouter/internal/routing/repository"
	"leadrouter/internal/routing/sla"
	"leadrouter/internal/tenants"
	"leadrouter/platform/apperr"
	"leadrouter/platform/config"
	"leadrouter/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// DirectoryReader is the directory surface the service consumes.
type DirectoryReader interface {
	Roster(ctx context.Context, tenantID uuid.UUID) ([]directory.AgentRecord, error)
	LastAssignedAgent(ctx context.Context, tenantID, teamID uuid.UUID) (*uuid.UUID, error)
}

// ConsentReader resolves per-channel opt-in states for a person.
type ConsentReader interface {
	States(ctx context.Context, tenantID uuid.UUID, personPhone string) (map[string]domain.ConsentState, error)
}

// Service is the routing application service.
type Service struct {
	repo      *repository.Repository
	directory DirectoryReader
	tenants   tenants.Reader
	consent   ConsentReader
	engine    *engine.Engine
	sla       *sla.Manager
	bus       events.Bus
	log       *logger.Logger
	cfg       config.RoutingConfig
	now       func() time.Time
}

func New(repo *repository.Repository, dir DirectoryReader, tn tenants.Reader,
	cs ConsentReader, eng *engine.Engine, slaManager *sla.Manager,
	bus events.Bus, log *logger.Logger, cfg config.RoutingConfig) *Service {
	return &Service{
		repo:      repo,
		directory: dir,
		tenants:   tn,
		consent:   cs,
		engine:    eng,
		sla:       slaManager,
		bus:       bus,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AssignInput is the lead payload handed to one assign() call.
type AssignInput struct {
	LeadID         uuid.UUID
	Source         string
	LeadType       string
	BuyerRepStatus string
	PersonPhone    string
	Tags           []string
	CustomFields   map[string]string
	Listing        *domain.ListingContext
}

// RouteAssignmentResult is the structured outcome every caller receives;
// "could not auto-assign" is a result with reason codes, never an error.
type RouteAssignmentResult struct {
	RouteEventID    uuid.UUID                    `json:"routeEventId"`
	LeadID          uuid.UUID                    `json:"leadId"`
	RuleID          *uuid.UUID                   `json:"ruleId,omitempty"`
	AssignedAgentID *uuid.UUID                   `json:"assignedAgentId,omitempty"`
	FallbackTeamID  *uuid.UUID                   `json:"fallbackTeamId,omitempty"`
	UsedFallback    bool                         `json:"usedFallback"`
	ReasonCodes     []string                     `json:"reasonCodes"`
	Considered      []domain.ConsideredCandidate `json:"considered"`
	SlaDueAt        *time.Time                   `json:"slaDueAt,omitempty"`
	QueueItemID     *uuid.UUID                   `json:"queueItemId,omitempty"`
}

// Assign routes one lead. The decision is computed against a context frozen
// up front and committed atomically: assignment (or queue placement), SLA
// timers, route event, and outbox row succeed or fail together.
func (s *Service) Assign(ctx context.Context, tenantID uuid.UUID, input AssignInput) (RouteAssignmentResult, error) {
	if input.LeadID == uuid.Nil {
		return RouteAssignmentResult{}, apperr.Validation("leadId is required")
	}

	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return RouteAssignmentResult{}, apperr.NotFound("tenant not found")
		}
		return RouteAssignmentResult{}, apperr.Wrap(apperr.KindInternal, "load tenant", err)
	}

	// Consent and roster are independent collaborators, each with its own
	// timeout; fetch them concurrently.
	now := s.now().UTC()
	var (
		lead         domain.LeadRoutingContext
		consentReady bool
		roster       []directory.AgentRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lead, consentReady, err = s.assembleContext(gctx, tenant, input, now)
		return err
	})
	g.Go(func() error {
		var err error
		roster, err = s.collaborateRoster(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return RouteAssignmentResult{}, err
	}

	candidateMap := candidates.Build(candidates.BuildParams{
		Roster:         roster,
		Listing:        input.Listing,
		LeadType:       input.LeadType,
		ConsentReady:   consentReady,
		MessagingReady: tenant.MessagingReady,
	})

	rules, skipped := s.loadRules(ctx, tenantID)

	if tenant.RoutingMode == tenants.RoutingModeApprovalPool {
		return s.assignToApprovalPool(ctx, tenant, input, lead, rules, skipped, candidateMap, now)
	}
	return s.assignAuto(ctx, tenant, input, lead, rules, skipped, candidateMap, now)
}

// assembleContext freezes the lead's routing context, resolving consent
// through the collaborator with a bounded timeout. A timeout fails the
// decision; it never silently matches.
func (s *Service) assembleContext(ctx context.Context, tenant tenants.Tenant, input AssignInput, now time.Time) (domain.LeadRoutingContext, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.GetCollaboratorTimeout())
	defer cancel()

	states, err := s.consent.States(cctx, tenant.ID, input.PersonPhone)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.LeadRoutingContext{}, false, apperr.Timeout("consent lookup timed out")
		}
		return domain.LeadRoutingContext{}, false, apperr.Wrap(apperr.KindInternal, "consent lookup", err)
	}

	consentReady := false
	for _, state := range states {
		if state == domain.ConsentGranted {
			consentReady = true
			break
		}
	}

	lead := domain.LeadRoutingContext{
		LeadID:         input.LeadID,
		TenantID:       tenant.ID,
		Source:         input.Source,
		LeadType:       input.LeadType,
		BuyerRepStatus: input.BuyerRepStatus,
		Tags:           input.Tags,
		CustomFields:   input.CustomFields,
		Consent:        states,
		Listing:        input.Listing,
		QuietHours:     tenant.InQuietHours(now),
		DecidedAt:      now,
	}
	return lead, consentReady, nil
}

func (s *Service) collaborateRoster(ctx context.Context, tenantID uuid.UUID) ([]directory.AgentRecord, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.GetCollaboratorTimeout())
	defer cancel()

	roster, err := s.directory.Roster(cctx, tenantID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("directory roster timed out")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "directory roster", err)
	}
	return roster, nil
}

// loadRules parses the tenant's enabled rules at the boundary. A rule that
// fails to parse is logged and skipped; the decision continues without it.
func (s *Service) loadRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, int) {
	records, err := s.repo.ListEnabledRules(ctx, tenantID)
	if err != nil {
		s.log.DatabaseError("list enabled rules", err)
		return nil, 0
	}

	rules := make([]domain.Rule, 0, len(records))
	skipped := 0
	for _, rec := range records {
		rule, err := rec.Parse()
		if err != nil {
			skipped++
			s.log.Warn("routing_rule_skipped",
				"tenant_id", tenantID.String(),
				"rule_id", rec.ID.String(),
				"error", err.Error())
			continue
		}
		rules = append(rules, rule)
	}
	return rules, skipped
}

// assignAuto runs the engine inside the commit transaction so the
// round-robin cursor read locks the (tenant, team) rotation until commit.
func (s *Service) assignAuto(ctx context.Context, tenant tenants.Tenant, input AssignInput,
	lead domain.LeadRoutingContext, rules []domain.Rule, skipped int,
	candidateMap map[uuid.UUID]domain.CandidateSnapshot, now time.Time) (RouteAssignmentResult, error) {

	ruleByID := make(map[uuid.UUID]domain.Rule, len(rules))
	for _, rule := range rules {
		ruleByID[rule.ID] = rule
	}

	var result RouteAssignmentResult
	err := s.repo.InTx(ctx, func(tx pgx.Tx) error {
		decision, err := s.engine.Decide(ctx, engine.Input{
			Lead:             lead,
			Rules:            rules,
			SkippedRuleCount: skipped,
			Candidates:       candidateMap,
			LastAssigned: func(ctx context.Context, teamID uuid.UUID) (*uuid.UUID, error) {
				return s.repo.CursorForUpdate(ctx, tx, tenant.ID, teamID)
			},
		})
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "decide", err)
		}

		event := routeEventFrom(tenant.ID, input.LeadID, decision)
		if err := s.repo.InsertRouteEvent(ctx, tx, event); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert route event", err)
		}

		switch {
		case decision.AssignedAgentID != nil:
			if _, err := s.repo.InsertAssignment(ctx, tx, repository.Assignment{
				TenantID:        tenant.ID,
				LeadID:          input.LeadID,
				AgentID:         decision.AssignedAgentID,
				TeamID:          decision.RoundRobinTeamID,
				RuleID:          decision.RuleID,
				RouteEventID:    &event.ID,
				Source:          repository.SourceRouting,
			}); err != nil {
				return apperr.Wrap(apperr.KindInternal, "insert assignment", err)
			}

			if decision.RoundRobinTeamID != nil {
				if err := s.repo.AdvanceCursor(ctx, tx, tenant.ID,
					*decision.RoundRobinTeamID, *decision.AssignedAgentID); err != nil {
					return apperr.Wrap(apperr.KindInternal, "advance cursor", err)
				}
			}

			timers := sla.TimersFor(tenant.ID, input.LeadID, event.ID, decision,
				pondFor(ruleByID, decision.RuleID), now)
			if len(timers) > 0 {
				if err := s.repo.InsertTimers(ctx, tx, timers); err != nil {
					return apperr.Wrap(apperr.KindInternal, "insert sla timers", err)
				}
				due := timers[0].DueAt
				result.SlaDueAt = &due
			}

		case decision.FallbackTeamID != nil:
			// pond placement: the team owns the lead, nobody is on the clock
			if _, err := s.repo.InsertAssignment(ctx, tx, repository.Assignment{
				TenantID:     tenant.ID,
				LeadID:       input.LeadID,
				TeamID:       decision.FallbackTeamID,
				RuleID:       decision.RuleID,
				RouteEventID: &event.ID,
				Source:       repository.SourceRouting,
			}); err != nil {
				return apperr.Wrap(apperr.KindInternal, "insert pond placement", err)
			}
		}

		if err := s.repo.InsertOutbox(ctx, tx, leadRoutedOutbox(tenant.ID, input.LeadID, event, decision)); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert outbox event", err)
		}

		result.RouteEventID = event.ID
		result.LeadID = input.LeadID
		result.RuleID = decision.RuleID
		result.AssignedAgentID = decision.AssignedAgentID
		result.FallbackTeamID = decision.FallbackTeamID
		result.UsedFallback = decision.UsedFallback
		result.ReasonCodes = decision.ReasonCodes
		result.Considered = decision.Considered
		return nil
	})
	if err != nil {
		return RouteAssignmentResult{}, err
	}

	s.publishAndLog(ctx, tenant.ID, result)
	return result, nil
}

// assignToApprovalPool short-circuits agent selection: the engine runs dry
// (read-only cursor previews) purely to capture the ranked candidate list,
// then the lead is bound to the approval-pool team with no agent and a queue
// entry is staged for broker review.
func (s *Service) assignToApprovalPool(ctx context.Context, tenant tenants.Tenant, input AssignInput,
	lead domain.LeadRoutingContext, rules []domain.Rule, skipped int,
	candidateMap map[uuid.UUID]domain.CandidateSnapshot, now time.Time) (RouteAssignmentResult, error) {

	if tenant.ApprovalPoolTeamID == nil {
		return RouteAssignmentResult{}, apperr.Conflict("tenant is in approval-pool mode but has no approval pool team configured")
	}

	preview, err := s.engine.Decide(ctx, engine.Input{
		Lead:             lead,
		Rules:            rules,
		SkippedRuleCount: skipped,
		Candidates:       candidateMap,
		LastAssigned: func(ctx context.Context, teamID uuid.UUID) (*uuid.UUID, error) {
			return s.directory.LastAssignedAgent(ctx, tenant.ID, teamID)
		},
	})
	if err != nil {
		return RouteAssignmentResult{}, apperr.Wrap(apperr.KindInternal, "decide", err)
	}

	decision := engine.Decision{
		RuleID:          preview.RuleID,
		Mode:            preview.Mode,
		FallbackTeamID:  tenant.ApprovalPoolTeamID,
		UsedFallback:    true,
		ReasonCodes:     append(preview.ReasonCodes, domain.ReasonApprovalPool),
		Considered:      preview.Considered,
		ConditionChecks: preview.ConditionChecks,
	}

	var result RouteAssignmentResult
	err = s.repo.InTx(ctx, func(tx pgx.Tx) error {
		event := routeEventFrom(tenant.ID, input.LeadID, decision)
		if err := s.repo.InsertRouteEvent(ctx, tx, event); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert route event", err)
		}

		if _, err := s.repo.InsertAssignment(ctx, tx, repository.Assignment{
			TenantID:     tenant.ID,
			LeadID:       input.LeadID,
			TeamID:       tenant.ApprovalPoolTeamID,
			RuleID:       decision.RuleID,
			RouteEventID: &event.ID,
			Source:       repository.SourceRouting,
		}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert pool placement", err)
		}

		item := &domain.ApprovalQueueItem{
			TenantID:     tenant.ID,
			LeadID:       input.LeadID,
			RouteEventID: event.ID,
			LeadSummary:  leadSummary(input),
			RankedCandidates: decision.Considered,
		}
		if err := s.repo.InsertQueueItem(ctx, tx, item); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert queue item", err)
		}

		if err := s.repo.InsertOutbox(ctx, tx, leadRoutedOutbox(tenant.ID, input.LeadID, event, decision)); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert outbox event", err)
		}

		result = RouteAssignmentResult{
			RouteEventID:   event.ID,
			LeadID:         input.LeadID,
			RuleID:         decision.RuleID,
			FallbackTeamID: tenant.ApprovalPoolTeamID,
			UsedFallback:   true,
			ReasonCodes:    decision.ReasonCodes,
			Considered:     decision.Considered,
			QueueItemID:    &item.ID,
		}
		return nil
	})
	if err != nil {
		return RouteAssignmentResult{}, err
	}

	s.publishAndLog(ctx, tenant.ID, result)
	return result, nil
}

func (s *Service) publishAndLog(ctx context.Context, tenantID uuid.UUID, result RouteAssignmentResult) {
	s.bus.Publish(ctx, events.LeadRouted{
		BaseEvent:       events.NewBaseEvent(),
		TenantID:        tenantID,
		LeadID:          result.LeadID,
		RouteEventID:    result.RouteEventID,
		RuleID:          result.RuleID,
		AssignedAgentID: result.AssignedAgentID,
		FallbackTeamID:  result.FallbackTeamID,
		UsedFallback:    result.UsedFallback,
		ReasonCodes:     result.ReasonCodes,
	})

	var ruleID, agentID *string
	if result.RuleID != nil {
		v := result.RuleID.String()
		ruleID = &v
	}
	if result.AssignedAgentID != nil {
		v := result.AssignedAgentID.String()
		agentID = &v
	}
	s.log.RoutingDecision(tenantID.String(), result.LeadID.String(),
		ruleID, agentID, result.UsedFallback, result.ReasonCodes)
}

func routeEventFrom(tenantID, leadID uuid.UUID, decision engine.Decision) *domain.RouteEvent {
	return &domain.RouteEvent{
		TenantID:        tenantID,
		LeadID:          leadID,
		RuleID:          decision.RuleID,
		Mode:            decision.Mode,
		AssignedAgentID: decision.AssignedAgentID,
		FallbackTeamID:  decision.FallbackTeamID,
		UsedFallback:    decision.UsedFallback,
		ReasonCodes:     decision.ReasonCodes,
		Considered:      decision.Considered,
		ConditionChecks: decision.ConditionChecks,
	}
}

func leadRoutedOutbox(tenantID, leadID uuid.UUID, event *domain.RouteEvent, decision engine.Decision) outbox.InsertParams {
	return outbox.InsertParams{
		TenantID:  tenantID,
		EventName: events.NameLeadRouted,
		Payload: map[string]any{
			"tenantId":        tenantID,
			"leadId":          leadID,
			"routeEventId":    event.ID,
			"ruleId":          decision.RuleID,
			"assignedAgentId": decision.AssignedAgentID,
			"fallbackTeamId":  decision.FallbackTeamID,
			"usedFallback":    decision.UsedFallback,
			"reasonCodes":     decision.ReasonCodes,
		},
	}
}

func pondFor(ruleByID map[uuid.UUID]domain.Rule, ruleID *uuid.UUID) *uuid.UUID {
	if ruleID == nil {
		return nil
	}
	rule, ok := ruleByID[*ruleID]
	if !ok {
		return nil
	}
	return rule.PondTeamID()
}

func leadSummary(input AssignInput) domain.LeadSummary {
	summary := domain.LeadSummary{
		Source:   input.Source,
		LeadType: input.LeadType,
	}
	if input.Listing != nil {
		summary.City = input.Listing.City
		summary.State = input.Listing.State
	}
	return summary
}
