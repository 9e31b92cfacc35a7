package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/repository"
	"leadrouter/platform/apperr"

	"github.com/google/uuid"
)

// RuleParams is the operator-facing rule payload for create and update.
type RuleParams struct {
	Name                string          `json:"name"`
	Priority            int             `json:"priority"`
	Mode                string          `json:"mode"`
	Enabled             bool            `json:"enabled"`
	Condition           json.RawMessage `json:"condition"`
	Targets             json.RawMessage `json:"targets"`
	Fallback            json.RawMessage `json:"fallback"`
	SlaFirstTouchMin    *int            `json:"slaFirstTouchMinutes"`
	SlaKeptApptMin      *int            `json:"slaKeptAppointmentMinutes"`
	GeographyImportance float64         `json:"geographyImportance"`
	PriceImportance     float64         `json:"priceImportance"`
}

// RuleView is the stored rule as returned to operators.
type RuleView struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Priority            int             `json:"priority"`
	Mode                string          `json:"mode"`
	Enabled             bool            `json:"enabled"`
	Condition           json.RawMessage `json:"condition,omitempty"`
	Targets             json.RawMessage `json:"targets"`
	Fallback            json.RawMessage `json:"fallback,omitempty"`
	SlaFirstTouchMin    *int            `json:"slaFirstTouchMinutes,omitempty"`
	SlaKeptApptMin      *int            `json:"slaKeptAppointmentMinutes,omitempty"`
	GeographyImportance float64         `json:"geographyImportance"`
	PriceImportance     float64         `json:"priceImportance"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func ruleView(rec repository.RuleRecord) RuleView {
	return RuleView{
		ID:                  rec.ID,
		Name:                rec.Name,
		Priority:            rec.Priority,
		Mode:                rec.Mode,
		Enabled:             rec.Enabled,
		Condition:           rec.Condition,
		Targets:             rec.Targets,
		Fallback:            rec.Fallback,
		SlaFirstTouchMin:    rec.SlaFirstTouchMin,
		SlaKeptApptMin:      rec.SlaKeptApptMin,
		GeographyImportance: rec.GeographyImportance,
		PriceImportance:     rec.PriceImportance,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}

// validateRuleParams rejects payloads that would be skipped at decision time.
// Operators get the parse error up front instead of a silently dead rule.
func validateRuleParams(p RuleParams) error {
	switch domain.RuleMode(p.Mode) {
	case domain.RuleModeFirstMatch, domain.RuleModeScoreAndAssign:
	default:
		return apperr.Validation("mode must be FIRST_MATCH or SCORE_AND_ASSIGN")
	}
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	if p.Priority < 0 {
		return apperr.Validation("priority must be non-negative")
	}
	if p.SlaFirstTouchMin != nil && *p.SlaFirstTouchMin <= 0 {
		return apperr.Validation("slaFirstTouchMinutes must be positive")
	}
	if p.SlaKeptApptMin != nil && *p.SlaKeptApptMin <= 0 {
		return apperr.Validation("slaKeptAppointmentMinutes must be positive")
	}

	if _, err := domain.ParseCondition(p.Condition); err != nil {
		return apperr.Validation("condition: " + err.Error())
	}
	if _, err := domain.ParseTargets(p.Targets); err != nil {
		return apperr.Validation("targets: " + err.Error())
	}
	if _, err := domain.ParseFallback(p.Fallback); err != nil {
		return apperr.Validation("fallback: " + err.Error())
	}
	return nil
}

func (s *Service) CreateRule(ctx context.Context, tenantID uuid.UUID, params RuleParams) (RuleView, error) {
	if err := validateRuleParams(params); err != nil {
		return RuleView{}, err
	}

	rec, err := s.repo.CreateRule(ctx, repository.RuleRecord{
		TenantID:            tenantID,
		Name:                params.Name,
		Priority:            params.Priority,
		Mode:                params.Mode,
		Enabled:             params.Enabled,
		Condition:           params.Condition,
		Targets:             params.Targets,
		Fallback:            params.Fallback,
		SlaFirstTouchMin:    params.SlaFirstTouchMin,
		SlaKeptApptMin:      params.SlaKeptApptMin,
		GeographyImportance: params.GeographyImportance,
		PriceImportance:     params.PriceImportance,
	})
	if err != nil {
		return RuleView{}, apperr.Wrap(apperr.KindInternal, "create rule", err)
	}
	return ruleView(rec), nil
}

func (s *Service) UpdateRule(ctx context.Context, tenantID, ruleID uuid.UUID, params RuleParams) (RuleView, error) {
	if err := validateRuleParams(params); err != nil {
		return RuleView{}, err
	}

	rec, err := s.repo.UpdateRule(ctx, repository.RuleRecord{
		ID:                  ruleID,
		TenantID:            tenantID,
		Name:                params.Name,
		Priority:            params.Priority,
		Mode:                params.Mode,
		Enabled:             params.Enabled,
		Condition:           params.Condition,
		Targets:             params.Targets,
		Fallback:            params.Fallback,
		SlaFirstTouchMin:    params.SlaFirstTouchMin,
		SlaKeptApptMin:      params.SlaKeptApptMin,
		GeographyImportance: params.GeographyImportance,
		PriceImportance:     params.PriceImportance,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return RuleView{}, apperr.NotFound("routing rule not found")
		}
		return RuleView{}, apperr.Wrap(apperr.KindInternal, "update rule", err)
	}
	return ruleView(rec), nil
}

func (s *Service) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	err := s.repo.DeleteRule(ctx, tenantID, ruleID)
	if errors.Is(err, repository.ErrRuleNotFound) {
		return apperr.NotFound("routing rule not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete rule", err)
	}
	return nil
}

func (s *Service) ListRules(ctx context.Context, tenantID uuid.UUID) ([]RuleView, error) {
	records, err := s.repo.ListRules(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list rules", err)
	}

	views := make([]RuleView, 0, len(records))
	for _, rec := range records {
		views = append(views, ruleView(rec))
	}
	return views, nil
}
