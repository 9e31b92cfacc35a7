package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrRuleNotFound = errors.New("routing rule not found")

// RuleRecord is the stored form of a rule: condition, targets, and fallback
// stay as raw JSON until the parse boundary.
type RuleRecord struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Name                string
	Priority            int
	Mode                string
	Enabled             bool
	Condition           json.RawMessage
	Targets             json.RawMessage
	Fallback            json.RawMessage
	SlaFirstTouchMin    *int
	SlaKeptApptMin      *int
	GeographyImportance float64
	PriceImportance     float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Parse decodes the record into a domain rule. A record that fails here is
// skipped at decision time, never silently treated as matching.
func (rec RuleRecord) Parse() (domain.Rule, error) {
	mode := domain.RuleMode(rec.Mode)
	switch mode {
	case domain.RuleModeFirstMatch, domain.RuleModeScoreAndAssign:
	default:
		return domain.Rule{}, fmt.Errorf("unknown rule mode %q", rec.Mode)
	}

	condition, err := domain.ParseCondition(rec.Condition)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("condition: %w", err)
	}
	targets, err := domain.ParseTargets(rec.Targets)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("targets: %w", err)
	}
	fallback, err := domain.ParseFallback(rec.Fallback)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("fallback: %w", err)
	}

	return domain.Rule{
		ID:                  rec.ID,
		TenantID:            rec.TenantID,
		Name:                rec.Name,
		Priority:            rec.Priority,
		Mode:                mode,
		Enabled:             rec.Enabled,
		Condition:           condition,
		Targets:             targets,
		Fallback:            fallback,
		SlaFirstTouchMin:    rec.SlaFirstTouchMin,
		SlaKeptApptMin:      rec.SlaKeptApptMin,
		GeographyImportance: rec.GeographyImportance,
		PriceImportance:     rec.PriceImportance,
		CreatedAt:           rec.CreatedAt,
	}, nil
}

const ruleColumns = `id, tenant_id, name, priority, mode, enabled,
	condition, targets, fallback,
	sla_first_touch_min, sla_kept_appt_min,
	geography_importance, price_importance,
	created_at, updated_at`

func scanRule(row pgx.Row) (RuleRecord, error) {
	var rec RuleRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.Priority, &rec.Mode,
		&rec.Enabled, &rec.Condition, &rec.Targets, &rec.Fallback,
		&rec.SlaFirstTouchMin, &rec.SlaKeptApptMin,
		&rec.GeographyImportance, &rec.PriceImportance,
		&rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r *Repository) CreateRule(ctx context.Context, rec RuleRecord) (RuleRecord, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO routing_rules (tenant_id, name, priority, mode, enabled,
			condition, targets, fallback,
			sla_first_touch_min, sla_kept_appt_min,
			geography_importance, price_importance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+ruleColumns,
		rec.TenantID, rec.Name, rec.Priority, rec.Mode, rec.Enabled,
		rec.Condition, rec.Targets, rec.Fallback,
		rec.SlaFirstTouchMin, rec.SlaKeptApptMin,
		rec.GeographyImportance, rec.PriceImportance)
	return scanRule(row)
}

func (r *Repository) UpdateRule(ctx context.Context, rec RuleRecord) (RuleRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE routing_rules
		SET name = $3, priority = $4, mode = $5, enabled = $6,
		    condition = $7, targets = $8, fallback = $9,
		    sla_first_touch_min = $10, sla_kept_appt_min = $11,
		    geography_importance = $12, price_importance = $13,
		    updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+ruleColumns,
		rec.ID, rec.TenantID, rec.Name, rec.Priority, rec.Mode, rec.Enabled,
		rec.Condition, rec.Targets, rec.Fallback,
		rec.SlaFirstTouchMin, rec.SlaKeptApptMin,
		rec.GeographyImportance, rec.PriceImportance)
	updated, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleRecord{}, ErrRuleNotFound
	}
	return updated, err
}

func (r *Repository) GetRule(ctx context.Context, tenantID, id uuid.UUID) (RuleRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	rec, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleRecord{}, ErrRuleNotFound
	}
	return rec, err
}

func (r *Repository) DeleteRule(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM routing_rules WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListRules returns all of a tenant's rules for management views.
func (r *Repository) ListRules(ctx context.Context, tenantID uuid.UUID) ([]RuleRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]RuleRecord, 0)
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListEnabledRules returns enabled rules in evaluation order: ascending
// priority, ties broken by creation time.
func (r *Repository) ListEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]RuleRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY priority ASC, created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]RuleRecord, 0)
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
