package tenants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("tenant not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var tenant Tenant
	var mode string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, timezone, quiet_start_hour, quiet_end_hour,
		       messaging_ready, routing_mode, approval_pool_team_id
		FROM tenants
		WHERE id = $1
	`, id).Scan(&tenant.ID, &tenant.Name, &tenant.Timezone,
		&tenant.QuietStartHour, &tenant.QuietEndHour,
		&tenant.MessagingReady, &mode, &tenant.ApprovalPoolTeamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, err
	}
	tenant.RoutingMode = RoutingMode(mode)
	return tenant, nil
}
