// Package consent provides per-channel opt-in state lookups for a lead.
// The routing core treats anything other than GRANTED as not ready; gating
// on consent is never bypassed by filter relaxation.
package consent

import (
	"context"
	"errors"

	"leadrouter/internal/routing/domain"
	"leadrouter/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channels the consent service tracks.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelVoice = "voice"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the consent state for one (tenant, person, channel). A person
// is keyed by their E.164-normalized phone number. Absent records are
// UNKNOWN, not an error.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, personPhone, channel string) (domain.ConsentState, error) {
	normalized := phone.NormalizeE164(personPhone)
	if normalized == "" {
		return domain.ConsentUnknown, nil
	}

	var state string
	err := r.pool.QueryRow(ctx, `
		SELECT state
		FROM consent_records
		WHERE tenant_id = $1 AND person_phone = $2 AND channel = $3
		ORDER BY recorded_at DESC
		LIMIT 1
	`, tenantID, normalized, channel).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConsentUnknown, nil
	}
	if err != nil {
		return domain.ConsentUnknown, err
	}

	return domain.ConsentState(state), nil
}

// States returns the consent state for all tracked channels.
func (r *Repository) States(ctx context.Context, tenantID uuid.UUID, personPhone string) (map[string]domain.ConsentState, error) {
	states := make(map[string]domain.ConsentState, 3)
	for _, channel := range []string{ChannelSMS, ChannelEmail, ChannelVoice} {
		state, err := r.Get(ctx, tenantID, personPhone, channel)
		if err != nil {
			return nil, err
		}
		states[channel] = state
	}
	return states, nil
}
