// Package tenants provides the tenant read model consumed by routing:
// timezone, quiet hours, messaging readiness, and routing mode. The routing
// core never mutates tenants.
package tenants

import (
	"time"

	"github.com/google/uuid"
)

// RoutingMode selects whether decisions auto-commit or stage for broker
// approval.
type RoutingMode string

const (
	RoutingModeAuto         RoutingMode = "AUTO"
	RoutingModeApprovalPool RoutingMode = "APPROVAL_POOL"
)

// Tenant is the read-only tenant snapshot used during a decision.
type Tenant struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Timezone           string      `json:"timezone"`
	QuietStartHour     int         `json:"quietStartHour"`
	QuietEndHour       int         `json:"quietEndHour"`
	MessagingReady     bool        `json:"messagingReady"`
	RoutingMode        RoutingMode `json:"routingMode"`
	ApprovalPoolTeamID *uuid.UUID  `json:"approvalPoolTeamId,omitempty"`
}

// InQuietHours reports whether the given instant falls inside the tenant's
// local quiet-hours window. A window may wrap midnight (e.g. 21 to 8).
// An unparseable timezone falls back to UTC rather than failing the decision.
func (t Tenant) InQuietHours(at time.Time) bool {
	if t.QuietStartHour == t.QuietEndHour {
		return false
	}

	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		loc = time.UTC
	}
	hour := at.In(loc).Hour()

	if t.QuietStartHour < t.QuietEndHour {
		return hour >= t.QuietStartHour && hour < t.QuietEndHour
	}
	return hour >= t.QuietStartHour || hour < t.QuietEndHour
}
