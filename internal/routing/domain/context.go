// Package domain holds the routing core's entity types: rules, condition
// trees, candidate snapshots, and the immutable lead context a decision is
// made against.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsentState is the per-channel opt-in state reported by the consent service.
type ConsentState string

const (
	ConsentGranted ConsentState = "GRANTED"
	ConsentRevoked ConsentState = "REVOKED"
	ConsentUnknown ConsentState = "UNKNOWN"
)

// Lead type hints as declared by the lead source.
const (
	LeadTypeBuyer  = "BUYER"
	LeadTypeSeller = "SELLER"
)

// ListingContext carries the listing attributes relevant to geography and
// price-band fit.
type ListingContext struct {
	PriceCents int64  `json:"priceCents"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// LeadRoutingContext is the immutable snapshot of a lead's attributes frozen
// at decision time. Rules are evaluated against this struct only; nothing is
// re-read mid-decision.
type LeadRoutingContext struct {
	LeadID         uuid.UUID
	TenantID       uuid.UUID
	Source         string
	LeadType       string
	BuyerRepStatus string
	Tags           []string
	CustomFields   map[string]string
	Consent        map[string]ConsentState
	Listing        *ListingContext
	QuietHours     bool
	DecidedAt      time.Time
}

// HasTag reports whether the lead carries the given tag.
func (c LeadRoutingContext) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ConsentFor returns the consent state for a channel, defaulting to UNKNOWN.
func (c LeadRoutingContext) ConsentFor(channel string) ConsentState {
	if state, ok := c.Consent[channel]; ok {
		return state
	}
	return ConsentUnknown
}
