// Package transport defines the request/response DTOs for the routing HTTP
// surface. Handlers bind and validate these, then translate to service types.
package transport

import (
	"encoding/json"

	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/service"

	"github.com/google/uuid"
)

// ListingRequest mirrors the listing attributes relevant to fit scoring.
type ListingRequest struct {
	PriceCents int64  `json:"priceCents" validate:"omitempty,gte=0"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// AssignRequest is the inbound lead payload for POST /routing/assign.
type AssignRequest struct {
	LeadID         uuid.UUID         `json:"leadId" validate:"required"`
	Source         string            `json:"source" validate:"required"`
	LeadType       string            `json:"leadType" validate:"omitempty,oneof=BUYER SELLER"`
	BuyerRepStatus string            `json:"buyerRepStatus"`
	PersonPhone    string            `json:"personPhone"`
	Tags           []string          `json:"tags"`
	CustomFields   map[string]string `json:"customFields"`
	Listing        *ListingRequest   `json:"listing"`
}

// ToInput converts the request into the service's assign input.
func (r AssignRequest) ToInput() service.AssignInput {
	input := service.AssignInput{
		LeadID:         r.LeadID,
		Source:         r.Source,
		LeadType:       r.LeadType,
		BuyerRepStatus: r.BuyerRepStatus,
		PersonPhone:    r.PersonPhone,
		Tags:           r.Tags,
		CustomFields:   r.CustomFields,
	}
	if r.Listing != nil {
		input.Listing = &domain.ListingContext{
			PriceCents: r.Listing.PriceCents,
			City:       r.Listing.City,
			State:      r.Listing.State,
			PostalCode: r.Listing.PostalCode,
		}
	}
	return input
}

// RuleRequest is the rule payload for create and update.
type RuleRequest struct {
	Name                string          `json:"name" validate:"required,max=200"`
	Priority            int             `json:"priority" validate:"gte=0"`
	Mode                string          `json:"mode" validate:"required,oneof=FIRST_MATCH SCORE_AND_ASSIGN"`
	Enabled             bool            `json:"enabled"`
	Condition           json.RawMessage `json:"condition"`
	Targets             json.RawMessage `json:"targets" validate:"required"`
	Fallback            json.RawMessage `json:"fallback"`
	SlaFirstTouchMin    *int            `json:"slaFirstTouchMinutes" validate:"omitempty,gt=0"`
	SlaKeptApptMin      *int            `json:"slaKeptAppointmentMinutes" validate:"omitempty,gt=0"`
	GeographyImportance float64         `json:"geographyImportance" validate:"gte=0,lte=10"`
	PriceImportance     float64         `json:"priceImportance" validate:"gte=0,lte=10"`
}

// ToParams converts the request into service rule params.
func (r RuleRequest) ToParams() service.RuleParams {
	return service.RuleParams{
		Name:                r.Name,
		Priority:            r.Priority,
		Mode:                r.Mode,
		Enabled:             r.Enabled,
		Condition:           r.Condition,
		Targets:             r.Targets,
		Fallback:            r.Fallback,
		SlaFirstTouchMin:    r.SlaFirstTouchMin,
		SlaKeptApptMin:      r.SlaKeptApptMin,
		GeographyImportance: r.GeographyImportance,
		PriceImportance:     r.PriceImportance,
	}
}

// ApproveRequest optionally overrides the recommended agent.
type ApproveRequest struct {
	AgentID *uuid.UUID `json:"agentId"`
}

// SatisfactionResponse reports how many timers a business event resolved.
type SatisfactionResponse struct {
	Satisfied int `json:"satisfied"`
}
