// Package candidates derives per-agent CandidateSnapshots from raw directory
// data. Building is a pure read-and-derive step with no side effects; snapshots
// live only for the duration of one decision.
package candidates

import (
	"strings"

	"leadrouter/internal/directory"
	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
)

// Fit score anchors. Neutral values apply when an agent has no usable
// history; mismatches keep partial credit and never drop below the floor.
const (
	neutralGeographyFit = 0.75
	neutralPriceBandFit = 0.7
	neutralLeadTypeFit  = 0.75
	neutralKeptRate     = 0.5
	stateMatchFit       = 0.6
	fitFloor            = 0.4
)

// BuildParams carries everything the builder needs for one decision.
type BuildParams struct {
	Roster         []directory.AgentRecord
	Listing        *domain.ListingContext
	LeadType       string
	ConsentReady   bool
	MessagingReady bool
}

// Build turns the roster into a candidate map keyed by agent ID. An empty
// roster produces an empty map, which the decision engine treats as "no
// candidates" rather than an error.
func Build(params BuildParams) map[uuid.UUID]domain.CandidateSnapshot {
	result := make(map[uuid.UUID]domain.CandidateSnapshot, len(params.Roster))

	for _, record := range params.Roster {
		agent := domain.AgentSnapshot{
			AgentID:        record.Agent.ID,
			DisplayName:    record.Agent.DisplayName,
			CapacityTarget: record.Agent.CapacityTarget,
			ActivePipeline: record.Agent.ActivePipeline,
			GeographyFit:   geographyFit(record.Activity, params.Listing),
			PriceBandFit:   priceBandFit(record.Activity, params.Listing),
			KeptApptRate:   keptApptRate(record.Activity),
			LeadTypeFit:    leadTypeFit(record.Activity, params.LeadType),
			ConsentReady:   params.ConsentReady,
			MessagingReady: params.MessagingReady,
			PrimaryTeamID:  record.Agent.PrimaryTeamID,
		}

		memberships := make([]domain.TeamMembership, 0, len(record.Memberships))
		for _, m := range record.Memberships {
			memberships = append(memberships, domain.TeamMembership{
				TeamID:    m.TeamID,
				Role:      m.Role,
				CreatedAt: m.CreatedAt,
			})
		}

		result[record.Agent.ID] = domain.NewCandidateSnapshot(
			agent, memberships,
			record.Agent.Tags, record.Agent.Languages, record.Agent.Specialties,
		)
	}

	return result
}

// keptApptRate is kept/total over the activity window, neutral 0.5 with no
// history.
func keptApptRate(activity directory.Activity) float64 {
	if activity.TotalAppointments == 0 {
		return neutralKeptRate
	}
	return float64(activity.KeptAppointments) / float64(activity.TotalAppointments)
}

// geographyFit compares the target listing against the agent's recent tour
// geography: city match is a full fit, state match partial, mismatch keeps
// the floor.
func geographyFit(activity directory.Activity, listing *domain.ListingContext) float64 {
	if listing == nil || (len(activity.TourCities) == 0 && len(activity.TourStates) == 0) {
		return neutralGeographyFit
	}

	if listing.City != "" {
		for _, city := range activity.TourCities {
			if strings.EqualFold(city, listing.City) {
				return 1.0
			}
		}
	}

	if listing.State != "" {
		for _, state := range activity.TourStates {
			if strings.EqualFold(state, listing.State) {
				return stateMatchFit
			}
		}
	}

	return fitFloor
}

// priceBandFit scores how close the listing price sits to the agent's recent
// tour price range. Inside the band is a full fit; outside decays with
// distance but never below the floor.
func priceBandFit(activity directory.Activity, listing *domain.ListingContext) float64 {
	if listing == nil || listing.PriceCents <= 0 ||
		activity.MinTourPriceCents == nil || activity.MaxTourPriceCents == nil {
		return neutralPriceBandFit
	}

	low := *activity.MinTourPriceCents
	high := *activity.MaxTourPriceCents
	price := listing.PriceCents

	if price >= low && price <= high {
		return 1.0
	}

	var distance float64
	if price < low {
		distance = float64(low-price) / float64(low)
	} else {
		distance = float64(price-high) / float64(high)
	}

	fit := 1.0 - distance
	if fit < fitFloor {
		return fitFloor
	}
	return fit
}

// leadTypeFit scores the agent's buyer/seller specialization against the
// lead's declared type, weighted toward specialization. Unknown lead type or
// no history is neutral.
func leadTypeFit(activity directory.Activity, leadType string) float64 {
	total := activity.BuyerLeads + activity.SellerLeads
	if total == 0 {
		return neutralLeadTypeFit
	}

	var share float64
	switch leadType {
	case domain.LeadTypeBuyer:
		share = float64(activity.BuyerLeads) / float64(total)
	case domain.LeadTypeSeller:
		share = float64(activity.SellerLeads) / float64(total)
	default:
		return neutralLeadTypeFit
	}

	fit := fitFloor + (1.0-fitFloor)*share
	return fit
}
