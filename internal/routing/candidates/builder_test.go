package candidates

import (
	"testing"

	"leadrouter/internal/directory"
	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
)

func int64ptr(v int64) *int64 { return &v }

func TestKeptApptRate(t *testing.T) {
	if got := keptApptRate(directory.Activity{}); got != neutralKeptRate {
		t.Fatalf("expected neutral rate %v without history, got %v", neutralKeptRate, got)
	}

	got := keptApptRate(directory.Activity{KeptAppointments: 3, TotalAppointments: 4})
	if got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
}

func TestGeographyFit(t *testing.T) {
	activity := directory.Activity{
		TourCities: []string{"austin", "Dallas"},
		TourStates: []string{"TX"},
	}

	if got := geographyFit(activity, nil); got != neutralGeographyFit {
		t.Fatalf("expected neutral fit without listing, got %v", got)
	}
	if got := geographyFit(directory.Activity{}, &domain.ListingContext{City: "Austin"}); got != neutralGeographyFit {
		t.Fatalf("expected neutral fit without tour history, got %v", got)
	}
	if got := geographyFit(activity, &domain.ListingContext{City: "AUSTIN", State: "TX"}); got != 1.0 {
		t.Fatalf("expected full fit on city match, got %v", got)
	}
	if got := geographyFit(activity, &domain.ListingContext{City: "Houston", State: "tx"}); got != stateMatchFit {
		t.Fatalf("expected state-match fit %v, got %v", stateMatchFit, got)
	}
	if got := geographyFit(activity, &domain.ListingContext{City: "Miami", State: "FL"}); got != fitFloor {
		t.Fatalf("expected floor %v on mismatch, got %v", fitFloor, got)
	}
}

func TestPriceBandFit(t *testing.T) {
	activity := directory.Activity{
		MinTourPriceCents: int64ptr(30000000),
		MaxTourPriceCents: int64ptr(60000000),
	}

	if got := priceBandFit(activity, nil); got != neutralPriceBandFit {
		t.Fatalf("expected neutral fit without listing, got %v", got)
	}
	if got := priceBandFit(directory.Activity{}, &domain.ListingContext{PriceCents: 40000000}); got != neutralPriceBandFit {
		t.Fatalf("expected neutral fit without price history, got %v", got)
	}
	if got := priceBandFit(activity, &domain.ListingContext{PriceCents: 45000000}); got != 1.0 {
		t.Fatalf("expected full fit inside the band, got %v", got)
	}

	// 10% above the band tops out at 0.9
	got := priceBandFit(activity, &domain.ListingContext{PriceCents: 66000000})
	if got < 0.899 || got > 0.901 {
		t.Fatalf("expected ~0.9 just above the band, got %v", got)
	}

	// far outside the band never drops below the floor
	if got := priceBandFit(activity, &domain.ListingContext{PriceCents: 500000000}); got != fitFloor {
		t.Fatalf("expected floor %v far outside the band, got %v", fitFloor, got)
	}
}

func TestLeadTypeFit(t *testing.T) {
	activity := directory.Activity{BuyerLeads: 8, SellerLeads: 2}

	if got := leadTypeFit(directory.Activity{}, domain.LeadTypeBuyer); got != neutralLeadTypeFit {
		t.Fatalf("expected neutral fit without history, got %v", got)
	}
	if got := leadTypeFit(activity, "UNKNOWN"); got != neutralLeadTypeFit {
		t.Fatalf("expected neutral fit for unknown lead type, got %v", got)
	}

	buyer := leadTypeFit(activity, domain.LeadTypeBuyer)
	seller := leadTypeFit(activity, domain.LeadTypeSeller)
	if buyer <= seller {
		t.Fatalf("expected buyer specialization to outscore seller, got %v vs %v", buyer, seller)
	}
	// share 0.8 maps to 0.4 + 0.6*0.8 = 0.88
	if buyer < 0.879 || buyer > 0.881 {
		t.Fatalf("expected ~0.88 buyer fit, got %v", buyer)
	}
}

func TestBuild(t *testing.T) {
	teamID := uuid.New()
	agentID := uuid.New()

	roster := []directory.AgentRecord{
		{
			Agent: directory.Agent{
				ID:             agentID,
				DisplayName:    "Dana",
				CapacityTarget: 10,
				ActivePipeline: 4,
				Tags:           []string{"luxury"},
				Languages:      []string{"en"},
			},
			Memberships: []directory.Membership{{AgentID: agentID, TeamID: teamID, Role: "MEMBER"}},
			Activity:    directory.Activity{KeptAppointments: 9, TotalAppointments: 10},
		},
	}

	result := Build(BuildParams{
		Roster:         roster,
		LeadType:       domain.LeadTypeBuyer,
		ConsentReady:   true,
		MessagingReady: false,
	})

	snap, ok := result[agentID]
	if !ok {
		t.Fatalf("expected snapshot for agent")
	}
	if snap.CapacityRemaining != 6 {
		t.Fatalf("expected 6 remaining, got %d", snap.CapacityRemaining)
	}
	if snap.Agent.KeptApptRate != 0.9 {
		t.Fatalf("expected kept rate 0.9, got %v", snap.Agent.KeptApptRate)
	}
	if len(snap.GatingReasons) != 1 || snap.GatingReasons[0] != domain.ReasonMessagingNotReady {
		t.Fatalf("expected messaging gating reason, got %v", snap.GatingReasons)
	}
	if _, member := snap.MembershipOf(teamID); !member {
		t.Fatalf("expected team membership carried over")
	}
}

func TestBuild_EmptyRoster(t *testing.T) {
	result := Build(BuildParams{})
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(result))
	}
}
