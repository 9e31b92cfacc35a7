package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func buyerLead() LeadRoutingContext {
	return LeadRoutingContext{
		LeadID:         uuid.New(),
		TenantID:       uuid.New(),
		Source:         "zillow",
		LeadType:       LeadTypeBuyer,
		BuyerRepStatus: "SIGNED",
		Tags:           []string{"relocation", "vip"},
		CustomFields:   map[string]string{"campaign": "spring-2026"},
		Consent: map[string]ConsentState{
			"sms":   ConsentGranted,
			"email": ConsentUnknown,
		},
		Listing: &ListingContext{
			PriceCents: 45000000,
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
		},
	}
}

func TestParseCondition_EmptyIsAlwaysMatch(t *testing.T) {
	node, err := ParseCondition(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if node != nil {
		t.Fatalf("expected nil node for empty condition")
	}

	verdict := node.Evaluate(buyerLead())
	if !verdict.Matched {
		t.Fatalf("expected nil condition to match")
	}
	if len(verdict.Checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(verdict.Checks))
	}
}

func TestParseCondition_RejectsUnknownKind(t *testing.T) {
	_, err := ParseCondition(json.RawMessage(`{"kind":"MAYBE"}`))
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestParseCondition_RejectsEmptyBranch(t *testing.T) {
	_, err := ParseCondition(json.RawMessage(`{"kind":"ALL"}`))
	if err == nil {
		t.Fatalf("expected error for ALL node without children")
	}

	_, err = ParseCondition(json.RawMessage(`{"kind":"NOT","children":[]}`))
	if err == nil {
		t.Fatalf("expected error for NOT node without exactly one child")
	}
}

func TestParseCondition_RejectsInvalidCheck(t *testing.T) {
	cases := []string{
		`{"kind":"CHECK"}`,
		`{"kind":"CHECK","check":{"field":"source","operator":"EQUALS"}}`,
		`{"kind":"CHECK","check":{"field":"source","operator":"IN"}}`,
		`{"kind":"CHECK","check":{"field":"source","operator":"LOOKS_LIKE","value":"x"}}`,
	}
	for _, raw := range cases {
		if _, err := ParseCondition(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestEvaluate_AllAnyNot(t *testing.T) {
	raw := json.RawMessage(`{
		"kind": "ALL",
		"children": [
			{"kind":"CHECK","check":{"field":"source","operator":"EQUALS","value":"zillow"}},
			{"kind":"ANY","children":[
				{"kind":"CHECK","check":{"field":"leadType","operator":"EQUALS","value":"SELLER"}},
				{"kind":"CHECK","check":{"field":"tag","operator":"CONTAINS","value":"vip"}}
			]},
			{"kind":"NOT","children":[
				{"kind":"CHECK","check":{"field":"buyerRep","operator":"EQUALS","value":"NONE"}}
			]}
		]
	}`)

	node, err := ParseCondition(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	verdict := node.Evaluate(buyerLead())
	if !verdict.Matched {
		t.Fatalf("expected condition to match")
	}
	// 4 leaf checks, all recorded even though ANY short-circuits logically
	if len(verdict.Checks) != 4 {
		t.Fatalf("expected 4 recorded checks, got %d", len(verdict.Checks))
	}
}

func TestEvaluate_ChecksRecordedOnFailure(t *testing.T) {
	raw := json.RawMessage(`{
		"kind": "ALL",
		"children": [
			{"kind":"CHECK","check":{"field":"source","operator":"EQUALS","value":"realtor"}},
			{"kind":"CHECK","check":{"field":"leadType","operator":"EQUALS","value":"BUYER"}}
		]
	}`)

	node, err := ParseCondition(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	verdict := node.Evaluate(buyerLead())
	if verdict.Matched {
		t.Fatalf("expected condition not to match")
	}
	if len(verdict.Checks) != 2 {
		t.Fatalf("expected both checks recorded, got %d", len(verdict.Checks))
	}
	if verdict.Checks[0].Passed {
		t.Fatalf("expected source check to fail")
	}
	if !verdict.Checks[1].Passed {
		t.Fatalf("expected leadType check to pass")
	}
	if verdict.Checks[0].Actual != "zillow" {
		t.Fatalf("expected actual zillow, got %q", verdict.Checks[0].Actual)
	}
}

func TestEvaluate_NumericListingPrice(t *testing.T) {
	node := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "listing.price", Operator: OpGte, Value: "40000000",
	}}
	if !node.Evaluate(buyerLead()).Matched {
		t.Fatalf("expected price >= 40000000 to match")
	}

	node.Check.Operator = OpLte
	if node.Evaluate(buyerLead()).Matched {
		t.Fatalf("expected price <= 40000000 not to match")
	}
}

func TestEvaluate_NumericAgainstNonNumberFails(t *testing.T) {
	node := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "source", Operator: OpGte, Value: "10",
	}}
	if node.Evaluate(buyerLead()).Matched {
		t.Fatalf("expected GTE on non-numeric field not to match")
	}
}

func TestEvaluate_CustomFieldAndConsent(t *testing.T) {
	lead := buyerLead()

	custom := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "custom.campaign", Operator: OpEquals, Value: "spring-2026",
	}}
	if !custom.Evaluate(lead).Matched {
		t.Fatalf("expected custom field to match")
	}

	missing := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "custom.absent", Operator: OpExists,
	}}
	if missing.Evaluate(lead).Matched {
		t.Fatalf("expected absent custom field not to exist")
	}

	consent := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "consent.sms", Operator: OpEquals, Value: "GRANTED",
	}}
	if !consent.Evaluate(lead).Matched {
		t.Fatalf("expected sms consent GRANTED to match")
	}

	// untracked channels report UNKNOWN rather than absence
	voice := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "consent.voice", Operator: OpEquals, Value: "UNKNOWN",
	}}
	if !voice.Evaluate(lead).Matched {
		t.Fatalf("expected untracked channel to evaluate as UNKNOWN")
	}

	lead.Consent["email"] = ConsentRevoked
	revoked := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "consent.email", Operator: OpEquals, Value: "REVOKED",
	}}
	if !revoked.Evaluate(lead).Matched {
		t.Fatalf("expected email consent REVOKED to match")
	}
}

func TestEvaluate_InOperatorIsCaseInsensitive(t *testing.T) {
	node := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "listing.state", Operator: OpIn, Values: []string{"ca", "tx"},
	}}
	if !node.Evaluate(buyerLead()).Matched {
		t.Fatalf("expected TX to match IN [ca, tx]")
	}
}

func TestEvaluate_QuietHoursField(t *testing.T) {
	lead := buyerLead()
	lead.QuietHours = true

	node := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "quietHours", Operator: OpEquals, Value: "true",
	}}
	if !node.Evaluate(lead).Matched {
		t.Fatalf("expected quietHours check to match")
	}
}

func TestEvaluate_ListingAbsent(t *testing.T) {
	lead := buyerLead()
	lead.Listing = nil

	node := &ConditionNode{Kind: ConditionCheck, Check: &Check{
		Field: "listing.city", Operator: OpExists,
	}}
	if node.Evaluate(lead).Matched {
		t.Fatalf("expected listing.city not to exist without a listing")
	}
}
