package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ConditionKind identifies a node in a rule's condition tree.
type ConditionKind string

const (
	ConditionAll   ConditionKind = "ALL"
	ConditionAny   ConditionKind = "ANY"
	ConditionNot   ConditionKind = "NOT"
	ConditionCheck ConditionKind = "CHECK"
)

// CheckOperator is the comparison applied by a leaf check.
type CheckOperator string

const (
	OpEquals    CheckOperator = "EQUALS"
	OpNotEquals CheckOperator = "NOT_EQUALS"
	OpIn        CheckOperator = "IN"
	OpContains  CheckOperator = "CONTAINS"
	OpExists    CheckOperator = "EXISTS"
	OpGte       CheckOperator = "GTE"
	OpLte       CheckOperator = "LTE"
)

// Check is a single attribute comparison against the lead context.
// Field names form a closed vocabulary: source, leadType, buyerRep, tag,
// quietHours, custom.<key>, consent.<channel>, listing.price, listing.city,
// listing.state, listing.postalCode.
type Check struct {
	Field    string        `json:"field"`
	Operator CheckOperator `json:"operator"`
	Value    string        `json:"value,omitempty"`
	Values   []string      `json:"values,omitempty"`
}

// ConditionNode is one node of a rule's condition tree. Branch nodes
// (ALL/ANY/NOT) combine children; CHECK nodes carry a leaf comparison.
type ConditionNode struct {
	Kind     ConditionKind   `json:"kind"`
	Children []ConditionNode `json:"children,omitempty"`
	Check    *Check          `json:"check,omitempty"`
}

// CheckResult records the outcome of one leaf check, retained on the audit
// trail even when the overall verdict is negative.
type CheckResult struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`
}

// Verdict is the outcome of evaluating a condition tree against a context.
type Verdict struct {
	Matched bool
	Checks  []CheckResult
}

// ParseCondition decodes and validates a condition tree from its stored JSON
// form. A nil or empty payload is a valid always-matching condition. Any
// structural problem is reported here so the caller can skip the rule instead
// of trusting shape at evaluation time.
func ParseCondition(raw json.RawMessage) (*ConditionNode, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var node ConditionNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	if err := validateCondition(&node); err != nil {
		return nil, err
	}
	return &node, nil
}

func validateCondition(node *ConditionNode) error {
	switch node.Kind {
	case ConditionAll, ConditionAny:
		if len(node.Children) == 0 {
			return fmt.Errorf("%s node requires children", node.Kind)
		}
		for i := range node.Children {
			if err := validateCondition(&node.Children[i]); err != nil {
				return err
			}
		}
	case ConditionNot:
		if len(node.Children) != 1 {
			return fmt.Errorf("NOT node requires exactly one child")
		}
		return validateCondition(&node.Children[0])
	case ConditionCheck:
		if node.Check == nil {
			return fmt.Errorf("CHECK node requires a check")
		}
		return validateCheck(node.Check)
	default:
		return fmt.Errorf("unknown condition kind %q", node.Kind)
	}
	return nil
}

func validateCheck(check *Check) error {
	if check.Field == "" {
		return fmt.Errorf("check field is required")
	}
	switch check.Operator {
	case OpEquals, OpNotEquals, OpContains, OpGte, OpLte:
		if check.Value == "" {
			return fmt.Errorf("operator %s requires a value", check.Operator)
		}
	case OpIn:
		if len(check.Values) == 0 {
			return fmt.Errorf("operator IN requires values")
		}
	case OpExists:
	default:
		return fmt.Errorf("unknown check operator %q", check.Operator)
	}
	return nil
}

// Evaluate walks the condition tree against the lead context. Evaluation is
// pure; every leaf check result is collected regardless of the verdict so
// the audit trail shows why a rule matched or not. A nil tree matches.
func (n *ConditionNode) Evaluate(lead LeadRoutingContext) Verdict {
	if n == nil {
		return Verdict{Matched: true}
	}

	var checks []CheckResult
	matched := evalNode(n, lead, &checks)
	return Verdict{Matched: matched, Checks: checks}
}

func evalNode(node *ConditionNode, lead LeadRoutingContext, checks *[]CheckResult) bool {
	switch node.Kind {
	case ConditionAll:
		result := true
		for i := range node.Children {
			if !evalNode(&node.Children[i], lead, checks) {
				result = false
			}
		}
		return result
	case ConditionAny:
		result := false
		for i := range node.Children {
			if evalNode(&node.Children[i], lead, checks) {
				result = true
			}
		}
		return result
	case ConditionNot:
		return !evalNode(&node.Children[0], lead, checks)
	case ConditionCheck:
		result := evalCheck(node.Check, lead)
		*checks = append(*checks, result)
		return result.Passed
	}
	return false
}

func evalCheck(check *Check, lead LeadRoutingContext) CheckResult {
	actual, present := resolveField(check.Field, lead)
	result := CheckResult{
		Field:    check.Field,
		Operator: string(check.Operator),
		Expected: expectedString(check),
		Actual:   actual,
	}

	switch check.Operator {
	case OpExists:
		result.Passed = present && actual != ""
	case OpEquals:
		result.Passed = strings.EqualFold(actual, check.Value)
	case OpNotEquals:
		result.Passed = !strings.EqualFold(actual, check.Value)
	case OpContains:
		if check.Field == "tag" {
			result.Passed = lead.HasTag(check.Value)
		} else {
			result.Passed = strings.Contains(strings.ToLower(actual), strings.ToLower(check.Value))
		}
	case OpIn:
		for _, candidate := range check.Values {
			if strings.EqualFold(actual, candidate) {
				result.Passed = true
				break
			}
		}
	case OpGte, OpLte:
		result.Passed = compareNumeric(actual, check.Value, check.Operator)
	}

	return result
}

func expectedString(check *Check) string {
	if check.Operator == OpIn {
		return strings.Join(check.Values, ",")
	}
	return check.Value
}

func compareNumeric(actual, expected string, op CheckOperator) bool {
	left, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return false
	}
	right, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false
	}
	if op == OpGte {
		return left >= right
	}
	return left <= right
}

// resolveField maps a check field name to the lead context value.
func resolveField(field string, lead LeadRoutingContext) (string, bool) {
	switch {
	case field == "source":
		return lead.Source, lead.Source != ""
	case field == "leadType":
		return lead.LeadType, lead.LeadType != ""
	case field == "buyerRep":
		return lead.BuyerRepStatus, lead.BuyerRepStatus != ""
	case field == "quietHours":
		return strconv.FormatBool(lead.QuietHours), true
	case field == "tag":
		// tag checks compare against the whole tag list
		return strings.Join(lead.Tags, ","), len(lead.Tags) > 0
	case strings.HasPrefix(field, "custom."):
		key := strings.TrimPrefix(field, "custom.")
		value, ok := lead.CustomFields[key]
		return value, ok
	case strings.HasPrefix(field, "consent."):
		channel := strings.TrimPrefix(field, "consent.")
		return string(lead.ConsentFor(channel)), true
	case strings.HasPrefix(field, "listing."):
		if lead.Listing == nil {
			return "", false
		}
		switch strings.TrimPrefix(field, "listing.") {
		case "price":
			return strconv.FormatInt(lead.Listing.PriceCents, 10), true
		case "city":
			return lead.Listing.City, lead.Listing.City != ""
		case "state":
			return lead.Listing.State, lead.Listing.State != ""
		case "postalCode":
			return lead.Listing.PostalCode, lead.Listing.PostalCode != ""
		}
	}
	return "", false
}
