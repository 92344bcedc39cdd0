// Package eligibility resolves which policy, if any, lets a principal request
// a role. Resolution is a pure function over the snapshots it is handed; it
// never touches storage.
package eligibility

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
)

// Reason explains why a principal is not eligible for a role.
type Reason string

const (
	// ReasonRoleDisabled means the role is switched off in the catalog.
	ReasonRoleDisabled Reason = "role_disabled"
	// ReasonNoMatchingRule means no eligibility rule covers the principal.
	ReasonNoMatchingRule Reason = "no_matching_rule"
	// ReasonSeniority means a rule matched but the principal's seniority
	// level is below the rule's minimum.
	ReasonSeniority Reason = "seniority_below_minimum"
)

// NotEligibleError reports which role rejected the principal and why.
type NotEligibleError struct {
	RoleID   int64
	RoleName string
	Reason   Reason
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("not eligible for role %q (%d): %s", e.RoleName, e.RoleID, e.Reason)
}

// Policy is the single effective rule for a (principal, role) pair.
type Policy struct {
	RuleID                int64
	MaxDurationMinutes    int
	RequiresJustification bool
	RequiresApproval      bool
	MinSeniorityLevel     int
}

// scope specificity for tie-breaking, most specific first.
var scopeRank = map[catalog.ScopeType]int{
	catalog.ScopeUser:       0,
	catalog.ScopeTeam:       1,
	catalog.ScopeDepartment: 2,
	catalog.ScopeDivision:   3,
}

// Resolve evaluates the rule set for one role against a principal. It returns
// a *NotEligibleError when the role is disabled, no rule matches, or the best
// matching rule demands more seniority than the principal has.
//
// When several rules match, the winner is chosen deterministically: lowest
// Priority value first, then smallest max duration, then most specific scope
// (User > Team > Department > Division). Storage order never matters.
func Resolve(p directory.Principal, role catalog.Role, rules []catalog.EligibilityRule) (Policy, error) {
	if !role.IsEnabled {
		return Policy{}, &NotEligibleError{RoleID: role.ID, RoleName: role.Name, Reason: ReasonRoleDisabled}
	}

	var matched []catalog.EligibilityRule
	for _, rule := range rules {
		if rule.RoleID != role.ID {
			continue
		}
		ok, err := matches(p, rule)
		if err != nil {
			return Policy{}, err
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return Policy{}, &NotEligibleError{RoleID: role.ID, RoleName: role.Name, Reason: ReasonNoMatchingRule}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.MaxDurationMinutes != b.MaxDurationMinutes {
			return a.MaxDurationMinutes < b.MaxDurationMinutes
		}
		return scopeRank[a.ScopeType] < scopeRank[b.ScopeType]
	})
	winner := matched[0]

	if p.SeniorityLevel < winner.MinSeniorityLevel {
		return Policy{}, &NotEligibleError{RoleID: role.ID, RoleName: role.Name, Reason: ReasonSeniority}
	}

	return Policy{
		RuleID:                winner.ID,
		MaxDurationMinutes:    winner.MaxDurationMinutes,
		RequiresJustification: winner.RequiresJustification,
		RequiresApproval:      winner.RequiresApproval,
		MinSeniorityLevel:     winner.MinSeniorityLevel,
	}, nil
}

// matches applies one rule's scope to the principal. The switch is exhaustive
// over the closed scope set; an unknown scope type is a data error, not a
// silent non-match.
func matches(p directory.Principal, rule catalog.EligibilityRule) (bool, error) {
	value := strings.TrimSpace(rule.ScopeValue)
	if value == "" {
		return false, fmt.Errorf("eligibility rule %d: empty scope value", rule.ID)
	}
	switch rule.ScopeType {
	case catalog.ScopeUser:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("eligibility rule %d: scope value %q is not a user id", rule.ID, value)
		}
		return id == p.ID, nil
	case catalog.ScopeTeam:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("eligibility rule %d: scope value %q is not a team id", rule.ID, value)
		}
		return p.InTeam(id), nil
	case catalog.ScopeDivision:
		return p.Division != "" && strings.EqualFold(p.Division, value), nil
	case catalog.ScopeDepartment:
		return p.Department != "" && strings.EqualFold(p.Department, value), nil
	default:
		return false, fmt.Errorf("eligibility rule %d: unknown scope type %q", rule.ID, rule.ScopeType)
	}
}
