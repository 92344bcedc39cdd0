package catalog

// validateRule enforces the structural invariants of an eligibility rule
// before it reaches storage.
func validateRule(rule EligibilityRule) error {
	if !rule.ScopeType.IsValid() {
		return ErrInvalidScopeType
	}
	if rule.ScopeValue == "" {
		return ErrEmptyScopeValue
	}
	if rule.MaxDurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if rule.MinSeniorityLevel < 0 {
		return ErrInvalidSeniority
	}
	if rule.Priority < 0 {
		return ErrInvalidPriority
	}
	return nil
}
