// Package catalog manages the requestable role catalog: role definitions,
// their underlying database role mappings, and the eligibility rules scoped
// to users, teams, divisions and departments.
package catalog

import "time"

// Sensitivity classifies how sensitive a role is.
type Sensitivity string

const (
	SensitivityStandard  Sensitivity = "Standard"
	SensitivitySensitive Sensitivity = "Sensitive"
)

// IsValid checks the sensitivity value.
func (s Sensitivity) IsValid() bool {
	return s == SensitivityStandard || s == SensitivitySensitive
}

// ScopeType enumerates the closed set of eligibility rule scopes.
type ScopeType string

const (
	ScopeUser       ScopeType = "User"
	ScopeTeam       ScopeType = "Team"
	ScopeDivision   ScopeType = "Division"
	ScopeDepartment ScopeType = "Department"
)

// IsValid checks the scope type value.
func (s ScopeType) IsValid() bool {
	switch s {
	case ScopeUser, ScopeTeam, ScopeDivision, ScopeDepartment:
		return true
	default:
		return false
	}
}

// Role is a requestable bundle of underlying permissions.
type Role struct {
	ID          int64       `json:"role_id"`
	Name        string      `json:"role_name"`
	Description string      `json:"description"`
	Sensitivity Sensitivity `json:"sensitivity_level"`
	IconName    string      `json:"icon_name"`
	IconColor   string      `json:"icon_color"`
	IsEnabled   bool        `json:"is_enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RoleWithStats adds admin-view counters to a role.
type RoleWithStats struct {
	Role
	RuleCount        int `json:"rule_count"`
	ActiveGrantCount int `json:"active_grant_count"`
}

// EligibilityRule constrains who may request a role and under what terms.
// An empty scope value is invalid and rejected at write time.
type EligibilityRule struct {
	ID                    int64     `json:"rule_id"`
	RoleID                int64     `json:"role_id"`
	ScopeType             ScopeType `json:"scope_type"`
	ScopeValue            string    `json:"scope_value"`
	MaxDurationMinutes    int       `json:"max_duration_minutes"`
	RequiresJustification bool      `json:"requires_justification"`
	RequiresApproval      bool      `json:"requires_approval"`
	MinSeniorityLevel     int       `json:"min_seniority_level"`
	Priority              int       `json:"priority"`
}

// DbRole is an underlying database role a catalog role confers.
type DbRole struct {
	ID           int64  `json:"db_role_id"`
	Name         string `json:"name"`
	DatabaseName string `json:"database_name"`
}

// Holder is a principal currently holding an active grant for a role.
type Holder struct {
	UserID      int64      `json:"user_id"`
	DisplayName string     `json:"display_name"`
	LoginName   string     `json:"login_name"`
	GrantID     int64      `json:"grant_id"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
