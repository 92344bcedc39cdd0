// Package directory exposes the organizational view of principals synced from
// Active Directory. The engine reads principals as snapshots and never writes
// organizational attributes back.
package directory

// Principal is an authenticated user together with the directory attributes
// the eligibility engine consumes.
type Principal struct {
	ID             int64   `json:"user_id"`
	LoginName      string  `json:"login_name"`
	GivenName      *string `json:"given_name,omitempty"`
	Surname        *string `json:"surname,omitempty"`
	DisplayName    string  `json:"display_name"`
	Email          *string `json:"email,omitempty"`
	Department     string  `json:"department"`
	Division       string  `json:"division"`
	JobTitle       string  `json:"job_title"`
	SeniorityLevel int     `json:"seniority_level"`
	IsAdmin        bool    `json:"is_admin"`
	IsApprover     bool    `json:"is_approver"`
	IsDataSteward  bool    `json:"is_data_steward"`
	IsActive       bool    `json:"is_active"`
	TeamIDs        []int64 `json:"team_ids"`
}

// CanApprove reports whether the principal may decide on pending requests.
func (p Principal) CanApprove() bool {
	return p.IsApprover || p.IsDataSteward || p.IsAdmin
}

// InTeam reports membership of the given team.
func (p Principal) InTeam(teamID int64) bool {
	for _, id := range p.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// SystemRoles captures the three portal-level role flags an administrator can
// assign to a user.
type SystemRoles struct {
	IsAdmin       bool `json:"is_admin"`
	IsApprover    bool `json:"is_approver"`
	IsDataSteward bool `json:"is_data_steward"`
}
