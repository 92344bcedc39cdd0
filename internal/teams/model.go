// Package teams manages team definitions and their membership, which feed
// team-scoped eligibility rules.
package teams

import "time"

type Team struct {
	ID          int64     `json:"team_id"`
	Name        string    `json:"team_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WithMemberCount is the listing shape for the admin screen.
type WithMemberCount struct {
	Team
	MemberCount int64 `json:"member_count"`
}

// Member is a user belonging to a team.
type Member struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	LoginName   string `json:"login_name"`
	Department  string `json:"department"`
	JobTitle    string `json:"job_title"`
}
