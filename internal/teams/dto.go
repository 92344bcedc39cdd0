package teams

// CreateTeamRequest is the payload for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"team_name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateTeamRequest is the payload for renaming or redescribing a team.
type UpdateTeamRequest struct {
	Name        string `json:"team_name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// SetMembersRequest replaces the full membership of a team.
type SetMembersRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"dive,gt=0"`
}
