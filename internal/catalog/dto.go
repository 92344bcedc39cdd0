package catalog

// CreateRoleRequest carries fields for creating a catalog role.
type CreateRoleRequest struct {
	Name        string `json:"role_name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Sensitivity string `json:"sensitivity_level" validate:"omitempty,oneof=Standard Sensitive"`
	IconName    string `json:"icon_name" validate:"max=100"`
	IconColor   string `json:"icon_color" validate:"max=100"`
}

// UpdateRoleRequest carries fields for updating a catalog role.
type UpdateRoleRequest struct {
	Name        string `json:"role_name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Sensitivity string `json:"sensitivity_level" validate:"omitempty,oneof=Standard Sensitive"`
	IconName    string `json:"icon_name" validate:"max=100"`
	IconColor   string `json:"icon_color" validate:"max=100"`
}

// ToggleRoleRequest enables or disables a role.
type ToggleRoleRequest struct {
	IsEnabled bool `json:"is_enabled"`
}

// RuleInput is one eligibility rule in a replace-all payload.
type RuleInput struct {
	ScopeType             string `json:"scope_type" validate:"required,oneof=User Team Division Department"`
	ScopeValue            string `json:"scope_value" validate:"required,max=200"`
	MaxDurationMinutes    int    `json:"max_duration_minutes" validate:"required,gt=0"`
	RequiresJustification bool   `json:"requires_justification"`
	RequiresApproval      bool   `json:"requires_approval"`
	MinSeniorityLevel     int    `json:"min_seniority_level" validate:"gte=0"`
	Priority              int    `json:"priority" validate:"gte=0"`
}

// SetRulesRequest replaces all eligibility rules of a role.
type SetRulesRequest struct {
	Rules []RuleInput `json:"rules" validate:"dive"`
}

// SetDbRolesRequest replaces the database role mappings of a role.
type SetDbRolesRequest struct {
	DbRoleIDs []int64 `json:"db_role_ids"`
}
