package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jitaccess/jitaccess/internal/audit"
)

// Invalidator is notified after any mutation that can change eligibility
// outcomes, so cached per-user requestable listings are dropped.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// Service provides business logic for catalog administration.
type Service struct {
	repo        Repository
	audit       *audit.Recorder
	invalidator Invalidator
}

// NewService creates a new service.
func NewService(repo Repository, recorder *audit.Recorder, invalidator Invalidator) *Service {
	return &Service{repo: repo, audit: recorder, invalidator: invalidator}
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns the admin role listing with counters.
func (s *Service) ListRoles(ctx context.Context) ([]RoleWithStats, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole adds a role to the catalog, enabled by default.
func (s *Service) CreateRole(ctx context.Context, req CreateRoleRequest, actorID int64) (*Role, error) {
	role := Role{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Sensitivity: Sensitivity(req.Sensitivity),
		IconName:    req.IconName,
		IconColor:   req.IconColor,
	}
	if role.Sensitivity == "" {
		role.Sensitivity = SensitivityStandard
	}
	if !role.Sensitivity.IsValid() {
		return nil, fmt.Errorf("invalid sensitivity %q", req.Sensitivity)
	}

	id, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	s.logEvent(ctx, audit.EventRoleCreated, actorID, id, map[string]any{"role_name": role.Name})
	s.invalidate(ctx)
	return s.repo.GetRole(ctx, id)
}

// UpdateRole changes the display fields of a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, req UpdateRoleRequest, actorID int64) (*Role, error) {
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Name = strings.TrimSpace(req.Name)
	existing.Description = strings.TrimSpace(req.Description)
	if req.Sensitivity != "" {
		existing.Sensitivity = Sensitivity(req.Sensitivity)
	}
	if !existing.Sensitivity.IsValid() {
		return nil, fmt.Errorf("invalid sensitivity %q", req.Sensitivity)
	}
	existing.IconName = req.IconName
	existing.IconColor = req.IconColor

	if err := s.repo.UpdateRole(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.logEvent(ctx, audit.EventRoleUpdated, actorID, id, map[string]any{"role_name": existing.Name})
	s.invalidate(ctx)
	return s.repo.GetRole(ctx, id)
}

// DeleteRole removes a role. Roles with active grants are refused; the admin
// must revoke the grants or wait for expiry first.
func (s *Service) DeleteRole(ctx context.Context, id int64, actorID int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.repo.CountActiveGrants(ctx, id)
	if err != nil {
		return fmt.Errorf("count active grants: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: %d active", ErrRoleInUse, active)
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventRoleDeleted, actorID, id, map[string]any{"role_name": role.Name})
	s.invalidate(ctx)
	return nil
}

// ToggleRole enables or disables a role. A disabled role can never be
// requested, regardless of eligibility rules.
func (s *Service) ToggleRole(ctx context.Context, id int64, enabled bool, actorID int64) error {
	if err := s.repo.SetRoleEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventRoleToggled, actorID, id, map[string]any{"is_enabled": enabled})
	s.invalidate(ctx)
	return nil
}

// ListHolders returns active holders of a role for the admin view.
func (s *Service) ListHolders(ctx context.Context, roleID int64) ([]Holder, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListHolders(ctx, roleID)
}

// GetRules returns the eligibility rule set of a role.
func (s *Service) GetRules(ctx context.Context, roleID int64) ([]EligibilityRule, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRulesForRole(ctx, roleID)
}

// SetRules validates and replaces the full rule set of a role.
func (s *Service) SetRules(ctx context.Context, roleID int64, req SetRulesRequest, actorID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	rules := make([]EligibilityRule, 0, len(req.Rules))
	for i, in := range req.Rules {
		rule := EligibilityRule{
			RoleID:                roleID,
			ScopeType:             ScopeType(in.ScopeType),
			ScopeValue:            strings.TrimSpace(in.ScopeValue),
			MaxDurationMinutes:    in.MaxDurationMinutes,
			RequiresJustification: in.RequiresJustification,
			RequiresApproval:      in.RequiresApproval,
			MinSeniorityLevel:     in.MinSeniorityLevel,
			Priority:              in.Priority,
		}
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	if err := s.repo.ReplaceRules(ctx, roleID, rules); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	s.logEvent(ctx, audit.EventRulesReplaced, actorID, roleID, map[string]any{"rule_count": len(rules)})
	s.invalidate(ctx)
	return nil
}

// ListAvailableDbRoles lists every mappable database role.
func (s *Service) ListAvailableDbRoles(ctx context.Context) ([]DbRole, error) {
	return s.repo.ListAvailableDbRoles(ctx)
}

// GetDbRoles returns the database roles mapped to a catalog role.
func (s *Service) GetDbRoles(ctx context.Context, roleID int64) ([]DbRole, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.GetDbRolesForRole(ctx, roleID)
}

// SetDbRoles replaces the database role mappings of a catalog role.
func (s *Service) SetDbRoles(ctx context.Context, roleID int64, dbRoleIDs []int64, actorID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceDbRoles(ctx, roleID, dbRoleIDs); err != nil {
		return fmt.Errorf("replace db roles: %w", err)
	}
	s.logEvent(ctx, audit.EventDbRolesReplaced, actorID, roleID, map[string]any{"db_role_count": len(dbRoleIDs)})
	return nil
}

func (s *Service) logEvent(ctx context.Context, eventType string, actorID, roleID int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event{
		EventType: eventType,
		ActorID:   actorID,
		Entity:    "role",
		EntityID:  strconv.FormatInt(roleID, 10),
		Details:   details,
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}
