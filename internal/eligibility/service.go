package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
)

// RequestableRole is an enabled role the principal may request, together with
// the constraints of the principal's effective policy.
type RequestableRole struct {
	RoleID                int64               `json:"role_id"`
	RoleName              string              `json:"role_name"`
	Description           string              `json:"description"`
	Sensitivity           catalog.Sensitivity `json:"sensitivity_level"`
	IconName              string              `json:"icon_name"`
	IconColor             string              `json:"icon_color"`
	MaxDurationMinutes    int                 `json:"max_duration_minutes"`
	RequiresJustification bool                `json:"requires_justification"`
	RequiresApproval      bool                `json:"requires_approval"`
}

// CatalogStore is the slice of the catalog the resolver needs.
type CatalogStore interface {
	GetRole(ctx context.Context, id int64) (*catalog.Role, error)
	ListEnabledRoles(ctx context.Context) ([]catalog.Role, error)
	ListRulesForRole(ctx context.Context, roleID int64) ([]catalog.EligibilityRule, error)
	ListRulesForRoles(ctx context.Context, roleIDs []int64) ([]catalog.EligibilityRule, error)
}

// Service computes per-principal eligibility views over the catalog.
type Service struct {
	store CatalogStore
	cache *Cache
	group singleflight.Group
}

// NewService creates a new service. The cache may be nil.
func NewService(store CatalogStore, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// ResolveForRole resolves the effective policy for one (principal, role)
// pair against current catalog state.
func (s *Service) ResolveForRole(ctx context.Context, p directory.Principal, roleID int64) (Policy, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Policy{}, err
	}
	rules, err := s.store.ListRulesForRole(ctx, roleID)
	if err != nil {
		return Policy{}, fmt.Errorf("load rules for role %d: %w", roleID, err)
	}
	return Resolve(p, *role, rules)
}

// ListRequestable returns every enabled role the principal is eligible for.
// Results are cached per user; concurrent cache misses for the same user are
// collapsed through singleflight so the rule scan runs once.
func (s *Service) ListRequestable(ctx context.Context, p directory.Principal) ([]RequestableRole, error) {
	if cached, ok := s.cache.Get(ctx, p.ID); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(p.ID, 10), func() (interface{}, error) {
		roles, err := s.computeRequestable(ctx, p)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, p.ID, roles)
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]RequestableRole), nil
}

func (s *Service) computeRequestable(ctx context.Context, p directory.Principal) ([]RequestableRole, error) {
	enabled, err := s.store.ListEnabledRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled roles: %w", err)
	}
	ids := make([]int64, 0, len(enabled))
	for _, role := range enabled {
		ids = append(ids, role.ID)
	}
	rules, err := s.store.ListRulesForRoles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	byRole := make(map[int64][]catalog.EligibilityRule, len(enabled))
	for _, rule := range rules {
		byRole[rule.RoleID] = append(byRole[rule.RoleID], rule)
	}

	out := make([]RequestableRole, 0, len(enabled))
	for _, role := range enabled {
		policy, err := Resolve(p, role, byRole[role.ID])
		if err != nil {
			var notEligible *NotEligibleError
			if errors.As(err, &notEligible) {
				continue
			}
			return nil, err
		}
		out = append(out, RequestableRole{
			RoleID:                role.ID,
			RoleName:              role.Name,
			Description:           role.Description,
			Sensitivity:           role.Sensitivity,
			IconName:              role.IconName,
			IconColor:             role.IconColor,
			MaxDurationMinutes:    policy.MaxDurationMinutes,
			RequiresJustification: policy.RequiresJustification,
			RequiresApproval:      policy.RequiresApproval,
		})
	}
	return out, nil
}
