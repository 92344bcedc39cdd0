package eligibility

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
)

type stubStore struct {
	roles     []catalog.Role
	rules     []catalog.EligibilityRule
	ruleScans atomic.Int64
}

func (s *stubStore) GetRole(_ context.Context, id int64) (*catalog.Role, error) {
	for _, r := range s.roles {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (s *stubStore) ListEnabledRoles(_ context.Context) ([]catalog.Role, error) {
	out := make([]catalog.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.IsEnabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) ListRulesForRole(_ context.Context, roleID int64) ([]catalog.EligibilityRule, error) {
	out := make([]catalog.EligibilityRule, 0)
	for _, rule := range s.rules {
		if rule.RoleID == roleID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *stubStore) ListRulesForRoles(_ context.Context, roleIDs []int64) ([]catalog.EligibilityRule, error) {
	s.ruleScans.Add(1)
	want := make(map[int64]bool, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = true
	}
	out := make([]catalog.EligibilityRule, 0)
	for _, rule := range s.rules {
		if want[rule.RoleID] {
			out = append(out, rule)
		}
	}
	return out, nil
}

func TestListRequestableSkipsIneligibleRoles(t *testing.T) {
	store := &stubStore{
		roles: []catalog.Role{
			{ID: 1, Name: "ReadOnly", IsEnabled: true},
			{ID: 2, Name: "Writer", IsEnabled: true},
			{ID: 3, Name: "Retired", IsEnabled: false},
		},
		rules: []catalog.EligibilityRule{
			{ID: 1, RoleID: 1, ScopeType: catalog.ScopeDepartment, ScopeValue: "Finance", MaxDurationMinutes: 120},
			{ID: 2, RoleID: 2, ScopeType: catalog.ScopeDepartment, ScopeValue: "Engineering", MaxDurationMinutes: 60},
		},
	}
	svc := NewService(store, nil)
	p := directory.Principal{ID: 42, Department: "Finance"}

	roles, err := svc.ListRequestable(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, int64(1), roles[0].RoleID)
	assert.Equal(t, 120, roles[0].MaxDurationMinutes)
}

func TestListRequestableUsesCache(t *testing.T) {
	store := &stubStore{
		roles: []catalog.Role{{ID: 1, Name: "ReadOnly", IsEnabled: true}},
		rules: []catalog.EligibilityRule{
			{ID: 1, RoleID: 1, ScopeType: catalog.ScopeUser, ScopeValue: "42", MaxDurationMinutes: 120},
		},
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, nil)
	svc := NewService(store, cache)
	p := directory.Principal{ID: 42}
	ctx := context.Background()

	_, err := svc.ListRequestable(ctx, p)
	require.NoError(t, err)
	_, err = svc.ListRequestable(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.ruleScans.Load(), "second call must hit the cache")

	cache.InvalidateAll(ctx)
	_, err = svc.ListRequestable(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.ruleScans.Load(), "invalidation forces a recompute")
}

func TestResolveForRoleUnknownRole(t *testing.T) {
	svc := NewService(&stubStore{}, nil)
	_, err := svc.ResolveForRole(context.Background(), directory.Principal{ID: 1}, 404)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
