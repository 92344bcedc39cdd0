package teams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	nextID  int64
	teams   map[int64]Team
	members map[int64][]int64
}

func newMemRepo() *memRepo {
	return &memRepo{teams: make(map[int64]Team), members: make(map[int64][]int64)}
}

func (m *memRepo) List(ctx context.Context) ([]WithMemberCount, error) {
	out := make([]WithMemberCount, 0, len(m.teams))
	for id, t := range m.teams {
		out = append(out, WithMemberCount{Team: t, MemberCount: int64(len(m.members[id]))})
	}
	return out, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memRepo) Create(ctx context.Context, t Team) (int64, error) {
	for _, existing := range m.teams {
		if existing.Name == t.Name {
			return 0, ErrDuplicateName
		}
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.teams[t.ID] = t
	return t.ID, nil
}

func (m *memRepo) Update(ctx context.Context, t Team) error {
	existing, ok := m.teams[t.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = t.Name
	existing.Description = t.Description
	m.teams[t.ID] = existing
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.teams[id]; !ok {
		return ErrNotFound
	}
	delete(m.teams, id)
	delete(m.members, id)
	return nil
}

func (m *memRepo) ListMembers(ctx context.Context, teamID int64) ([]Member, error) {
	out := make([]Member, 0, len(m.members[teamID]))
	for _, uid := range m.members[teamID] {
		out = append(out, Member{UserID: uid})
	}
	return out, nil
}

func (m *memRepo) ReplaceMembers(ctx context.Context, teamID int64, userIDs []int64) error {
	if _, ok := m.teams[teamID]; !ok {
		return ErrNotFound
	}
	m.members[teamID] = append([]int64(nil), userIDs...)
	return nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateAll(ctx context.Context) { c.calls++ }

func TestCreateTrimsAndRejectsEmptyName(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)

	_, err := svc.Create(context.Background(), CreateTeamRequest{Name: "   "}, 1)
	assert.ErrorIs(t, err, ErrEmptyName)

	team, err := svc.Create(context.Background(), CreateTeamRequest{Name: "  Quarter Close  "}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Quarter Close", team.Name)
}

func TestCreateDuplicateName(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	_, err := svc.Create(context.Background(), CreateTeamRequest{Name: "Data Platform"}, 1)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateTeamRequest{Name: "Data Platform"}, 1)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestSetMembersDeduplicates(t *testing.T) {
	repo := newMemRepo()
	inv := &countingInvalidator{}
	svc := NewService(repo, nil, inv)

	team, err := svc.Create(context.Background(), CreateTeamRequest{Name: "Quarter Close"}, 1)
	require.NoError(t, err)

	members, err := svc.SetMembers(context.Background(), team.ID, SetMembersRequest{UserIDs: []int64{7, 7, 9, 7}}, 1)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, 1, inv.calls, "membership change must invalidate cached eligibility")
}

func TestSetMembersUnknownTeam(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	_, err := svc.SetMembers(context.Background(), 404, SetMembersRequest{UserIDs: []int64{1}}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInvalidates(t *testing.T) {
	repo := newMemRepo()
	inv := &countingInvalidator{}
	svc := NewService(repo, nil, inv)

	team, err := svc.Create(context.Background(), CreateTeamRequest{Name: "Quarter Close"}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), team.ID, 1))
	assert.Equal(t, 1, inv.calls)

	_, err = svc.Get(context.Background(), team.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
