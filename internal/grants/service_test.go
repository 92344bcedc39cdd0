package grants

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/shared"
)

type memRepo struct {
	nextID int64
	rows   map[int64]*Grant
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]*Grant)}
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*Grant, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memRepo) ListActiveForUser(_ context.Context, userID int64) ([]WithRole, error) {
	out := make([]WithRole, 0)
	for _, row := range m.rows {
		if row.HolderID == userID && row.Status == StatusActive {
			out = append(out, WithRole{Grant: *row})
		}
	}
	return out, nil
}

func (m *memRepo) ListAdmin(_ context.Context, _ ListRequest) ([]AdminRow, shared.Pagination, error) {
	return nil, shared.Pagination{}, nil
}

func (m *memRepo) CountActive(_ context.Context) (int64, error) {
	var n int64
	for _, row := range m.rows {
		if row.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ExpireDue(_ context.Context, now time.Time) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, row := range m.rows {
		if row.Status == StatusActive && row.ExpiresAt != nil && !row.ExpiresAt.After(now) {
			row.Status = StatusExpired
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*Grant, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) ActiveForUpdate(_ context.Context, holderID, roleID int64) (*Grant, error) {
	for _, row := range m.rows {
		if row.HolderID == holderID && row.RoleID == roleID && row.Status == StatusActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Insert(_ context.Context, g *Grant) (int64, error) {
	m.nextID++
	cp := *g
	cp.ID = m.nextID
	m.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRepo) MarkRevoked(_ context.Context, id, actorID int64, reason string, at time.Time) error {
	row, ok := m.rows[id]
	if !ok || row.Status != StatusActive {
		return ErrNotActive
	}
	row.Status = StatusRevoked
	row.RevokedBy = &actorID
	row.RevokeReason = &reason
	row.RevokedAt = &at
	return nil
}

func (m *memRepo) SetExpiry(_ context.Context, id int64, expiresAt *time.Time) error {
	row, ok := m.rows[id]
	if !ok || row.Status != StatusActive {
		return ErrNotActive
	}
	row.ExpiresAt = expiresAt
	return nil
}

type stubUsers struct {
	users map[int64]*directory.Principal
}

func (s *stubUsers) GetByID(_ context.Context, id int64) (*directory.Principal, error) {
	p, ok := s.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return p, nil
}

func (s *stubUsers) GetByLogin(_ context.Context, _ string) (*directory.Principal, error) {
	return nil, directory.ErrNotFound
}

func (s *stubUsers) List(_ context.Context, _ directory.ListRequest) ([]directory.Principal, int, error) {
	return nil, 0, nil
}

func (s *stubUsers) UpdateSystemRoles(_ context.Context, _ int64, _ directory.SystemRoles) error {
	return nil
}

type stubResolver struct {
	policy eligibility.Policy
	err    error
}

func (s *stubResolver) ResolveForRole(_ context.Context, _ directory.Principal, _ int64) (eligibility.Policy, error) {
	return s.policy, s.err
}

func newTestService(repo *memRepo, resolver PolicyResolver) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := &stubUsers{users: map[int64]*directory.Principal{
		1: {ID: 1, LoginName: "jdoe"},
	}}
	return NewService(repo, users, resolver, nil, nil, logger)
}

func TestIssueTxSetsExpiry(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := IssueTx(context.Background(), repo, IssueParams{
		RequestID: 5, RoleID: 10, HolderID: 1, DurationMinutes: 90, Now: now,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, res.Grant.Status)
	assert.Nil(t, res.Superseded)
	require.NotNil(t, res.Grant.ExpiresAt)
	assert.Equal(t, now.Add(90*time.Minute), *res.Grant.ExpiresAt)
}

func TestIssueTxIndefinite(t *testing.T) {
	repo := newMemRepo()

	res, err := IssueTx(context.Background(), repo, IssueParams{
		RequestID: 5, RoleID: 10, HolderID: 1, DurationMinutes: 0, Now: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Grant.ExpiresAt, "zero duration means no automatic expiry")
}

func TestIssueTxSupersedes(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := IssueTx(ctx, repo, IssueParams{RequestID: 1, RoleID: 10, HolderID: 1, DurationMinutes: 60, Now: now})
	require.NoError(t, err)

	second, err := IssueTx(ctx, repo, IssueParams{RequestID: 2, RoleID: 10, HolderID: 1, DurationMinutes: 60, Now: now})
	require.NoError(t, err)

	require.NotNil(t, second.Superseded)
	assert.Equal(t, first.Grant.ID, second.Superseded.ID)

	old, err := repo.GetByID(ctx, first.Grant.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, old.Status)
	require.NotNil(t, old.RevokeReason)
	assert.Equal(t, RevokeReasonSuperseded, *old.RevokeReason)

	// A different holder of the same role is untouched.
	_, err = IssueTx(ctx, repo, IssueParams{RequestID: 3, RoleID: 10, HolderID: 9, DurationMinutes: 60, Now: now})
	require.NoError(t, err)
	n, _ := repo.CountActive(ctx)
	assert.Equal(t, int64(2), n)
}

func TestRevoke(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubResolver{})
	ctx := context.Background()

	res, err := IssueTx(ctx, repo, IssueParams{RequestID: 1, RoleID: 10, HolderID: 1, DurationMinutes: 60, Now: time.Now()})
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, res.Grant.ID, 99, "policy breach")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedBy)
	assert.Equal(t, int64(99), *revoked.RevokedBy)

	_, err = svc.Revoke(ctx, res.Grant.ID, 99, "")
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = svc.Revoke(ctx, 9999, 99, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtend(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubResolver{policy: eligibility.Policy{MaxDurationMinutes: 120}})
	ctx := context.Background()

	res, err := IssueTx(ctx, repo, IssueParams{RequestID: 1, RoleID: 10, HolderID: 1, DurationMinutes: 30, Now: time.Now()})
	require.NoError(t, err)

	_, err = svc.Extend(ctx, res.Grant.ID, 99, 0)
	assert.ErrorIs(t, err, ErrIndefiniteExtension)

	_, err = svc.Extend(ctx, res.Grant.ID, 99, 240)
	assert.ErrorIs(t, err, ErrDurationExceedsMax)

	before := time.Now().UTC()
	extended, err := svc.Extend(ctx, res.Grant.ID, 99, 120)
	require.NoError(t, err)
	require.NotNil(t, extended.ExpiresAt)
	assert.WithinDuration(t, before.Add(120*time.Minute), *extended.ExpiresAt, 2*time.Second)
}

func TestExtendRespectsCurrentEligibility(t *testing.T) {
	repo := newMemRepo()
	resolver := &stubResolver{err: &eligibility.NotEligibleError{RoleID: 10, Reason: eligibility.ReasonNoMatchingRule}}
	svc := newTestService(repo, resolver)
	ctx := context.Background()

	res, err := IssueTx(ctx, repo, IssueParams{RequestID: 1, RoleID: 10, HolderID: 1, DurationMinutes: 30, Now: time.Now()})
	require.NoError(t, err)

	// The holder lost eligibility since the grant was issued; extension is
	// refused.
	_, err = svc.Extend(ctx, res.Grant.ID, 99, 60)
	var notEligible *eligibility.NotEligibleError
	assert.ErrorAs(t, err, &notEligible)
}

func TestExpireSweep(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubResolver{})
	ctx := context.Background()
	now := time.Now().UTC()

	overdue, err := IssueTx(ctx, repo, IssueParams{RequestID: 1, RoleID: 10, HolderID: 1, DurationMinutes: 1, Now: now.Add(-time.Hour)})
	require.NoError(t, err)
	current, err := IssueTx(ctx, repo, IssueParams{RequestID: 2, RoleID: 11, HolderID: 1, DurationMinutes: 600, Now: now})
	require.NoError(t, err)
	indefinite, err := IssueTx(ctx, repo, IssueParams{RequestID: 3, RoleID: 12, HolderID: 1, DurationMinutes: 0, Now: now.Add(-24 * time.Hour)})
	require.NoError(t, err)

	n, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, _ := repo.GetByID(ctx, overdue.Grant.ID)
	assert.Equal(t, StatusExpired, expired.Status)
	stillActive, _ := repo.GetByID(ctx, current.Grant.ID)
	assert.Equal(t, StatusActive, stillActive.Status)
	forever, _ := repo.GetByID(ctx, indefinite.Grant.ID)
	assert.Equal(t, StatusActive, forever.Status)

	// Sweeping again finds nothing; the operation is idempotent.
	n, err = svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
