package requests

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/grants"
)

// memStore is an in-memory Repository with just enough transactional
// behaviour for the service tests.
type memStore struct {
	mu          sync.Mutex
	nextReqID   int64
	nextGrantID int64
	requests    map[int64]*Request
	roleLines   map[int64][]int64
	grantRows   map[int64]*grants.Grant
}

func newMemStore() *memStore {
	return &memStore{
		requests:  make(map[int64]*Request),
		roleLines: make(map[int64][]int64),
		grantRows: make(map[int64]*grants.Grant),
	}
}

func (m *memStore) GetByID(_ context.Context, id int64) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) detail(r *Request) *Detail {
	d := Detail{
		Request:        *r,
		RequesterName:  fmt.Sprintf("User %d", r.RequesterID),
		RequesterLogin: fmt.Sprintf("user%d", r.RequesterID),
	}
	for _, roleID := range m.roleLines[r.ID] {
		d.Roles = append(d.Roles, RoleLine{RoleID: roleID, RoleName: fmt.Sprintf("role-%d", roleID), Sensitivity: "Standard"})
	}
	return &d
}

func (m *memStore) GetDetail(_ context.Context, id int64) (*Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.detail(r), nil
}

func (m *memStore) ListForUser(_ context.Context, userID int64) ([]Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Detail, 0)
	for _, r := range m.requests {
		if r.RequesterID == userID {
			out = append(out, *m.detail(r))
		}
	}
	return out, nil
}

func (m *memStore) ListPending(_ context.Context) ([]Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Detail, 0)
	for _, r := range m.requests {
		if r.Status == StatusPending {
			out = append(out, *m.detail(r))
		}
	}
	return out, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memTx{store: m})
}

type memTx struct {
	store *memStore
}

func (t *memTx) Grants() grants.TxRepository { return &memGrantTx{store: t.store} }

func (t *memTx) Insert(_ context.Context, r *Request, roleIDs []int64) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.nextReqID++
	cp := *r
	cp.ID = t.store.nextReqID
	t.store.requests[cp.ID] = &cp
	t.store.roleLines[cp.ID] = append([]int64(nil), roleIDs...)
	return cp.ID, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*Request, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) RoleIDs(_ context.Context, id int64) ([]int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return append([]int64(nil), t.store.roleLines[id]...), nil
}

func (t *memTx) SetDecision(_ context.Context, id int64, status Status, deciderID *int64, reason *string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	r.Status = status
	r.DecidedBy = deciderID
	r.DecidedAt = &now
	r.DecisionReason = reason
	return nil
}

type memGrantTx struct {
	store *memStore
}

func (g *memGrantTx) GetForUpdate(_ context.Context, id int64) (*grants.Grant, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	row, ok := g.store.grantRows[id]
	if !ok {
		return nil, grants.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (g *memGrantTx) ActiveForUpdate(_ context.Context, holderID, roleID int64) (*grants.Grant, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	for _, row := range g.store.grantRows {
		if row.HolderID == holderID && row.RoleID == roleID && row.Status == grants.StatusActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *memGrantTx) Insert(_ context.Context, row *grants.Grant) (int64, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	g.store.nextGrantID++
	cp := *row
	cp.ID = g.store.nextGrantID
	g.store.grantRows[cp.ID] = &cp
	return cp.ID, nil
}

func (g *memGrantTx) MarkRevoked(_ context.Context, id, actorID int64, reason string, at time.Time) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	row, ok := g.store.grantRows[id]
	if !ok || row.Status != grants.StatusActive {
		return grants.ErrNotActive
	}
	row.Status = grants.StatusRevoked
	row.RevokedBy = &actorID
	row.RevokeReason = &reason
	row.RevokedAt = &at
	return nil
}

func (g *memGrantTx) SetExpiry(_ context.Context, id int64, expiresAt *time.Time) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	row, ok := g.store.grantRows[id]
	if !ok || row.Status != grants.StatusActive {
		return grants.ErrNotActive
	}
	row.ExpiresAt = expiresAt
	return nil
}

// stubResolver hands out canned policies per role.
type stubResolver struct {
	policies map[int64]eligibility.Policy
	errs     map[int64]error
}

func (s *stubResolver) ResolveForRole(_ context.Context, _ directory.Principal, roleID int64) (eligibility.Policy, error) {
	if err, ok := s.errs[roleID]; ok {
		return eligibility.Policy{}, err
	}
	p, ok := s.policies[roleID]
	if !ok {
		return eligibility.Policy{}, &eligibility.NotEligibleError{RoleID: roleID, Reason: eligibility.ReasonNoMatchingRule}
	}
	return p, nil
}

func newTestService(store *memStore, resolver Resolver) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, resolver, nil, nil, logger)
}

func requester() directory.Principal {
	return directory.Principal{ID: 1, LoginName: "jdoe", Department: "Finance", JobTitle: "Analyst"}
}

func approver() directory.Principal {
	return directory.Principal{ID: 2, LoginName: "boss", IsApprover: true}
}

func TestSubmitValidation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
	}})
	ctx := context.Background()

	_, err := svc.Submit(ctx, requester(), SubmitRequest{RoleIDs: nil, DurationMinutes: 60})
	assert.ErrorIs(t, err, ErrNoRoles)

	_, err = svc.Submit(ctx, requester(), SubmitRequest{RoleIDs: []int64{10}, DurationMinutes: 0})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.Submit(ctx, requester(), SubmitRequest{RoleIDs: []int64{10}, DurationMinutes: 240})
	assert.ErrorIs(t, err, ErrDurationExceedsMax)
}

func TestSubmitNotEligibleFailsWholeRequest(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
	}})

	_, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 11}, DurationMinutes: 60})
	var notEligible *eligibility.NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.Equal(t, int64(11), notEligible.RoleID)
	assert.Empty(t, store.requests, "nothing may be persisted when one role is ineligible")
}

func TestSubmitUnknownRole(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{
		policies: map[int64]eligibility.Policy{10: {RuleID: 1, MaxDurationMinutes: 120}},
		errs:     map[int64]error{77: catalog.ErrNotFound},
	})

	_, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 77}, DurationMinutes: 60})
	require.ErrorIs(t, err, ErrUnknownRole)
	assert.Contains(t, err.Error(), "role 77", "the rejection must name the offending role")
	assert.Empty(t, store.requests)
}

func TestSubmitDurationCeilingIsMinimumAcrossRoles(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
		11: {RuleID: 2, MaxDurationMinutes: 60},
	}})

	_, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 11}, DurationMinutes: 90})
	assert.ErrorIs(t, err, ErrDurationExceedsMax)

	detail, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 11}, DurationMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, StatusAutoApproved, detail.Status)
}

func TestSubmitJustificationRule(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120, RequiresJustification: true},
	}})
	ctx := context.Background()

	_, err := svc.Submit(ctx, requester(), SubmitRequest{RoleIDs: []int64{10}, DurationMinutes: 60})
	assert.ErrorIs(t, err, ErrJustificationRequired)

	// A ticket number satisfies the requirement on its own.
	detail, err := svc.Submit(ctx, requester(), SubmitRequest{RoleIDs: []int64{10}, DurationMinutes: 60, TicketNumber: "CHG-1234"})
	require.NoError(t, err)
	assert.Equal(t, "CHG-1234", detail.TicketNumber)
}

func TestSubmitAutoApproveIssuesGrants(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
	}})

	detail, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10}, DurationMinutes: 60})
	require.NoError(t, err)

	assert.Equal(t, StatusAutoApproved, detail.Status)
	require.NotNil(t, detail.DecidedAt)
	assert.True(t, detail.DecidedAt.Equal(detail.CreatedAt), "auto-approval decides at creation time")
	assert.Nil(t, detail.DecidedBy)
	assert.Equal(t, "Finance", detail.DeptSnapshot)
	assert.Equal(t, "Analyst", detail.TitleSnapshot)

	require.Len(t, store.grantRows, 1)
	for _, g := range store.grantRows {
		assert.Equal(t, grants.StatusActive, g.Status)
		assert.Equal(t, detail.ID, g.RequestID)
		require.NotNil(t, g.ExpiresAt)
		assert.Equal(t, 60*time.Minute, g.ExpiresAt.Sub(g.GrantedAt))
	}
}

func TestSubmitPendingWhenApprovalRequired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
		11: {RuleID: 2, MaxDurationMinutes: 120, RequiresApproval: true},
	}})

	detail, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 11}, DurationMinutes: 60, Justification: "quarter close"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, detail.Status)
	assert.Nil(t, detail.DecidedAt)
	assert.Empty(t, store.grantRows, "no grant may exist before approval")
}

func submitPending(t *testing.T, svc *Service) *Detail {
	t.Helper()
	detail, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{11}, DurationMinutes: 60, Justification: "x"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, detail.Status)
	return detail
}

func pendingService(store *memStore) *Service {
	return newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		11: {RuleID: 2, MaxDurationMinutes: 120, RequiresApproval: true},
	}})
}

func TestApprove(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)
	pending := submitPending(t, svc)

	detail, err := svc.Approve(context.Background(), pending.ID, approver(), "ok")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, detail.Status)
	require.NotNil(t, detail.DecidedBy)
	assert.Equal(t, int64(2), *detail.DecidedBy)
	require.Len(t, store.grantRows, 1)
	for _, g := range store.grantRows {
		assert.Equal(t, grants.StatusActive, g.Status)
		assert.Equal(t, int64(1), g.HolderID)
	}
}

func TestApproveSupersedesExistingGrant(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)

	first := submitPending(t, svc)
	_, err := svc.Approve(context.Background(), first.ID, approver(), "")
	require.NoError(t, err)

	second := submitPending(t, svc)
	_, err = svc.Approve(context.Background(), second.ID, approver(), "")
	require.NoError(t, err)

	var active, superseded int
	for _, g := range store.grantRows {
		switch g.Status {
		case grants.StatusActive:
			active++
			assert.Equal(t, second.ID, g.RequestID)
		case grants.StatusRevoked:
			superseded++
			require.NotNil(t, g.RevokeReason)
			assert.Equal(t, grants.RevokeReasonSuperseded, *g.RevokeReason)
		}
	}
	assert.Equal(t, 1, active, "at most one active grant per holder and role")
	assert.Equal(t, 1, superseded)
}

func TestApproveRefusals(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)
	pending := submitPending(t, svc)
	ctx := context.Background()

	_, err := svc.Approve(ctx, pending.ID, requester(), "")
	assert.ErrorIs(t, err, ErrSelfApproval)

	_, err = svc.Approve(ctx, 9999, approver(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Approve(ctx, pending.ID, approver(), "")
	require.NoError(t, err)

	// Deciding twice is refused and issues nothing new.
	_, err = svc.Approve(ctx, pending.ID, approver(), "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, store.grantRows, 1)
}

func TestDeny(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)
	pending := submitPending(t, svc)
	ctx := context.Background()

	_, err := svc.Deny(ctx, pending.ID, approver(), "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.Deny(ctx, pending.ID, requester(), "nope")
	assert.ErrorIs(t, err, ErrSelfApproval)

	detail, err := svc.Deny(ctx, pending.ID, approver(), "not needed")
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, detail.Status)
	require.NotNil(t, detail.DecisionReason)
	assert.Equal(t, "not needed", *detail.DecisionReason)
	assert.Empty(t, store.grantRows)
}

func TestCancel(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)
	pending := submitPending(t, svc)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, pending.ID, approver().ID)
	assert.ErrorIs(t, err, ErrNotRequestOwner)

	detail, err := svc.Cancel(ctx, pending.ID, requester().ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, detail.Status)

	_, err = svc.Cancel(ctx, pending.ID, requester().ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetDetailVisibility(t *testing.T) {
	store := newMemStore()
	svc := pendingService(store)
	pending := submitPending(t, svc)
	ctx := context.Background()

	_, err := svc.GetDetail(ctx, pending.ID, requester())
	require.NoError(t, err)

	_, err = svc.GetDetail(ctx, pending.ID, approver())
	require.NoError(t, err)

	stranger := directory.Principal{ID: 77}
	_, err = svc.GetDetail(ctx, pending.ID, stranger)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitDeduplicatesRoles(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubResolver{policies: map[int64]eligibility.Policy{
		10: {RuleID: 1, MaxDurationMinutes: 120},
	}})

	detail, err := svc.Submit(context.Background(), requester(), SubmitRequest{RoleIDs: []int64{10, 10, 10}, DurationMinutes: 30})
	require.NoError(t, err)
	assert.Len(t, detail.Roles, 1)
	assert.Len(t, store.grantRows, 1)
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusAutoApproved, StatusDenied, StatusCancelled} {
		if s.CanDecide() || s.CanCancel() {
			t.Fatalf("status %s must be terminal", s)
		}
		if !s.IsTerminal() {
			t.Fatalf("status %s must be terminal", s)
		}
	}
	if !StatusPending.CanDecide() || !StatusPending.CanCancel() || StatusPending.IsTerminal() {
		t.Fatal("pending must allow decisions and cancellation")
	}
	if Status("Bogus").IsValid() {
		t.Fatal("unknown status must be invalid")
	}
}
