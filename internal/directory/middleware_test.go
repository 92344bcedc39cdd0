package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	byLogin map[string]Principal
}

func (s *stubRepo) GetByID(ctx context.Context, id int64) (*Principal, error) {
	for _, p := range s.byLogin {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubRepo) GetByLogin(ctx context.Context, login string) (*Principal, error) {
	p, ok := s.byLogin[login]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *stubRepo) List(ctx context.Context, req ListRequest) ([]Principal, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) UpdateSystemRoles(ctx context.Context, userID int64, roles SystemRoles) error {
	return nil
}

func identityHandler(t *testing.T, repo Repository) (http.Handler, *Principal) {
	t.Helper()
	captured := &Principal{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		*captured = p
		w.WriteHeader(http.StatusNoContent)
	})
	return Identity(repo, "")(next), captured
}

func TestIdentityResolvesHeader(t *testing.T) {
	repo := &stubRepo{byLogin: map[string]Principal{
		"jdoe": {ID: 7, LoginName: "jdoe", DisplayName: "Jane Doe", IsActive: true},
	}}
	h, captured := identityHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Remote-User", "jdoe")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(7), captured.ID)
}

func TestIdentityStripsDomainPrefix(t *testing.T) {
	repo := &stubRepo{byLogin: map[string]Principal{
		"jdoe": {ID: 7, LoginName: "jdoe", IsActive: true},
	}}
	h, captured := identityHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Remote-User", `CORP\jdoe`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "jdoe", captured.LoginName)
}

func TestIdentityRejectsMissingHeader(t *testing.T) {
	h, _ := identityHandler(t, &stubRepo{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityRejectsUnknownUser(t *testing.T) {
	h, _ := identityHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Remote-User", "ghost")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireApprover(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireApprover(next)

	cases := []struct {
		name string
		p    Principal
		want int
	}{
		{"plain user", Principal{ID: 1}, http.StatusForbidden},
		{"approver", Principal{ID: 2, IsApprover: true}, http.StatusNoContent},
		{"data steward", Principal{ID: 3, IsDataSteward: true}, http.StatusNoContent},
		{"admin", Principal{ID: 4, IsAdmin: true}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/approver/pending", nil)
			req = req.WithContext(ContextWithPrincipal(req.Context(), tc.p))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAdmin(next)

	req := httptest.NewRequest(http.MethodGet, "/admin/roles", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{ID: 2, IsApprover: true}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/roles", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{ID: 4, IsAdmin: true}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireApproverWithoutPrincipal(t *testing.T) {
	h := RequireApprover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/approver/pending", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
