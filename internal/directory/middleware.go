package directory

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// Identity resolves the caller from a trusted header set by the fronting
// reverse proxy and attaches the principal to the request context. Requests
// whose header is missing, unknown or resolves to a deactivated account are
// rejected with 401. A "DOMAIN\user" value is reduced to its user part.
func Identity(repo Repository, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Remote-User"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login := strings.TrimSpace(r.Header.Get(header))
			if i := strings.LastIndexByte(login, '\\'); i >= 0 {
				login = login[i+1:]
			}
			if login == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "identity header missing")
				return
			}

			p, err := repo.GetByLogin(r.Context(), login)
			if errors.Is(err, ErrNotFound) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown or inactive user")
				return
			}
			if err != nil {
				httpx.RespondError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), *p)))
		})
	}
}

// RequireApprover admits approvers, data stewards and admins.
func RequireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.CanApprove() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "approver access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits administrators only.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
