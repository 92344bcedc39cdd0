// Package reports assembles dashboard statistics for administrators.
package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Stats is the admin dashboard summary.
type Stats struct {
	ActiveGrants    int64 `json:"active_grants"`
	PendingRequests int64 `json:"pending_requests"`
	TotalRoles      int64 `json:"total_roles"`
	SensitiveRoles  int64 `json:"sensitive_roles"`
	TotalUsers      int64 `json:"total_users"`
	GrantsLast7Days int64 `json:"grants_last_7_days"`
}

// Service reads aggregate counters straight from the primary store.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Dashboard runs the counter queries concurrently and returns the combined
// snapshot. The counters are not mutually consistent, which is acceptable for
// a dashboard.
func (s *Service) Dashboard(ctx context.Context) (*Stats, error) {
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int64, query string) func() error {
		return func() error {
			if err := s.pool.QueryRow(ctx, query).Scan(dst); err != nil {
				return fmt.Errorf("reports: %w", err)
			}
			return nil
		}
	}

	g.Go(count(&stats.ActiveGrants, `SELECT COUNT(*) FROM grants WHERE status = 'Active'`))
	g.Go(count(&stats.PendingRequests, `SELECT COUNT(*) FROM requests WHERE status = 'Pending'`))
	g.Go(count(&stats.TotalRoles, `SELECT COUNT(*) FROM roles WHERE is_enabled`))
	g.Go(count(&stats.SensitiveRoles, `SELECT COUNT(*) FROM roles WHERE is_enabled AND sensitivity_level = 'Sensitive'`))
	g.Go(count(&stats.TotalUsers, `SELECT COUNT(*) FROM users WHERE is_active`))
	g.Go(count(&stats.GrantsLast7Days, `SELECT COUNT(*) FROM grants WHERE granted_at >= NOW() - INTERVAL '7 days'`))

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}
