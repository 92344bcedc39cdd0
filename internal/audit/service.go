package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitaccess/jitaccess/internal/shared"
)

// Entry is a stored audit event joined with actor display data.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	EventType  string         `json:"event_type"`
	ActorID    *int64         `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filters narrows the audit listing.
type Filters struct {
	Search    string
	EventType string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

// Result wraps a page of entries with paging metadata.
type Result struct {
	Entries []Entry           `json:"entries"`
	Paging  shared.Pagination `json:"paging"`
}

// Service mengoordinasikan pembacaan audit trail untuk tampilan admin.
type Service struct {
	pool *pgxpool.Pool
}

// NewService membuat service audit baru.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// List returns a filtered page of audit entries, newest first.
func (s *Service) List(ctx context.Context, f Filters) (Result, error) {
	if s.pool == nil {
		return Result{}, fmt.Errorf("audit: pool not configured")
	}
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > 500 {
		perPage = 500
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, fmt.Sprintf("(e.entity_id ILIKE %s OR u.display_name ILIKE %s OR e.details::text ILIKE %s)", p, p, p))
	}
	if f.EventType != "" {
		conds = append(conds, "e.event_type = "+arg(f.EventType))
	}
	if f.From != nil {
		conds = append(conds, "e.occurred_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "e.occurred_at < "+arg(*f.To))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	base := ` FROM audit_events e LEFT JOIN users u ON u.id = e.actor_id` + where

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*)"+base, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count audit events: %w", err)
	}

	query := `SELECT e.id, e.event_type, e.actor_id, COALESCE(u.display_name, ''), e.entity, e.entity_id, e.details, e.occurred_at` +
		base + fmt.Sprintf(" ORDER BY e.occurred_at DESC LIMIT %s OFFSET %s", arg(perPage), arg((page-1)*perPage))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.ActorName, &e.Entity, &e.EntityID, &e.Details, &e.OccurredAt); err != nil {
			return Result{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return Result{Entries: entries, Paging: shared.NewPagination(page, perPage, total)}, nil
}
