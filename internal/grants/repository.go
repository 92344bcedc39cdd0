package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitaccess/jitaccess/internal/platform/db"
	"github.com/jitaccess/jitaccess/internal/shared"
)

// ListRequest filters the administrative grant listing.
type ListRequest struct {
	Search  string
	Status  string
	RoleID  int64
	Page    int
	PerPage int
}

// AdminRow is a grant joined with holder and role display fields.
type AdminRow struct {
	Grant
	RoleName    string `json:"role_name"`
	HolderName  string `json:"holder_name"`
	HolderLogin string `json:"holder_login"`
}

// Repository defines persistence for grants.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Grant, error)
	ListActiveForUser(ctx context.Context, userID int64) ([]WithRole, error)
	ListAdmin(ctx context.Context, req ListRequest) ([]AdminRow, shared.Pagination, error)
	CountActive(ctx context.Context) (int64, error)
	ExpireDue(ctx context.Context, now time.Time) ([]Grant, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes grant writes bound to a single transaction so that
// callers can compose grant issuance with their own row updates.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Grant, error)
	ActiveForUpdate(ctx context.Context, holderID, roleID int64) (*Grant, error)
	Insert(ctx context.Context, g *Grant) (int64, error)
	MarkRevoked(ctx context.Context, id, actorID int64, reason string, at time.Time) error
	SetExpiry(ctx context.Context, id int64, expiresAt *time.Time) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed grant repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

const grantColumns = `g.id, g.request_id, g.role_id, g.holder_id, g.status,
	g.granted_at, g.expires_at, g.revoked_by, g.revoked_at, g.revoke_reason`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.ID, &g.RequestID, &g.RoleID, &g.HolderID, &g.Status,
		&g.GrantedAt, &g.ExpiresAt, &g.RevokedBy, &g.RevokedAt, &g.RevokeReason,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id int64) (*Grant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+grantColumns+` FROM grants g WHERE g.id = $1`, id)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grants: get by id: %w", err)
	}
	return g, nil
}

func (r *pgxRepository) ListActiveForUser(ctx context.Context, userID int64) ([]WithRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantColumns+`, ro.role_name, COALESCE(ro.description, ''), ro.sensitivity_level
		FROM grants g
		JOIN roles ro ON ro.id = g.role_id
		WHERE g.holder_id = $1 AND g.status = 'Active'
		ORDER BY g.granted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list active for user: %w", err)
	}
	defer rows.Close()

	out := make([]WithRole, 0)
	for rows.Next() {
		var w WithRole
		err := rows.Scan(
			&w.ID, &w.RequestID, &w.RoleID, &w.HolderID, &w.Status,
			&w.GrantedAt, &w.ExpiresAt, &w.RevokedBy, &w.RevokedAt, &w.RevokeReason,
			&w.RoleName, &w.RoleDescription, &w.Sensitivity,
		)
		if err != nil {
			return nil, fmt.Errorf("grants: scan active grant: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *pgxRepository) ListAdmin(ctx context.Context, req ListRequest) ([]AdminRow, shared.Pagination, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(req.Search); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, fmt.Sprintf("(u.display_name ILIKE %s OR u.login_name ILIKE %s OR ro.role_name ILIKE %s)", p, p, p))
	}
	if req.Status != "" {
		conds = append(conds, "g.status = "+arg(req.Status))
	}
	if req.RoleID > 0 {
		conds = append(conds, "g.role_id = "+arg(req.RoleID))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	from := ` FROM grants g
		JOIN roles ro ON ro.id = g.role_id
		JOIN users u ON u.id = g.holder_id` + where

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("grants: count admin list: %w", err)
	}

	paging := shared.NewPagination(req.Page, req.PerPage, total)
	query := "SELECT " + grantColumns + ", ro.role_name, u.display_name, u.login_name" + from +
		" ORDER BY g.granted_at DESC LIMIT " + arg(paging.PerPage) + " OFFSET " + arg(paging.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("grants: admin list: %w", err)
	}
	defer rows.Close()

	out := make([]AdminRow, 0, paging.PerPage)
	for rows.Next() {
		var a AdminRow
		err := rows.Scan(
			&a.ID, &a.RequestID, &a.RoleID, &a.HolderID, &a.Status,
			&a.GrantedAt, &a.ExpiresAt, &a.RevokedBy, &a.RevokedAt, &a.RevokeReason,
			&a.RoleName, &a.HolderName, &a.HolderLogin,
		)
		if err != nil {
			return nil, shared.Pagination{}, fmt.Errorf("grants: scan admin row: %w", err)
		}
		out = append(out, a)
	}
	return out, paging, rows.Err()
}

func (r *pgxRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grants WHERE status = 'Active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("grants: count active: %w", err)
	}
	return n, nil
}

// ExpireDue flips every overdue active grant to Expired and returns the
// affected rows. Safe to run concurrently: the status predicate makes the
// update idempotent.
func (r *pgxRepository) ExpireDue(ctx context.Context, now time.Time) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE grants g SET status = 'Expired'
		WHERE g.status = 'Active' AND g.expires_at IS NOT NULL AND g.expires_at <= $1
		RETURNING `+grantColumns, now)
	if err != nil {
		return nil, fmt.Errorf("grants: expire due: %w", err)
	}
	defer rows.Close()

	out := make([]Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("grants: scan expired grant: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *pgxRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds grant writes to an existing transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Grant, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+grantColumns+` FROM grants g WHERE g.id = $1 FOR UPDATE`, id)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grants: get for update: %w", err)
	}
	return g, nil
}

func (r *txRepository) ActiveForUpdate(ctx context.Context, holderID, roleID int64) (*Grant, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+grantColumns+` FROM grants g
		WHERE g.holder_id = $1 AND g.role_id = $2 AND g.status = 'Active'
		FOR UPDATE`, holderID, roleID)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("grants: active for update: %w", err)
	}
	return g, nil
}

func (r *txRepository) Insert(ctx context.Context, g *Grant) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO grants (request_id, role_id, holder_id, status, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		g.RequestID, g.RoleID, g.HolderID, g.Status, g.GrantedAt, g.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("grants: insert: %w", err)
	}
	return id, nil
}

func (r *txRepository) MarkRevoked(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE grants SET status = 'Revoked', revoked_by = $2, revoke_reason = $3, revoked_at = $4
		WHERE id = $1 AND status = 'Active'`,
		id, actorID, reason, at)
	if err != nil {
		return fmt.Errorf("grants: mark revoked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}

func (r *txRepository) SetExpiry(ctx context.Context, id int64, expiresAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE grants SET expires_at = $2 WHERE id = $1 AND status = 'Active'`,
		id, expiresAt)
	if err != nil {
		return fmt.Errorf("grants: set expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}
