package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested principal does not exist.
var ErrNotFound = errors.New("principal not found")

// ListRequest carries filters for the paginated user listing.
type ListRequest struct {
	Search     string
	Department string
	SystemRole string
	Status     string
	Page       int
	PerPage    int
}

// Repository defines principal persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Principal, error)
	GetByLogin(ctx context.Context, login string) (*Principal, error)
	List(ctx context.Context, req ListRequest) ([]Principal, int, error)
	UpdateSystemRoles(ctx context.Context, userID int64, roles SystemRoles) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const principalColumns = `
	u.id, u.login_name, u.given_name, u.surname, u.display_name, u.email,
	COALESCE(u.department, ''), COALESCE(u.division, ''), COALESCE(u.job_title, ''),
	COALESCE(u.seniority_level, 0),
	u.is_admin, u.is_approver, u.is_data_steward, u.is_active`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(
		&p.ID, &p.LoginName, &p.GivenName, &p.Surname, &p.DisplayName, &p.Email,
		&p.Department, &p.Division, &p.JobTitle, &p.SeniorityLevel,
		&p.IsAdmin, &p.IsApprover, &p.IsDataSteward, &p.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByID loads a principal with team memberships.
func (r *repository) GetByID(ctx context.Context, id int64) (*Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u WHERE u.id = $1`, principalColumns)
	p, err := scanPrincipal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadTeams(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByLogin resolves a principal from the gateway-supplied login name. The
// gateway may forward a bare account name while the directory sync stores
// DOMAIN\account, so matching tolerates the missing prefix.
func (r *repository) GetByLogin(ctx context.Context, login string) (*Principal, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM users u
WHERE u.is_active AND (LOWER(u.login_name) = LOWER($1) OR LOWER(u.login_name) LIKE LOWER($2))
ORDER BY u.login_name LIMIT 1`, principalColumns)
	p, err := scanPrincipal(r.pool.QueryRow(ctx, query, login, `%\`+login))
	if err != nil {
		return nil, err
	}
	if err := r.loadTeams(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) loadTeams(ctx context.Context, p *Principal) error {
	rows, err := r.pool.Query(ctx, `SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`, p.ID)
	if err != nil {
		return fmt.Errorf("load teams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var teamID int64
		if err := rows.Scan(&teamID); err != nil {
			return err
		}
		p.TeamIDs = append(p.TeamIDs, teamID)
	}
	return rows.Err()
}

// List returns a filtered page of users plus the total count.
func (r *repository) List(ctx context.Context, req ListRequest) ([]Principal, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(req.Search); s != "" {
		p := arg("%" + s + "%")
		conds = append(conds, fmt.Sprintf("(u.login_name ILIKE %s OR u.display_name ILIKE %s OR u.email ILIKE %s)", p, p, p))
	}
	if req.Department != "" {
		conds = append(conds, "u.department = "+arg(req.Department))
	}
	switch req.SystemRole {
	case "admin":
		conds = append(conds, "u.is_admin")
	case "approver":
		conds = append(conds, "u.is_approver")
	case "steward":
		conds = append(conds, "u.is_data_steward")
	}
	switch req.Status {
	case "active":
		conds = append(conds, "u.is_active")
	case "inactive":
		conds = append(conds, "NOT u.is_active")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users u"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	perPage := req.PerPage
	if perPage <= 0 || perPage > 500 {
		perPage = 25
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf("SELECT %s FROM users u%s ORDER BY u.login_name LIMIT %s OFFSET %s",
		principalColumns, where, arg(perPage), arg((page-1)*perPage))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// UpdateSystemRoles sets the portal role flags for a user.
func (r *repository) UpdateSystemRoles(ctx context.Context, userID int64, roles SystemRoles) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET is_admin = $1, is_approver = $2, is_data_steward = $3, updated_at = NOW()
WHERE id = $4`, roles.IsAdmin, roles.IsApprover, roles.IsDataSteward, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
