package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines role catalog persistence.
type Repository interface {
	GetRole(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context) ([]RoleWithStats, error)
	ListEnabledRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (int64, error)
	UpdateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, id int64) error
	SetRoleEnabled(ctx context.Context, id int64, enabled bool) error
	CountActiveGrants(ctx context.Context, roleID int64) (int, error)
	ListHolders(ctx context.Context, roleID int64) ([]Holder, error)

	ListRulesForRole(ctx context.Context, roleID int64) ([]EligibilityRule, error)
	ListRulesForRoles(ctx context.Context, roleIDs []int64) ([]EligibilityRule, error)
	ReplaceRules(ctx context.Context, roleID int64, rules []EligibilityRule) error

	ListAvailableDbRoles(ctx context.Context) ([]DbRole, error)
	GetDbRolesForRole(ctx context.Context, roleID int64) ([]DbRole, error)
	ReplaceDbRoles(ctx context.Context, roleID int64, dbRoleIDs []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const roleColumns = `r.id, r.role_name, COALESCE(r.description, ''), r.sensitivity_level,
	COALESCE(r.icon_name, ''), COALESCE(r.icon_color, ''), r.is_enabled, r.created_at, r.updated_at`

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Sensitivity,
		&role.IconName, &role.IconColor, &role.IsEnabled, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// GetRole loads one role by id.
func (r *repository) GetRole(ctx context.Context, id int64) (*Role, error) {
	return scanRole(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM roles r WHERE r.id = $1`, roleColumns), id))
}

// ListRoles returns all roles with rule and active grant counters.
func (r *repository) ListRoles(ctx context.Context) ([]RoleWithStats, error) {
	query := fmt.Sprintf(`SELECT %s,
	(SELECT COUNT(*) FROM eligibility_rules er WHERE er.role_id = r.id),
	(SELECT COUNT(*) FROM grants g WHERE g.role_id = r.id AND g.status = 'Active')
FROM roles r ORDER BY r.role_name`, roleColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []RoleWithStats
	for rows.Next() {
		var rs RoleWithStats
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Description, &rs.Sensitivity,
			&rs.IconName, &rs.IconColor, &rs.IsEnabled, &rs.CreatedAt, &rs.UpdatedAt,
			&rs.RuleCount, &rs.ActiveGrantCount); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// ListEnabledRoles returns the requestable candidates.
func (r *repository) ListEnabledRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM roles r WHERE r.is_enabled ORDER BY r.role_name`, roleColumns))
	if err != nil {
		return nil, fmt.Errorf("list enabled roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

// CreateRole inserts a role and returns its id.
func (r *repository) CreateRole(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (role_name, description, sensitivity_level, icon_name, icon_color, is_enabled)
VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING id`,
		role.Name, role.Description, role.Sensitivity, role.IconName, role.IconColor).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "uq_roles_role_name") {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

// UpdateRole updates the editable fields of a role.
func (r *repository) UpdateRole(ctx context.Context, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles
SET role_name = $1, description = $2, sensitivity_level = $3, icon_name = $4, icon_color = $5, updated_at = NOW()
WHERE id = $6`,
		role.Name, role.Description, role.Sensitivity, role.IconName, role.IconColor, role.ID)
	if err != nil {
		if isUniqueViolation(err, "uq_roles_role_name") {
			return ErrDuplicateName
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole removes a role and its rules/mappings. The service layer refuses
// deletion while active grants exist; FK cascades clean up rules and db role
// mappings.
func (r *repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRoleEnabled flips the enabled flag.
func (r *repository) SetRoleEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveGrants counts active grants conferring this role.
func (r *repository) CountActiveGrants(ctx context.Context, roleID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grants WHERE role_id = $1 AND status = 'Active'`, roleID).Scan(&n)
	return n, err
}

// ListHolders returns the principals currently holding the role.
func (r *repository) ListHolders(ctx context.Context, roleID int64) ([]Holder, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.display_name, u.login_name, g.id, g.granted_at, g.expires_at
FROM grants g JOIN users u ON u.id = g.holder_id
WHERE g.role_id = $1 AND g.status = 'Active'
ORDER BY u.display_name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var out []Holder
	for rows.Next() {
		var h Holder
		if err := rows.Scan(&h.UserID, &h.DisplayName, &h.LoginName, &h.GrantID, &h.GrantedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const ruleColumns = `id, role_id, scope_type, scope_value, max_duration_minutes,
	requires_justification, requires_approval, min_seniority_level, priority`

func scanRule(rows pgx.Rows) (EligibilityRule, error) {
	var rule EligibilityRule
	err := rows.Scan(&rule.ID, &rule.RoleID, &rule.ScopeType, &rule.ScopeValue, &rule.MaxDurationMinutes,
		&rule.RequiresJustification, &rule.RequiresApproval, &rule.MinSeniorityLevel, &rule.Priority)
	return rule, err
}

// ListRulesForRole returns the rule set of one role.
func (r *repository) ListRulesForRole(ctx context.Context, roleID int64) ([]EligibilityRule, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM eligibility_rules WHERE role_id = $1 ORDER BY priority, id`, ruleColumns), roleID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []EligibilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ListRulesForRoles returns the rules of several roles in one round trip.
func (r *repository) ListRulesForRoles(ctx context.Context, roleIDs []int64) ([]EligibilityRule, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM eligibility_rules WHERE role_id = ANY($1) ORDER BY role_id, priority, id`, ruleColumns), roleIDs)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []EligibilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ReplaceRules swaps the full rule set of a role atomically.
func (r *repository) ReplaceRules(ctx context.Context, roleID int64, rules []EligibilityRule) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM eligibility_rules WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for _, rule := range rules {
		if _, err := tx.Exec(ctx, `INSERT INTO eligibility_rules
(role_id, scope_type, scope_value, max_duration_minutes, requires_justification, requires_approval, min_seniority_level, priority)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			roleID, rule.ScopeType, rule.ScopeValue, rule.MaxDurationMinutes,
			rule.RequiresJustification, rule.RequiresApproval, rule.MinSeniorityLevel, rule.Priority); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListAvailableDbRoles returns every database role that can be mapped.
func (r *repository) ListAvailableDbRoles(ctx context.Context) ([]DbRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, database_name FROM db_roles ORDER BY database_name, name`)
	if err != nil {
		return nil, fmt.Errorf("list db roles: %w", err)
	}
	defer rows.Close()

	var out []DbRole
	for rows.Next() {
		var d DbRole
		if err := rows.Scan(&d.ID, &d.Name, &d.DatabaseName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDbRolesForRole returns the mapped database roles of one catalog role.
func (r *repository) GetDbRolesForRole(ctx context.Context, roleID int64) ([]DbRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.name, d.database_name
FROM role_db_roles m JOIN db_roles d ON d.id = m.db_role_id
WHERE m.role_id = $1 ORDER BY d.database_name, d.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("get db roles: %w", err)
	}
	defer rows.Close()

	var out []DbRole
	for rows.Next() {
		var d DbRole
		if err := rows.Scan(&d.ID, &d.Name, &d.DatabaseName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceDbRoles swaps the db role mappings of a role atomically.
func (r *repository) ReplaceDbRoles(ctx context.Context, roleID int64, dbRoleIDs []int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM role_db_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear db roles: %w", err)
	}
	for _, dbRoleID := range dbRoleIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO role_db_roles (role_id, db_role_id) VALUES ($1, $2)`, roleID, dbRoleID); err != nil {
			return fmt.Errorf("insert db role mapping: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
