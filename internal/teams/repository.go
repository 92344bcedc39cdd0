package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitaccess/jitaccess/internal/platform/db"
)

// Repository defines persistence for teams and their membership.
type Repository interface {
	List(ctx context.Context) ([]WithMemberCount, error)
	GetByID(ctx context.Context, id int64) (*Team, error)
	Create(ctx context.Context, t Team) (int64, error)
	Update(ctx context.Context, t Team) error
	Delete(ctx context.Context, id int64) error
	ListMembers(ctx context.Context, teamID int64) ([]Member, error)
	ReplaceMembers(ctx context.Context, teamID int64, userIDs []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed team repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]WithMemberCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.team_name, COALESCE(t.description, ''), t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id)
		FROM teams t
		ORDER BY t.team_name`)
	if err != nil {
		return nil, fmt.Errorf("teams: list: %w", err)
	}
	defer rows.Close()

	out := make([]WithMemberCount, 0)
	for rows.Next() {
		var t WithMemberCount
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt, &t.MemberCount); err != nil {
			return nil, fmt.Errorf("teams: scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Team, error) {
	var t Team
	err := r.pool.QueryRow(ctx, `
		SELECT id, team_name, COALESCE(description, ''), created_at, updated_at
		FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("teams: get by id: %w", err)
	}
	return &t, nil
}

func (r *repository) Create(ctx context.Context, t Team) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO teams (team_name, description) VALUES ($1, NULLIF($2, ''))
		RETURNING id`, t.Name, t.Description).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateName
		}
		return 0, fmt.Errorf("teams: create: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, t Team) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE teams SET team_name = $2, description = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`, t.ID, t.Name, t.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("teams: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, id); err != nil {
			return fmt.Errorf("teams: delete members: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("teams: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repository) ListMembers(ctx context.Context, teamID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.display_name, u.login_name,
			COALESCE(u.department, ''), COALESCE(u.job_title, '')
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY u.display_name`, teamID)
	if err != nil {
		return nil, fmt.Errorf("teams: list members: %w", err)
	}
	defer rows.Close()

	out := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.LoginName, &m.Department, &m.JobTitle); err != nil {
			return nil, fmt.Errorf("teams: scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceMembers swaps the full membership atomically.
func (r *repository) ReplaceMembers(ctx context.Context, teamID int64, userIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1)`, teamID).Scan(&exists); err != nil {
			return fmt.Errorf("teams: check team: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
			return fmt.Errorf("teams: clear members: %w", err)
		}
		for _, uid := range userIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)`, teamID, uid); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: user %d", ErrUnknownUser, uid)
				}
				return fmt.Errorf("teams: insert member: %w", err)
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
