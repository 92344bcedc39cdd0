package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitaccess/jitaccess/internal/grants"
	"github.com/jitaccess/jitaccess/internal/platform/db"
)

// Repository defines persistence for access requests.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Request, error)
	GetDetail(ctx context.Context, id int64) (*Detail, error)
	ListForUser(ctx context.Context, userID int64) ([]Detail, error)
	ListPending(ctx context.Context) ([]Detail, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository groups the request writes of one transaction. Grants exposes
// grant writes bound to the same transaction, so approval and issuance commit
// or roll back together.
type TxRepository interface {
	Insert(ctx context.Context, r *Request, roleIDs []int64) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (*Request, error)
	RoleIDs(ctx context.Context, id int64) ([]int64, error)
	SetDecision(ctx context.Context, id int64, status Status, deciderID *int64, reason *string) error
	Grants() grants.TxRepository
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed request repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const requestColumns = `r.id, r.requester_id, r.status, r.duration_minutes,
	COALESCE(r.justification, ''), COALESCE(r.ticket_number, ''),
	COALESCE(r.requester_department, ''), COALESCE(r.requester_title, ''),
	r.created_at, r.decided_by, r.decided_at, r.decision_reason`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.Status, &r.DurationMinutes,
		&r.Justification, &r.TicketNumber,
		&r.DeptSnapshot, &r.TitleSnapshot,
		&r.CreatedAt, &r.DecidedBy, &r.DecidedAt, &r.DecisionReason,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests r WHERE r.id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("requests: get by id: %w", err)
	}
	return req, nil
}

const detailColumns = requestColumns + `,
	u.display_name, u.login_name, d.display_name`

const detailJoins = ` FROM requests r
	JOIN users u ON u.id = r.requester_id
	LEFT JOIN users d ON d.id = r.decided_by`

func (r *repository) queryDetails(ctx context.Context, where string, args ...any) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+where, args...)
	if err != nil {
		return nil, fmt.Errorf("requests: query details: %w", err)
	}
	defer rows.Close()

	out := make([]Detail, 0)
	for rows.Next() {
		var d Detail
		err := rows.Scan(
			&d.ID, &d.RequesterID, &d.Status, &d.DurationMinutes,
			&d.Justification, &d.TicketNumber,
			&d.DeptSnapshot, &d.TitleSnapshot,
			&d.CreatedAt, &d.DecidedBy, &d.DecidedAt, &d.DecisionReason,
			&d.RequesterName, &d.RequesterLogin, &d.DeciderName,
		)
		if err != nil {
			return nil, fmt.Errorf("requests: scan detail: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachRoles(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) attachRoles(ctx context.Context, details []Detail) error {
	if len(details) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(details))
	index := make(map[int64]int, len(details))
	for i, d := range details {
		ids = append(ids, d.ID)
		index[d.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rr.request_id, rr.role_id, ro.role_name, ro.sensitivity_level
		FROM request_roles rr
		JOIN roles ro ON ro.id = rr.role_id
		WHERE rr.request_id = ANY($1)
		ORDER BY ro.role_name`, ids)
	if err != nil {
		return fmt.Errorf("requests: load roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reqID int64
		var line RoleLine
		if err := rows.Scan(&reqID, &line.RoleID, &line.RoleName, &line.Sensitivity); err != nil {
			return fmt.Errorf("requests: scan role line: %w", err)
		}
		i := index[reqID]
		details[i].Roles = append(details[i].Roles, line)
	}
	return rows.Err()
}

func (r *repository) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	details, err := r.queryDetails(ctx, ` WHERE r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrNotFound
	}
	return &details[0], nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64) ([]Detail, error) {
	return r.queryDetails(ctx, ` WHERE r.requester_id = $1 ORDER BY r.created_at DESC`, userID)
}

func (r *repository) ListPending(ctx context.Context) ([]Detail, error) {
	return r.queryDetails(ctx, ` WHERE r.status = 'Pending' ORDER BY r.created_at ASC`)
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, grants: grants.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx     pgx.Tx
	grants grants.TxRepository
}

func (r *txRepository) Grants() grants.TxRepository { return r.grants }

func (r *txRepository) Insert(ctx context.Context, req *Request, roleIDs []int64) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO requests (requester_id, status, duration_minutes, justification, ticket_number,
			requester_department, requester_title, created_at, decided_by, decided_at, decision_reason)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
		RETURNING id`,
		req.RequesterID, req.Status, req.DurationMinutes, req.Justification, req.TicketNumber,
		req.DeptSnapshot, req.TitleSnapshot, req.CreatedAt, req.DecidedBy, req.DecidedAt, req.DecisionReason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("requests: insert: %w", err)
	}
	for _, roleID := range roleIDs {
		if _, err := r.tx.Exec(ctx, `INSERT INTO request_roles (request_id, role_id) VALUES ($1, $2)`, id, roleID); err != nil {
			return 0, fmt.Errorf("requests: insert role line: %w", err)
		}
	}
	return id, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Request, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests r WHERE r.id = $1 FOR UPDATE`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("requests: get for update: %w", err)
	}
	return req, nil
}

func (r *txRepository) RoleIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT role_id FROM request_roles WHERE request_id = $1 ORDER BY role_id`, id)
	if err != nil {
		return nil, fmt.Errorf("requests: role ids: %w", err)
	}
	defer rows.Close()

	out := make([]int64, 0, 4)
	for rows.Next() {
		var roleID int64
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("requests: scan role id: %w", err)
		}
		out = append(out, roleID)
	}
	return out, rows.Err()
}

func (r *txRepository) SetDecision(ctx context.Context, id int64, status Status, deciderID *int64, reason *string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE requests SET status = $2, decided_by = $3, decided_at = NOW(), decision_reason = $4
		WHERE id = $1 AND status = 'Pending'`,
		id, status, deciderID, reason)
	if err != nil {
		return fmt.Errorf("requests: set decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}
