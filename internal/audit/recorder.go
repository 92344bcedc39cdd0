// Package audit persists the append-only audit trail. Recording is
// best-effort: a failed insert is logged and never fails the operation that
// produced the event.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types emitted by the engine.
const (
	EventRequestCreated   = "RequestCreated"
	EventRequestApproved  = "RequestApproved"
	EventRequestDenied    = "RequestDenied"
	EventRequestCancelled = "RequestCancelled"
	EventGrantIssued      = "GrantIssued"
	EventGrantRevoked     = "GrantRevoked"
	EventGrantExtended    = "GrantExtended"
	EventGrantExpired     = "GrantExpired"
	EventRoleCreated      = "RoleCreated"
	EventRoleUpdated      = "RoleUpdated"
	EventRoleDeleted      = "RoleDeleted"
	EventRoleToggled      = "RoleToggled"
	EventRulesReplaced    = "EligibilityRulesReplaced"
	EventDbRolesReplaced  = "DbRoleMappingsReplaced"
	EventTeamCreated      = "TeamCreated"
	EventTeamUpdated      = "TeamUpdated"
	EventTeamDeleted      = "TeamDeleted"
	EventTeamMembersSet   = "TeamMembersSet"
	EventSystemRolesSet   = "SystemRolesSet"
)

// Event is a single immutable audit record.
type Event struct {
	ID        uuid.UUID
	EventType string
	ActorID   int64
	Entity    string
	EntityID  string
	Details   map[string]any
	At        time.Time
}

// Recorder writes events into audit_events.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{pool: pool, logger: logger}
}

// Record persists the event. Errors are returned for callers that care; the
// usual call site is the fire-and-forget Log.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.pool == nil {
		return errors.New("audit recorder not initialised")
	}
	if ev.EventType == "" || ev.Entity == "" || ev.EntityID == "" {
		return errors.New("audit event requires event_type/entity/entity_id")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return err
	}
	var actor *int64
	if ev.ActorID != 0 {
		actor = &ev.ActorID
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_events (id, event_type, actor_id, entity, entity_id, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.EventType, actor, ev.Entity, ev.EntityID, details, ev.At)
	return err
}

// Log records the event and only logs on failure. Loss of an audit row must
// not roll back the primary state change.
func (r *Recorder) Log(ctx context.Context, ev Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, ev); err != nil {
		r.logger.Error("record audit event",
			slog.String("event_type", ev.EventType),
			slog.String("entity", ev.Entity),
			slog.String("entity_id", ev.EntityID),
			slog.Any("error", err))
	}
}
