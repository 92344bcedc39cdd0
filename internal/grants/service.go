package grants

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jitaccess/jitaccess/internal/audit"
	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/shared"
)

// IssueParams describes a grant to issue inside a caller-owned transaction.
// DurationMinutes of zero produces a grant with no automatic expiry.
type IssueParams struct {
	RequestID       int64
	RoleID          int64
	HolderID        int64
	DurationMinutes int
	Now             time.Time
}

// IssueResult reports the grant that was created and, when the holder already
// held the role, the grant it replaced.
type IssueResult struct {
	Grant      Grant
	Superseded *Grant
}

// IssueTx issues a grant atomically with whatever else the caller is writing
// in tx. An existing active grant for the same (holder, role) pair is revoked
// with reason "superseded" before the new grant is inserted, so the partial
// unique index on active grants never trips.
func IssueTx(ctx context.Context, tx TxRepository, p IssueParams) (*IssueResult, error) {
	now := p.Now.UTC()

	existing, err := tx.ActiveForUpdate(ctx, p.HolderID, p.RoleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := tx.MarkRevoked(ctx, existing.ID, p.HolderID, RevokeReasonSuperseded, now); err != nil {
			return nil, err
		}
	}

	g := Grant{
		RequestID: p.RequestID,
		RoleID:    p.RoleID,
		HolderID:  p.HolderID,
		Status:    StatusActive,
		GrantedAt: now,
	}
	if p.DurationMinutes > 0 {
		exp := now.Add(time.Duration(p.DurationMinutes) * time.Minute)
		g.ExpiresAt = &exp
	}
	id, err := tx.Insert(ctx, &g)
	if err != nil {
		return nil, err
	}
	g.ID = id
	return &IssueResult{Grant: g, Superseded: existing}, nil
}

// PolicyResolver re-derives the effective policy for a (principal, role) pair.
type PolicyResolver interface {
	ResolveForRole(ctx context.Context, p directory.Principal, roleID int64) (eligibility.Policy, error)
}

// Service coordinates grant reads, administrative revocation and extension,
// and the periodic expiry sweep.
type Service struct {
	repo      Repository
	users     directory.Repository
	resolver  PolicyResolver
	audit     *audit.Recorder
	lockstore *redis.Client
	logger    *slog.Logger
}

// NewService membuat service grants baru.
func NewService(repo Repository, users directory.Repository, resolver PolicyResolver, rec *audit.Recorder, lockstore *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, users: users, resolver: resolver, audit: rec, lockstore: lockstore, logger: logger}
}

// ListActiveForUser returns the holder's active grants with role details.
func (s *Service) ListActiveForUser(ctx context.Context, userID int64) ([]WithRole, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}

// ListAdmin returns the paginated administrative grant listing.
func (s *Service) ListAdmin(ctx context.Context, req ListRequest) ([]AdminRow, shared.Pagination, error) {
	return s.repo.ListAdmin(ctx, req)
}

// Revoke terminates an active grant. Revoking anything but an active grant
// returns ErrNotActive.
func (s *Service) Revoke(ctx context.Context, grantID, actorID int64, reason string) (*Grant, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "revoked by administrator"
	}
	now := time.Now().UTC()

	var revoked *Grant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetForUpdate(ctx, grantID)
		if err != nil {
			return err
		}
		if g.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrNotActive, g.Status)
		}
		if err := tx.MarkRevoked(ctx, g.ID, actorID, reason, now); err != nil {
			return err
		}
		g.Status = StatusRevoked
		g.RevokedBy = &actorID
		g.RevokedAt = &now
		g.RevokeReason = &reason
		revoked = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventGrantRevoked,
		ActorID:   actorID,
		Entity:    "grant",
		EntityID:  strconv.FormatInt(revoked.ID, 10),
		Details: map[string]any{
			"role_id":   revoked.RoleID,
			"holder_id": revoked.HolderID,
			"reason":    reason,
		},
	})
	return revoked, nil
}

// Extend replaces the expiry of an active grant with now plus the requested
// duration. The duration is re-checked against the holder's current effective
// policy, so an extension can never outlive what the rules allow today.
func (s *Service) Extend(ctx context.Context, grantID, actorID int64, durationMinutes int) (*Grant, error) {
	if durationMinutes <= 0 {
		return nil, ErrIndefiniteExtension
	}

	current, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, current.Status)
	}

	holder, err := s.users.GetByID(ctx, current.HolderID)
	if err != nil {
		return nil, fmt.Errorf("load grant holder: %w", err)
	}
	policy, err := s.resolver.ResolveForRole(ctx, *holder, current.RoleID)
	if err != nil {
		return nil, err
	}
	if durationMinutes > policy.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: requested %dm, policy allows %dm", ErrDurationExceedsMax, durationMinutes, policy.MaxDurationMinutes)
	}

	now := time.Now().UTC()
	exp := now.Add(time.Duration(durationMinutes) * time.Minute)

	var extended *Grant
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetForUpdate(ctx, grantID)
		if err != nil {
			return err
		}
		if g.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrNotActive, g.Status)
		}
		if err := tx.SetExpiry(ctx, g.ID, &exp); err != nil {
			return err
		}
		g.ExpiresAt = &exp
		extended = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventGrantExtended,
		ActorID:   actorID,
		Entity:    "grant",
		EntityID:  strconv.FormatInt(extended.ID, 10),
		Details: map[string]any{
			"role_id":          extended.RoleID,
			"holder_id":        extended.HolderID,
			"duration_minutes": durationMinutes,
			"new_expires_at":   exp,
		},
	})
	return extended, nil
}

// ExpireSweep expires overdue grants and records an audit event per grant.
// Only one worker runs the sweep at a time; losing the lock race returns
// zero without error.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	owner := uuid.NewString()
	ok, err := shared.AcquireLock(ctx, s.lockstore, shared.SweepLockKey, owner, 2*time.Minute)
	if err != nil {
		return 0, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if err := shared.ReleaseLock(context.WithoutCancel(ctx), s.lockstore, shared.SweepLockKey, owner); err != nil {
			s.logger.Warn("release sweep lock", slog.Any("error", err))
		}
	}()

	expired, err := s.repo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, g := range expired {
		s.audit.Log(ctx, audit.Event{
			EventType: audit.EventGrantExpired,
			ActorID:   0,
			Entity:    "grant",
			EntityID:  strconv.FormatInt(g.ID, 10),
			Details: map[string]any{
				"role_id":    g.RoleID,
				"holder_id":  g.HolderID,
				"expires_at": g.ExpiresAt,
				"sweep_run":  owner,
			},
		})
	}
	if len(expired) > 0 {
		s.logger.Info("grant sweep expired grants", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}
