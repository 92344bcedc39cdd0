package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jitaccess/jitaccess/internal/audit"
	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/grants"
)

// Resolver re-derives the effective policy for a (principal, role) pair.
type Resolver interface {
	ResolveForRole(ctx context.Context, p directory.Principal, roleID int64) (eligibility.Policy, error)
}

// Notifier is told about decisions so the requester can be informed out of
// band. Notification is best-effort.
type Notifier interface {
	DecisionMade(ctx context.Context, requestID int64, requesterLogin, status, reason string) error
}

// Service implements the request lifecycle. Every state transition happens in
// a single repeatable-read transaction with the request row locked, so two
// racing approvers cannot both win.
type Service struct {
	repo     Repository
	resolver Resolver
	audit    *audit.Recorder
	notifier Notifier
	logger   *slog.Logger
}

// NewService membuat service requests baru. The notifier may be nil.
func NewService(repo Repository, resolver Resolver, rec *audit.Recorder, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, audit: rec, notifier: notifier, logger: logger}
}

func (s *Service) notifyDecision(ctx context.Context, detail *Detail, reason string) {
	if s.notifier == nil || detail == nil {
		return
	}
	if err := s.notifier.DecisionMade(ctx, detail.ID, detail.RequesterLogin, string(detail.Status), reason); err != nil {
		s.logger.Warn("enqueue decision notification",
			slog.Int64("request_id", detail.ID),
			slog.Any("error", err))
	}
}

// Submit validates and persists a new access request. Eligibility is
// all-or-nothing: one ineligible role fails the whole submission. When no
// requested role requires approval the request auto-approves and its grants
// are issued in the same transaction, with the decision timestamp equal to
// the creation timestamp.
func (s *Service) Submit(ctx context.Context, requester directory.Principal, req SubmitRequest) (*Detail, error) {
	roleIDs := dedupe(req.RoleIDs)
	if len(roleIDs) == 0 {
		return nil, ErrNoRoles
	}
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	maxAllowed := 0
	needsJustification := false
	needsApproval := false
	for _, roleID := range roleIDs {
		policy, err := s.resolver.ResolveForRole(ctx, requester, roleID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, fmt.Errorf("%w: role %d", ErrUnknownRole, roleID)
			}
			return nil, err
		}
		if maxAllowed == 0 || policy.MaxDurationMinutes < maxAllowed {
			maxAllowed = policy.MaxDurationMinutes
		}
		needsJustification = needsJustification || policy.RequiresJustification
		needsApproval = needsApproval || policy.RequiresApproval
	}
	if req.DurationMinutes > maxAllowed {
		return nil, fmt.Errorf("%w: requested %dm, allowed %dm", ErrDurationExceedsMax, req.DurationMinutes, maxAllowed)
	}
	justification := strings.TrimSpace(req.Justification)
	ticket := strings.TrimSpace(req.TicketNumber)
	if needsJustification && justification == "" && ticket == "" {
		return nil, ErrJustificationRequired
	}

	now := time.Now().UTC()
	record := Request{
		RequesterID:     requester.ID,
		Status:          StatusPending,
		DurationMinutes: req.DurationMinutes,
		Justification:   justification,
		TicketNumber:    ticket,
		DeptSnapshot:    requester.Department,
		TitleSnapshot:   requester.JobTitle,
		CreatedAt:       now,
	}
	if !needsApproval {
		record.Status = StatusAutoApproved
		record.DecidedAt = &now
	}

	var issued []grants.IssueResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, &record, roleIDs)
		if err != nil {
			return err
		}
		record.ID = id
		if needsApproval {
			return nil
		}
		for _, roleID := range roleIDs {
			res, err := grants.IssueTx(ctx, tx.Grants(), grants.IssueParams{
				RequestID:       id,
				RoleID:          roleID,
				HolderID:        requester.ID,
				DurationMinutes: req.DurationMinutes,
				Now:             now,
			})
			if err != nil {
				return err
			}
			issued = append(issued, *res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventRequestCreated,
		ActorID:   requester.ID,
		Entity:    "request",
		EntityID:  strconv.FormatInt(record.ID, 10),
		At:        now,
		Details: map[string]any{
			"role_ids":         roleIDs,
			"duration_minutes": req.DurationMinutes,
			"status":           record.Status,
		},
	})
	s.logIssued(ctx, requester.ID, record.ID, issued)

	return s.repo.GetDetail(ctx, record.ID)
}

// Approve grants every role on a pending request for the requested duration.
// The approver must not be the requester.
func (s *Service) Approve(ctx context.Context, requestID int64, approver directory.Principal, reason string) (*Detail, error) {
	reason = strings.TrimSpace(reason)
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	var issued []grants.IssueResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanDecide() {
			return fmt.Errorf("%w: status %s", ErrInvalidState, req.Status)
		}
		if req.RequesterID == approver.ID {
			return ErrSelfApproval
		}
		roleIDs, err := tx.RoleIDs(ctx, requestID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, roleID := range roleIDs {
			res, err := grants.IssueTx(ctx, tx.Grants(), grants.IssueParams{
				RequestID:       requestID,
				RoleID:          roleID,
				HolderID:        req.RequesterID,
				DurationMinutes: req.DurationMinutes,
				Now:             now,
			})
			if err != nil {
				return err
			}
			issued = append(issued, *res)
		}
		return tx.SetDecision(ctx, requestID, StatusApproved, &approver.ID, reasonPtr)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.GetDetail(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventRequestApproved,
		ActorID:   approver.ID,
		Entity:    "request",
		EntityID:  strconv.FormatInt(requestID, 10),
		Details:   map[string]any{"requester_id": detail.RequesterID, "reason": reason},
	})
	s.logIssued(ctx, approver.ID, requestID, issued)
	s.notifyDecision(ctx, detail, reason)
	return detail, nil
}

// Deny rejects a pending request. A reason is mandatory and the approver must
// not be the requester.
func (s *Service) Deny(ctx context.Context, requestID int64, approver directory.Principal, reason string) (*Detail, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanDecide() {
			return fmt.Errorf("%w: status %s", ErrInvalidState, req.Status)
		}
		if req.RequesterID == approver.ID {
			return ErrSelfApproval
		}
		return tx.SetDecision(ctx, requestID, StatusDenied, &approver.ID, &reason)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventRequestDenied,
		ActorID:   approver.ID,
		Entity:    "request",
		EntityID:  strconv.FormatInt(requestID, 10),
		Details:   map[string]any{"reason": reason},
	})
	detail, err := s.repo.GetDetail(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.notifyDecision(ctx, detail, reason)
	return detail, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, requestID, actorID int64) (*Detail, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.RequesterID != actorID {
			return ErrNotRequestOwner
		}
		if !req.Status.CanCancel() {
			return fmt.Errorf("%w: status %s", ErrInvalidState, req.Status)
		}
		return tx.SetDecision(ctx, requestID, StatusCancelled, &actorID, nil)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventRequestCancelled,
		ActorID:   actorID,
		Entity:    "request",
		EntityID:  strconv.FormatInt(requestID, 10),
	})
	return s.repo.GetDetail(ctx, requestID)
}

// ListForUser returns the caller's own requests, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Detail, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListPending returns the approver queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Detail, error) {
	return s.repo.ListPending(ctx)
}

// GetDetail returns one request. Requesters see their own; approvers and
// admins see everything.
func (s *Service) GetDetail(ctx context.Context, id int64, caller directory.Principal) (*Detail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.RequesterID != caller.ID && !caller.CanApprove() {
		return nil, ErrNotFound
	}
	return detail, nil
}

func (s *Service) logIssued(ctx context.Context, actorID, requestID int64, issued []grants.IssueResult) {
	for _, res := range issued {
		details := map[string]any{
			"request_id": requestID,
			"role_id":    res.Grant.RoleID,
			"holder_id":  res.Grant.HolderID,
			"expires_at": res.Grant.ExpiresAt,
		}
		if res.Superseded != nil {
			details["superseded_grant_id"] = res.Superseded.ID
		}
		s.audit.Log(ctx, audit.Event{
			EventType: audit.EventGrantIssued,
			ActorID:   actorID,
			Entity:    "grant",
			EntityID:  strconv.FormatInt(res.Grant.ID, 10),
			Details:   details,
		})
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
