package teams

import (
	"context"
	"strconv"
	"strings"

	"github.com/jitaccess/jitaccess/internal/audit"
)

// Invalidator drops cached eligibility views after membership changes.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// Service provides business logic for team administration.
type Service struct {
	repo        Repository
	audit       *audit.Recorder
	invalidator Invalidator
}

// NewService membuat service teams baru.
func NewService(repo Repository, recorder *audit.Recorder, invalidator Invalidator) *Service {
	return &Service{repo: repo, audit: recorder, invalidator: invalidator}
}

// List returns all teams with member counts.
func (s *Service) List(ctx context.Context) ([]WithMemberCount, error) {
	return s.repo.List(ctx)
}

// Get returns one team.
func (s *Service) Get(ctx context.Context, id int64) (*Team, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a new team.
func (s *Service) Create(ctx context.Context, req CreateTeamRequest, actorID int64) (*Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	id, err := s.repo.Create(ctx, Team{Name: name, Description: strings.TrimSpace(req.Description)})
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.EventTeamCreated, actorID, id, map[string]any{"team_name": name})
	return s.repo.GetByID(ctx, id)
}

// Update renames or redescribes a team.
func (s *Service) Update(ctx context.Context, id int64, req UpdateTeamRequest, actorID int64) (*Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	err := s.repo.Update(ctx, Team{ID: id, Name: name, Description: strings.TrimSpace(req.Description)})
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.EventTeamUpdated, actorID, id, map[string]any{"team_name": name})
	return s.repo.GetByID(ctx, id)
}

// Delete removes a team and its memberships. Team-scoped eligibility rules
// pointing at the team simply stop matching anyone.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventTeamDeleted, actorID, id, nil)
	s.invalidate(ctx)
	return nil
}

// Members returns the team's member listing.
func (s *Service) Members(ctx context.Context, teamID int64) ([]Member, error) {
	if _, err := s.repo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

// SetMembers replaces the membership of a team. Duplicate ids collapse to one
// membership row.
func (s *Service) SetMembers(ctx context.Context, teamID int64, req SetMembersRequest, actorID int64) ([]Member, error) {
	seen := make(map[int64]struct{}, len(req.UserIDs))
	unique := make([]int64, 0, len(req.UserIDs))
	for _, uid := range req.UserIDs {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		unique = append(unique, uid)
	}

	if err := s.repo.ReplaceMembers(ctx, teamID, unique); err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.EventTeamMembersSet, actorID, teamID, map[string]any{"member_count": len(unique)})
	s.invalidate(ctx)
	return s.repo.ListMembers(ctx, teamID)
}

func (s *Service) logEvent(ctx context.Context, eventType string, actorID, teamID int64, details map[string]any) {
	s.audit.Log(ctx, audit.Event{
		EventType: eventType,
		ActorID:   actorID,
		Entity:    "team",
		EntityID:  strconv.FormatInt(teamID, 10),
		Details:   details,
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}
