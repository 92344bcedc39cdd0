package directory

import (
	"context"
	"strconv"

	"github.com/jitaccess/jitaccess/internal/audit"
	"github.com/jitaccess/jitaccess/internal/shared"
)

// Service mengelola pembacaan direktori pengguna dan peran sistem.
type Service struct {
	repo  Repository
	audit *audit.Recorder
}

// NewService creates a new service.
func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, audit: recorder}
}

// Get returns one principal by id.
func (s *Service) Get(ctx context.Context, id int64) (*Principal, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the paginated admin user listing.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Principal, shared.Pagination, error) {
	users, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(req.Page, req.PerPage, int64(total)), nil
}

// SetSystemRoles replaces the portal-level role flags of a user.
func (s *Service) SetSystemRoles(ctx context.Context, userID int64, roles SystemRoles, actorID int64) (*Principal, error) {
	if err := s.repo.UpdateSystemRoles(ctx, userID, roles); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		EventType: audit.EventSystemRolesSet,
		ActorID:   actorID,
		Entity:    "user",
		EntityID:  strconv.FormatInt(userID, 10),
		Details: map[string]any{
			"is_admin":        roles.IsAdmin,
			"is_approver":     roles.IsApprover,
			"is_data_steward": roles.IsDataSteward,
		},
	})
	return s.repo.GetByID(ctx, userID)
}
