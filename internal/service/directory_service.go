package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
)

type organizationStore interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetMembership(ctx context.Context, userID string) (*string, error)
	ManagerIDs(ctx context.Context, orgID string) ([]string, error)
}

// DirectoryService adapts the organization and user repositories into the
// directory and capability-check collaborators consumed by the transfer
// engine. Keeping these behind interfaces lets the state machine be tested in
// isolation from ambient session state.
type DirectoryService struct {
	orgs  organizationStore
	users userStore
}

// NewDirectoryService constructs the service.
func NewDirectoryService(orgs organizationStore, users userStore) *DirectoryService {
	return &DirectoryService{orgs: orgs, users: users}
}

// IsActiveOrganization reports whether the organization is in the active
// directory state.
func (s *DirectoryService) IsActiveOrganization(ctx context.Context, orgID string) (bool, error) {
	return s.orgs.IsActive(ctx, orgID)
}

// GetMembership returns the user's current organization, nil for individual
// accounts.
func (s *DirectoryService) GetMembership(ctx context.Context, userID string) (*string, error) {
	return s.users.GetMembership(ctx, userID)
}

// OrgManagerIDs returns the active managers of an organization, used to fan
// notifications out to the counterparty side of a transfer.
func (s *DirectoryService) OrgManagerIDs(ctx context.Context, orgID string) ([]string, error) {
	return s.users.ManagerIDs(ctx, orgID)
}

// IsOrgManagerOf reports whether the user actively manages the organization.
func (s *DirectoryService) IsOrgManagerOf(ctx context.Context, userID, orgID string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if !user.Active || user.Role != models.RoleOrgManager {
		return false, nil
	}
	return user.OrganizationID != nil && *user.OrganizationID == orgID, nil
}

// IsPlatformAdmin reports whether the user holds platform-admin authority.
func (s *DirectoryService) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return user.Active && user.Role == models.RoleAdmin, nil
}
