package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
)

// UserRepository reads platform profiles and writes audit trail entries.
// Account credentials and sessions live in the external auth service.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, role, organization_id, organization_role, active, created_at, updated_at, last_seen`

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// GetMembership returns the user's current organization, or nil when the user
// is an individual account.
func (r *UserRepository) GetMembership(ctx context.Context, userID string) (*string, error) {
	const query = `SELECT organization_id FROM users WHERE id = $1 LIMIT 1`
	var orgID *string
	if err := r.db.GetContext(ctx, &orgID, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get user membership: %w", err)
	}
	return orgID, nil
}

// ManagerIDs returns the identifiers of the active organization managers of
// the given organization.
func (r *UserRepository) ManagerIDs(ctx context.Context, orgID string) ([]string, error) {
	const query = `SELECT id FROM users WHERE organization_id = $1 AND role = $2 AND active = true ORDER BY created_at ASC`
	ids := make([]string, 0, 2)
	if err := r.db.SelectContext(ctx, &ids, query, orgID, models.RoleOrgManager); err != nil {
		return nil, fmt.Errorf("list organization managers: %w", err)
	}
	return ids, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
