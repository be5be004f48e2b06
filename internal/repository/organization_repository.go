package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
)

// OrganizationRepository reads the organization directory. Organizations are
// created and managed elsewhere in the platform; this service only consults
// directory state when validating transfers.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID returns an organization by identifier.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	const query = `SELECT id, name, status, denomination, email, created_by, created_at, updated_at FROM organizations WHERE id = $1 LIMIT 1`
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// IsActive reports whether the organization exists and is in the active
// directory state. Never cached; transfers revalidate at create time.
func (r *OrganizationRepository) IsActive(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM organizations WHERE id = $1 AND status = $2 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, id, models.OrganizationStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check organization active: %w", err)
	}
	return true, nil
}
