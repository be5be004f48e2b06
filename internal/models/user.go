package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleOrgManager UserRole = "ORG_MANAGER"
	RoleTeacher    UserRole = "TEACHER"
	RoleIndividual UserRole = "INDIVIDUAL"
)

// OrgRoleMember is the organization-level role assigned to a transferred
// member at the destination organization.
const OrgRoleMember = "member"

// User represents a platform profile stored in the users table. Accounts and
// sessions are owned by the platform auth service; this service only reads
// profile and membership columns and mutates membership on approved
// transfers.
type User struct {
	ID               string     `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	FullName         string     `db:"full_name" json:"full_name"`
	Role             UserRole   `db:"role" json:"role"`
	OrganizationID   *string    `db:"organization_id" json:"organization_id,omitempty"`
	OrganizationRole *string    `db:"organization_role" json:"organization_role,omitempty"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	LastSeen         *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
