package models

import "time"

// OrganizationStatus captures the directory lifecycle for an organization.
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusPending   OrganizationStatus = "pending"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
)

// Organization is a ministry organization in the platform directory.
type Organization struct {
	ID           string             `db:"id" json:"id"`
	Name         string             `db:"name" json:"name"`
	Status       OrganizationStatus `db:"status" json:"status"`
	Denomination *string            `db:"denomination" json:"denomination,omitempty"`
	Email        *string            `db:"email" json:"email,omitempty"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}
