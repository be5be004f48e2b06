package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access-token payload issued by the platform auth
// service. This service validates and consumes the claims but never issues
// tokens itself.
type JWTClaims struct {
	UserID         string   `json:"user_id"`
	Role           UserRole `json:"role"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	OrganizationID string   `json:"organization_id,omitempty"`
	jwt.RegisteredClaims
}
