package dto

import "github.com/lynn75965/biblelessonspark-sub002/internal/models"

// CounterpartyDecision is the agree/decline choice of the non-initiating
// party while the request awaits mutual agreement.
type CounterpartyDecision string

const (
	DecisionAgree   CounterpartyDecision = "agree"
	DecisionDecline CounterpartyDecision = "decline"
)

// AdminDecision is the platform admin's final disposition.
type AdminDecision string

const (
	DecisionApprove AdminDecision = "approve"
	DecisionDeny    AdminDecision = "deny"
)

// CreateTransferRequest payload for opening a transfer request. Either an org
// manager or the teacher themselves may initiate.
type CreateTransferRequest struct {
	SubjectUserID      string              `json:"subject_user_id" validate:"required"`
	FromOrganizationID string              `json:"from_organization_id" validate:"required"`
	ToOrganizationID   *string             `json:"to_organization_id,omitempty"`
	TransferType       models.TransferType `json:"transfer_type" validate:"required,oneof=to_another_org leave_org"`
	// Length is checked in the service so the count is in characters, not
	// bytes, and the dedicated error kind is returned.
	Reason string `json:"reason" validate:"required"`
}

// RespondTransferRequest payload for the counterparty agree/decline step.
type RespondTransferRequest struct {
	Decision     CounterpartyDecision `json:"decision" validate:"required,oneof=agree decline"`
	ResponseNote string               `json:"response_note"`
}

// ProcessTransferRequest payload for the admin approve/deny step.
type ProcessTransferRequest struct {
	Decision   AdminDecision `json:"decision" validate:"required,oneof=approve deny"`
	AdminNotes string        `json:"admin_notes"`
}

// TransferQuery mirrors supported listing filters.
type TransferQuery struct {
	SubjectUserID  string
	OrganizationID string
	Statuses       []models.TransferStatus
	Page           int
	PageSize       int
}
