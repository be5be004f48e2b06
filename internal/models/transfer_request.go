package models

import "time"

// TransferType enumerates supported membership transfer categories.
type TransferType string

const (
	TransferTypeToAnotherOrg TransferType = "to_another_org"
	TransferTypeLeaveOrg     TransferType = "leave_org"
)

// TransferInitiator identifies which party created the request.
type TransferInitiator string

const (
	InitiatedByTeacher    TransferInitiator = "teacher"
	InitiatedByOrgManager TransferInitiator = "org_manager"
)

// TransferStatus captures workflow states for the mutual-initiation flow.
//
// Org-manager-initiated requests start at pending_teacher; teacher-initiated
// requests start at pending_org_manager. Once the counterparty agrees the
// request moves to pending_admin for final disposition.
type TransferStatus string

const (
	TransferStatusPendingTeacher       TransferStatus = "pending_teacher"
	TransferStatusPendingOrgManager    TransferStatus = "pending_org_manager"
	TransferStatusPendingAdmin         TransferStatus = "pending_admin"
	TransferStatusApproved             TransferStatus = "approved"
	TransferStatusDenied               TransferStatus = "denied"
	TransferStatusDeclinedByTeacher    TransferStatus = "declined_by_teacher"
	TransferStatusDeclinedByOrgManager TransferStatus = "declined_by_org_manager"
	TransferStatusCancelled            TransferStatus = "cancelled"
)

// Validation limits for free-text fields on transfer requests.
const (
	TransferReasonMinLength       = 10
	TransferReasonMaxLength       = 500
	TransferResponseNoteMaxLength = 500
	TransferAdminNotesMaxLength   = 500
)

// IsTerminal reports whether no further transition is possible.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusApproved,
		TransferStatusDenied,
		TransferStatusDeclinedByTeacher,
		TransferStatusDeclinedByOrgManager,
		TransferStatusCancelled:
		return true
	}
	return false
}

// IsPendingCounterparty reports whether the request is waiting for the
// non-initiating party to agree or decline.
func (s TransferStatus) IsPendingCounterparty() bool {
	return s == TransferStatusPendingTeacher || s == TransferStatusPendingOrgManager
}

// NonTerminalTransferStatuses lists every status an active request may hold.
// The uniqueness constraint on subject_user_id is scoped to these.
var NonTerminalTransferStatuses = []TransferStatus{
	TransferStatusPendingTeacher,
	TransferStatusPendingOrgManager,
	TransferStatusPendingAdmin,
}

// InitialTransferStatus returns the entry state for a new request.
func InitialTransferStatus(initiatedBy TransferInitiator) TransferStatus {
	if initiatedBy == InitiatedByOrgManager {
		return TransferStatusPendingTeacher
	}
	return TransferStatusPendingOrgManager
}

// DeclinedStatusFor returns the terminal declined state produced when the
// counterparty in the given pending state declines.
func DeclinedStatusFor(pending TransferStatus) TransferStatus {
	if pending == TransferStatusPendingTeacher {
		return TransferStatusDeclinedByTeacher
	}
	return TransferStatusDeclinedByOrgManager
}

// TransferRequest is the audit record for moving a teacher between
// organizations (or out to individual status). Rows are never deleted;
// terminal rows are immutable.
type TransferRequest struct {
	ID                 string            `db:"id" json:"id"`
	SubjectUserID      string            `db:"subject_user_id" json:"subject_user_id"`
	FromOrganizationID string            `db:"from_organization_id" json:"from_organization_id"`
	ToOrganizationID   *string           `db:"to_organization_id" json:"to_organization_id,omitempty"`
	TransferType       TransferType      `db:"transfer_type" json:"transfer_type"`
	Status             TransferStatus    `db:"status" json:"status"`
	InitiatedBy        TransferInitiator `db:"initiated_by" json:"initiated_by"`
	Reason             string            `db:"reason" json:"reason"`
	ResponseNote       *string           `db:"response_note" json:"response_note,omitempty"`
	RespondedAt        *time.Time        `db:"responded_at" json:"responded_at,omitempty"`
	AdminNotes         *string           `db:"admin_notes" json:"admin_notes,omitempty"`
	RequestedByUserID  string            `db:"requested_by_user_id" json:"requested_by_user_id"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time        `db:"processed_at" json:"processed_at,omitempty"`
	ProcessedByUserID  *string           `db:"processed_by_user_id" json:"processed_by_user_id,omitempty"`
}

// TransferFilter constrains listing queries.
type TransferFilter struct {
	SubjectUserID  string
	OrganizationID string
	Statuses       []TransferStatus
	RequestedBy    string
	Limit          int
	Offset         int
}
