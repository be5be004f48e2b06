package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
)

// Sentinel errors surfaced by the transfer repository. The service layer maps
// these onto the API error taxonomy.
var (
	// ErrDuplicateActive is returned when the partial unique index on
	// subject_user_id over non-terminal statuses rejects an insert.
	ErrDuplicateActive = errors.New("active transfer request already exists for subject")

	// ErrMembershipUpdate is returned when the membership mutation inside the
	// approval transaction fails. The transaction is rolled back, so the
	// request provably remains pending_admin.
	ErrMembershipUpdate = errors.New("membership update failed")
)

const pqUniqueViolation = "23505"

// ListLimits bounds the page size applied to list queries. Zero values fall
// back to the built-in defaults.
type ListLimits struct {
	Default int
	Max     int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TransferRepository persists transfer request workflow data.
type TransferRepository struct {
	db     *sqlx.DB
	limits ListLimits
}

// NewTransferRepository constructs the repository.
func NewTransferRepository(db *sqlx.DB, limits ListLimits) *TransferRepository {
	if limits.Default <= 0 {
		limits.Default = defaultListLimit
	}
	if limits.Max <= 0 {
		limits.Max = maxListLimit
	}
	return &TransferRepository{db: db, limits: limits}
}

const transferColumns = `id, subject_user_id, from_organization_id, to_organization_id, transfer_type, status,
       initiated_by, reason, response_note, responded_at, admin_notes, requested_by_user_id,
       created_at, processed_at, processed_by_user_id`

// Create inserts a new transfer request row. The one-active-request-per-subject
// invariant is enforced by the database at the same atomicity boundary as the
// insert, so two concurrent creates cannot both succeed.
func (r *TransferRepository) Create(ctx context.Context, request *models.TransferRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO transfer_requests
	(id, subject_user_id, from_organization_id, to_organization_id, transfer_type, status, initiated_by, reason, response_note, responded_at, admin_notes, requested_by_user_id, created_at, processed_at, processed_by_user_id)
	VALUES (:id, :subject_user_id, :from_organization_id, :to_organization_id, :transfer_type, :status, :initiated_by, :reason, :response_note, :responded_at, :admin_notes, :requested_by_user_id, :created_at, :processed_at, :processed_by_user_id)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateActive
		}
		return fmt.Errorf("create transfer request: %w", err)
	}
	return nil
}

// GetByID fetches a transfer request by identifier.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*models.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests WHERE id = $1`
	var request models.TransferRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns transfer requests matching the filter (newest first).
func (r *TransferRepository) List(ctx context.Context, filter models.TransferFilter) ([]models.TransferRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + transferColumns + ` FROM transfer_requests`)

	conditions := make([]string, 0, 4)
	if filter.SubjectUserID != "" {
		args = append(args, filter.SubjectUserID)
		conditions = append(conditions, fmt.Sprintf("subject_user_id = $%d", len(args)))
	}
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		orgArg := len(args)
		conditions = append(conditions, fmt.Sprintf("(from_organization_id = $%d OR to_organization_id = $%d)", orgArg, orgArg))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by_user_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > r.limits.Max {
		limit = r.limits.Default
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.TransferRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list transfer requests: %w", err)
	}
	return requests, nil
}

// ResponseParams groups columns set by the counterparty agree/decline step.
type ResponseParams struct {
	ID             string
	ExpectedStatus models.TransferStatus
	NewStatus      models.TransferStatus
	ResponseNote   *string
	RespondedAt    time.Time
}

// RecordResponse applies the counterparty transition with a compare-and-swap
// on the current status. Returns sql.ErrNoRows when the observed status no
// longer matches, so a concurrent transition is reported rather than skipped.
func (r *TransferRepository) RecordResponse(ctx context.Context, params ResponseParams) error {
	const query = `UPDATE transfer_requests
	SET status = $1, response_note = $2, responded_at = $3
	WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, params.NewStatus, params.ResponseNote, params.RespondedAt, params.ID, params.ExpectedStatus)
	if err != nil {
		return fmt.Errorf("record transfer response: %w", err)
	}
	return requireOneRow(result)
}

// CancelParams groups columns set by the initiator cancellation step.
type CancelParams struct {
	ID             string
	ExpectedStatus models.TransferStatus
}

// RecordCancellation moves the request to cancelled iff it still holds the
// expected non-terminal status.
func (r *TransferRepository) RecordCancellation(ctx context.Context, params CancelParams) error {
	const query = `UPDATE transfer_requests SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, models.TransferStatusCancelled, params.ID, params.ExpectedStatus)
	if err != nil {
		return fmt.Errorf("record transfer cancellation: %w", err)
	}
	return requireOneRow(result)
}

// MembershipChange describes the subject's new membership applied when a
// transfer is approved. A nil OrganizationID clears membership (leave_org).
type MembershipChange struct {
	UserID           string
	OrganizationID   *string
	OrganizationRole *string
}

// DecisionParams groups columns set by the admin disposition step.
type DecisionParams struct {
	ID          string
	NewStatus   models.TransferStatus
	AdminNotes  *string
	ProcessedBy string
	ProcessedAt time.Time
	Membership  *MembershipChange
}

// RecordAdminDecision applies the admin approve/deny transition. When a
// membership change is supplied (approve), both the status CAS and the users
// table update run inside one serializable transaction; a failed membership
// update rolls everything back and returns ErrMembershipUpdate.
func (r *TransferRepository) RecordAdminDecision(ctx context.Context, params DecisionParams) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transfer decision tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const statusQuery = `UPDATE transfer_requests
	SET status = $1, admin_notes = $2, processed_at = $3, processed_by_user_id = $4
	WHERE id = $5 AND status = $6`
	result, err := tx.ExecContext(ctx, statusQuery,
		params.NewStatus, params.AdminNotes, params.ProcessedAt, params.ProcessedBy,
		params.ID, models.TransferStatusPendingAdmin,
	)
	if err != nil {
		return fmt.Errorf("record admin decision: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	if params.Membership != nil {
		const membershipQuery = `UPDATE users SET organization_id = $1, organization_role = $2, updated_at = $3 WHERE id = $4`
		result, err := tx.ExecContext(ctx, membershipQuery,
			params.Membership.OrganizationID, params.Membership.OrganizationRole,
			params.ProcessedAt, params.Membership.UserID,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMembershipUpdate, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMembershipUpdate, err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: subject user not found", ErrMembershipUpdate)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer decision: %w", err)
	}
	return nil
}

func requireOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
