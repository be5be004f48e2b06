package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lynn75965/biblelessonspark-sub002/internal/dto"
	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
	"github.com/lynn75965/biblelessonspark-sub002/internal/repository"
	appErrors "github.com/lynn75965/biblelessonspark-sub002/pkg/errors"
)

type transferStore interface {
	Create(ctx context.Context, request *models.TransferRequest) error
	GetByID(ctx context.Context, id string) (*models.TransferRequest, error)
	List(ctx context.Context, filter models.TransferFilter) ([]models.TransferRequest, error)
	RecordResponse(ctx context.Context, params repository.ResponseParams) error
	RecordCancellation(ctx context.Context, params repository.CancelParams) error
	RecordAdminDecision(ctx context.Context, params repository.DecisionParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// OrganizationDirectory resolves directory state when validating transfers.
// Reads are never cached; destination state is revalidated at create time.
type OrganizationDirectory interface {
	IsActiveOrganization(ctx context.Context, orgID string) (bool, error)
	GetMembership(ctx context.Context, userID string) (*string, error)
	OrgManagerIDs(ctx context.Context, orgID string) ([]string, error)
}

// Authorizer answers capability checks for the actors in the workflow.
type Authorizer interface {
	IsOrgManagerOf(ctx context.Context, userID, orgID string) (bool, error)
	IsPlatformAdmin(ctx context.Context, userID string) (bool, error)
}

// Notifier fans out workflow events to the affected parties. Implementations
// must be fire-and-forget: a delivery failure never fails the transition that
// produced it.
type Notifier interface {
	Notify(ctx context.Context, event string, recipients []string, request *models.TransferRequest)
}

// NotifierFunc allows using plain functions as notifiers.
type NotifierFunc func(ctx context.Context, event string, recipients []string, request *models.TransferRequest)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event string, recipients []string, request *models.TransferRequest) {
	f(ctx, event, recipients, request)
}

// TransferService owns the membership transfer-request state machine: it
// validates actor permissions at each transition and emits the side effects
// (membership mutation, notifications) on terminal approval.
type TransferService struct {
	repo      transferStore
	directory OrganizationDirectory
	authz     Authorizer
	notifier  Notifier
	audit     auditLogger
	metrics   *MetricsService
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewTransferService constructs the service.
func NewTransferService(repo transferStore, directory OrganizationDirectory, authz Authorizer, notifier Notifier, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, string, []string, *models.TransferRequest) {})
	}
	return &TransferService{
		repo:      repo,
		directory: directory,
		authz:     authz,
		notifier:  notifier,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Create opens a transfer request. Org-manager-initiated requests start at
// pending_teacher; teacher-initiated requests start at pending_org_manager.
func (s *TransferService) Create(ctx context.Context, req dto.CreateTransferRequest, initiatedBy models.TransferInitiator, requestedByUserID string) (*models.TransferRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer request payload")
	}

	// character count, not bytes: multi-byte reasons at the limit are valid
	reason := strings.TrimSpace(req.Reason)
	if length := utf8.RuneCountInString(reason); length < models.TransferReasonMinLength || length > models.TransferReasonMaxLength {
		return nil, appErrors.ErrInvalidReasonLength
	}

	switch req.TransferType {
	case models.TransferTypeToAnotherOrg:
		if req.ToOrganizationID == nil || *req.ToOrganizationID == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidDestination, "destination organization is required for a transfer")
		}
		if *req.ToOrganizationID == req.FromOrganizationID {
			return nil, appErrors.Clone(appErrors.ErrInvalidDestination, "destination must differ from the current organization")
		}
	case models.TransferTypeLeaveOrg:
		if req.ToOrganizationID != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidDestination, "destination organization is not allowed when leaving")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported transfer type")
	}

	if err := s.authorizeCreate(ctx, req, initiatedBy, requestedByUserID); err != nil {
		return nil, err
	}

	membership, err := s.directory.GetMembership(ctx, req.SubjectUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve member organization")
	}
	if membership == nil || *membership != req.FromOrganizationID {
		return nil, appErrors.ErrSubjectNotInSourceOrg
	}

	if req.TransferType == models.TransferTypeToAnotherOrg {
		active, err := s.directory.IsActiveOrganization(ctx, *req.ToOrganizationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve destination organization")
		}
		if !active {
			return nil, appErrors.Clone(appErrors.ErrInvalidDestination, "destination organization is not active")
		}
	}

	request := &models.TransferRequest{
		SubjectUserID:      req.SubjectUserID,
		FromOrganizationID: req.FromOrganizationID,
		ToOrganizationID:   req.ToOrganizationID,
		TransferType:       req.TransferType,
		Status:             models.InitialTransferStatus(initiatedBy),
		InitiatedBy:        initiatedBy,
		Reason:             reason,
		RequestedByUserID:  requestedByUserID,
	}
	start := time.Now()
	err = s.repo.Create(ctx, request)
	s.metrics.ObserveDBQuery("transfer_insert", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, appErrors.ErrDuplicateActiveRequest
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create transfer request")
	}

	s.emitAudit(ctx, requestedByUserID, models.AuditActionTransferCreate, request)
	s.notifier.Notify(ctx, models.NotificationTransferCreated, s.recipients(ctx, request), request)
	return request, nil
}

func (s *TransferService) authorizeCreate(ctx context.Context, req dto.CreateTransferRequest, initiatedBy models.TransferInitiator, requestedByUserID string) error {
	switch initiatedBy {
	case models.InitiatedByTeacher:
		if requestedByUserID != req.SubjectUserID {
			return appErrors.Clone(appErrors.ErrForbidden, "teachers may only request their own transfer")
		}
		return nil
	case models.InitiatedByOrgManager:
		ok, err := s.authz.IsOrgManagerOf(ctx, requestedByUserID, req.FromOrganizationID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check organization role")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrForbidden, "only a manager of the source organization may initiate")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported initiator")
	}
}

// RespondAsCounterparty records the non-initiating party's agree/decline
// while the request awaits mutual agreement.
func (s *TransferService) RespondAsCounterparty(ctx context.Context, requestID, actingUserID string, req dto.RespondTransferRequest) (*models.TransferRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	note := strings.TrimSpace(req.ResponseNote)
	if utf8.RuneCountInString(note) > models.TransferResponseNoteMaxLength {
		return nil, appErrors.ErrResponseNoteTooLong
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.IsPendingCounterparty() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request is not awaiting a response")
	}

	switch request.Status {
	case models.TransferStatusPendingTeacher:
		if actingUserID != request.SubjectUserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the member may respond to this request")
		}
	case models.TransferStatusPendingOrgManager:
		ok, err := s.authz.IsOrgManagerOf(ctx, actingUserID, request.FromOrganizationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check organization role")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only a manager of the source organization may respond")
		}
	}

	newStatus := models.TransferStatusPendingAdmin
	if req.Decision == dto.DecisionDecline {
		newStatus = models.DeclinedStatusFor(request.Status)
	}

	now := time.Now().UTC()
	params := repository.ResponseParams{
		ID:             request.ID,
		ExpectedStatus: request.Status,
		NewStatus:      newStatus,
		ResponseNote:   optionalString(note),
		RespondedAt:    now,
	}
	start := time.Now()
	err = s.repo.RecordResponse(ctx, params)
	s.metrics.ObserveDBQuery("transfer_update_response", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request changed state, refresh and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record response")
	}

	request.Status = newStatus
	request.ResponseNote = params.ResponseNote
	request.RespondedAt = &now

	s.emitAudit(ctx, actingUserID, models.AuditActionTransferRespond, request)
	s.notifier.Notify(ctx, models.NotificationTransferResponded, s.recipients(ctx, request), request)
	return request, nil
}

// ProcessAsAdmin applies the platform admin's final disposition. Approval
// executes the membership mutation inside the same transaction as the status
// change; a membership failure leaves the request pending_admin and surfaces
// a retryable error.
func (s *TransferService) ProcessAsAdmin(ctx context.Context, requestID, adminUserID string, req dto.ProcessTransferRequest) (*models.TransferRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid process payload")
	}
	notes := strings.TrimSpace(req.AdminNotes)
	if utf8.RuneCountInString(notes) > models.TransferAdminNotesMaxLength {
		return nil, appErrors.ErrAdminNotesTooLong
	}

	ok, err := s.authz.IsPlatformAdmin(ctx, adminUserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admin role")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a platform admin may process transfers")
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.TransferStatusPendingAdmin {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request is not awaiting admin review")
	}

	now := time.Now().UTC()
	params := repository.DecisionParams{
		ID:          request.ID,
		NewStatus:   models.TransferStatusDenied,
		AdminNotes:  optionalString(notes),
		ProcessedBy: adminUserID,
		ProcessedAt: now,
	}
	if req.Decision == dto.DecisionApprove {
		params.NewStatus = models.TransferStatusApproved
		params.Membership = &repository.MembershipChange{
			UserID:           request.SubjectUserID,
			OrganizationID:   request.ToOrganizationID,
			OrganizationRole: membershipRoleFor(request),
		}
	}

	start := time.Now()
	err = s.repo.RecordAdminDecision(ctx, params)
	s.metrics.ObserveDBQuery("transfer_update_decision", time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request changed state, refresh and retry")
		case errors.Is(err, repository.ErrMembershipUpdate):
			s.logger.Error("membership update failed, transfer remains pending",
				zap.String("request_id", request.ID),
				zap.Error(err),
			)
			return nil, appErrors.ErrMembershipUpdate
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process transfer request")
		}
	}

	request.Status = params.NewStatus
	request.AdminNotes = params.AdminNotes
	request.ProcessedAt = &now
	request.ProcessedByUserID = &adminUserID

	s.emitAudit(ctx, adminUserID, models.AuditActionTransferProcess, request)
	s.notifier.Notify(ctx, models.NotificationTransferProcessed, s.recipients(ctx, request), request)
	return request, nil
}

// Cancel lets the initiator withdraw a request from any non-terminal state.
func (s *TransferService) Cancel(ctx context.Context, requestID, actingUserID string) (*models.TransferRequest, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request is already finalized")
	}
	if actingUserID != request.RequestedByUserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the initiator may cancel")
	}

	params := repository.CancelParams{ID: request.ID, ExpectedStatus: request.Status}
	start := time.Now()
	err = s.repo.RecordCancellation(ctx, params)
	s.metrics.ObserveDBQuery("transfer_update_cancel", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "transfer request changed state, refresh and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel transfer request")
	}

	request.Status = models.TransferStatusCancelled

	s.emitAudit(ctx, actingUserID, models.AuditActionTransferCancel, request)
	s.notifier.Notify(ctx, models.NotificationTransferCancelled, s.recipients(ctx, request), request)
	return request, nil
}

// Get returns a transfer request enforcing actor scope: admins see all,
// managers see their organization's traffic, teachers their own.
func (s *TransferService) Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.TransferRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, request, actor); err != nil {
		return nil, err
	}
	return request, nil
}

// List returns transfer requests visible to the actor.
func (s *TransferService) List(ctx context.Context, query dto.TransferQuery, actor *models.JWTClaims) ([]models.TransferRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.TransferFilter{
		SubjectUserID:  query.SubjectUserID,
		OrganizationID: query.OrganizationID,
		Statuses:       query.Statuses,
		Limit:          query.PageSize,
	}
	if query.Page > 1 && query.PageSize > 0 {
		filter.Offset = (query.Page - 1) * query.PageSize
	}

	switch actor.Role {
	case models.RoleAdmin:
		// full access, no extra scoping
	case models.RoleOrgManager:
		if actor.OrganizationID == "" {
			return nil, appErrors.ErrForbidden
		}
		filter.OrganizationID = actor.OrganizationID
	case models.RoleTeacher, models.RoleIndividual:
		filter.SubjectUserID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}

	requests, err := s.listRequests(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfer requests")
	}
	return requests, nil
}

// ListBySubject returns every request for one member, newest first.
func (s *TransferService) ListBySubject(ctx context.Context, subjectUserID string) ([]models.TransferRequest, error) {
	requests, err := s.listRequests(ctx, models.TransferFilter{SubjectUserID: subjectUserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfer requests")
	}
	return requests, nil
}

// ListByOrganization returns requests touching the organization as source or
// destination.
func (s *TransferService) ListByOrganization(ctx context.Context, orgID string) ([]models.TransferRequest, error) {
	requests, err := s.listRequests(ctx, models.TransferFilter{OrganizationID: orgID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfer requests")
	}
	return requests, nil
}

// ListPendingForAdmin backs the admin review queue.
func (s *TransferService) ListPendingForAdmin(ctx context.Context) ([]models.TransferRequest, error) {
	requests, err := s.listRequests(ctx, models.TransferFilter{
		Statuses: []models.TransferStatus{models.TransferStatusPendingAdmin},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending transfer requests")
	}
	return requests, nil
}

func (s *TransferService) listRequests(ctx context.Context, filter models.TransferFilter) ([]models.TransferRequest, error) {
	start := time.Now()
	requests, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("transfer_list", time.Since(start))
	return requests, err
}

func (s *TransferService) loadRequest(ctx context.Context, requestID string) (*models.TransferRequest, error) {
	start := time.Now()
	request, err := s.repo.GetByID(ctx, requestID)
	s.metrics.ObserveDBQuery("transfer_get", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transfer request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transfer request")
	}
	return request, nil
}

func (s *TransferService) authorizeRead(ctx context.Context, request *models.TransferRequest, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleOrgManager:
		ok, err := s.authz.IsOrgManagerOf(ctx, actor.UserID, request.FromOrganizationID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check organization role")
		}
		if ok {
			return nil
		}
		if request.ToOrganizationID != nil {
			ok, err = s.authz.IsOrgManagerOf(ctx, actor.UserID, *request.ToOrganizationID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check organization role")
			}
			if ok {
				return nil
			}
		}
		return appErrors.ErrForbidden
	default:
		if actor.UserID == request.SubjectUserID || actor.UserID == request.RequestedByUserID {
			return nil
		}
		return appErrors.ErrForbidden
	}
}

// recipients returns the users notified about a workflow event: the subject,
// the initiator, the processing admin, and the managers of the source
// organization (the counterparty on teacher-initiated requests). A directory
// failure only shrinks the list; notification is fire-and-forget.
func (s *TransferService) recipients(ctx context.Context, request *models.TransferRequest) []string {
	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(request.SubjectUserID)
	add(request.RequestedByUserID)
	if request.ProcessedByUserID != nil {
		add(*request.ProcessedByUserID)
	}

	managers, err := s.directory.OrgManagerIDs(ctx, request.FromOrganizationID)
	if err != nil {
		s.logger.Warn("failed to resolve organization managers for notification",
			zap.String("organization_id", request.FromOrganizationID),
			zap.Error(err),
		)
		return out
	}
	for _, id := range managers {
		add(id)
	}
	return out
}

func (s *TransferService) emitAudit(ctx context.Context, userID, action string, request *models.TransferRequest) {
	if s.audit == nil {
		return
	}
	snapshot, err := json.Marshal(request)
	if err != nil {
		snapshot = []byte("{}")
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "transfer_request",
		ResourceID: &request.ID,
		NewValues:  snapshot,
		IPAddress:  "system",
		UserAgent:  "transfer-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func membershipRoleFor(request *models.TransferRequest) *string {
	if request.ToOrganizationID == nil {
		return nil
	}
	role := models.OrgRoleMember
	return &role
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
