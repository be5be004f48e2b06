package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynn75965/biblelessonspark-sub002/internal/dto"
	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
	"github.com/lynn75965/biblelessonspark-sub002/internal/repository"
	appErrors "github.com/lynn75965/biblelessonspark-sub002/pkg/errors"
)

type transferRepoStub struct {
	mu             sync.Mutex
	seq            int
	requests       map[string]*models.TransferRequest
	memberships    map[string]*string
	failMembership bool
	lastFilter     models.TransferFilter
}

func newTransferRepoStub(memberships map[string]*string) *transferRepoStub {
	return &transferRepoStub{
		requests:    make(map[string]*models.TransferRequest),
		memberships: memberships,
	}
}

func (s *transferRepoStub) Create(ctx context.Context, request *models.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.SubjectUserID == request.SubjectUserID && !existing.Status.IsTerminal() {
			return repository.ErrDuplicateActive
		}
	}
	s.seq++
	request.ID = fmt.Sprintf("req-%d", s.seq)
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

func (s *transferRepoStub) GetByID(ctx context.Context, id string) (*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.requests[id]; ok {
		clone := *request
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *transferRepoStub) List(ctx context.Context, filter models.TransferFilter) ([]models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	result := make([]models.TransferRequest, 0, len(s.requests))
	for _, request := range s.requests {
		result = append(result, *request)
	}
	return result, nil
}

func (s *transferRepoStub) RecordResponse(ctx context.Context, params repository.ResponseParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[params.ID]
	if !ok || request.Status != params.ExpectedStatus {
		return sql.ErrNoRows
	}
	request.Status = params.NewStatus
	request.ResponseNote = params.ResponseNote
	respondedAt := params.RespondedAt
	request.RespondedAt = &respondedAt
	return nil
}

func (s *transferRepoStub) RecordCancellation(ctx context.Context, params repository.CancelParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[params.ID]
	if !ok || request.Status != params.ExpectedStatus {
		return sql.ErrNoRows
	}
	request.Status = models.TransferStatusCancelled
	return nil
}

func (s *transferRepoStub) RecordAdminDecision(ctx context.Context, params repository.DecisionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[params.ID]
	if !ok || request.Status != models.TransferStatusPendingAdmin {
		return sql.ErrNoRows
	}
	if params.Membership != nil && s.failMembership {
		return fmt.Errorf("%w: users table unavailable", repository.ErrMembershipUpdate)
	}
	request.Status = params.NewStatus
	request.AdminNotes = params.AdminNotes
	processedAt := params.ProcessedAt
	request.ProcessedAt = &processedAt
	processedBy := params.ProcessedBy
	request.ProcessedByUserID = &processedBy
	if params.Membership != nil {
		s.memberships[params.Membership.UserID] = params.Membership.OrganizationID
	}
	return nil
}

type directoryStub struct {
	activeOrgs  map[string]bool
	memberships map[string]*string
	managers    map[string]string
	managersErr error
	admins      map[string]bool
}

func (d *directoryStub) IsActiveOrganization(ctx context.Context, orgID string) (bool, error) {
	return d.activeOrgs[orgID], nil
}

func (d *directoryStub) GetMembership(ctx context.Context, userID string) (*string, error) {
	orgID, ok := d.memberships[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return orgID, nil
}

func (d *directoryStub) OrgManagerIDs(ctx context.Context, orgID string) ([]string, error) {
	if d.managersErr != nil {
		return nil, d.managersErr
	}
	var ids []string
	for userID, managed := range d.managers {
		if managed == orgID {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

func (d *directoryStub) IsOrgManagerOf(ctx context.Context, userID, orgID string) (bool, error) {
	return d.managers[userID] == orgID, nil
}

func (d *directoryStub) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	return d.admins[userID], nil
}

type notifierStub struct {
	mu         sync.Mutex
	events     []string
	recipients [][]string
}

func (n *notifierStub) Notify(ctx context.Context, event string, recipients []string, request *models.TransferRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.recipients = append(n.recipients, recipients)
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type transferFixture struct {
	svc       *TransferService
	repo      *transferRepoStub
	directory *directoryStub
	notifier  *notifierStub
	audit     *auditStub
}

// newTransferFixture wires a service over stubs with teacher T belonging to
// org X, manager M managing X, manager N managing Y, and admin A.
func newTransferFixture() *transferFixture {
	orgX := "org-x"
	memberships := map[string]*string{
		"teacher-1": &orgX,
		"manager-1": &orgX,
	}
	directory := &directoryStub{
		activeOrgs:  map[string]bool{"org-x": true, "org-y": true},
		memberships: memberships,
		managers:    map[string]string{"manager-1": "org-x", "manager-2": "org-y"},
		admins:      map[string]bool{"admin-1": true},
	}
	repo := newTransferRepoStub(memberships)
	notifier := &notifierStub{}
	audit := &auditStub{}
	svc := NewTransferService(repo, directory, directory, notifier, audit, nil, nil)
	return &transferFixture{svc: svc, repo: repo, directory: directory, notifier: notifier, audit: audit}
}

func strPtr(v string) *string { return &v }

func validCreateRequest() dto.CreateTransferRequest {
	return dto.CreateTransferRequest{
		SubjectUserID:      "teacher-1",
		FromOrganizationID: "org-x",
		ToOrganizationID:   strPtr("org-y"),
		TransferType:       models.TransferTypeToAnotherOrg,
		Reason:             "Relocating ministries",
	}
}

func TestTransferServiceCreateInitialStatus(t *testing.T) {
	f := newTransferFixture()

	byManager, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingTeacher, byManager.Status)
	assert.Equal(t, models.InitiatedByOrgManager, byManager.InitiatedBy)

	// second fixture: the first request is still active for the subject
	f = newTransferFixture()
	byTeacher, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByTeacher, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingOrgManager, byTeacher.Status)
	assert.Equal(t, models.InitiatedByTeacher, byTeacher.InitiatedBy)
}

func TestTransferServiceCreateReasonBoundaries(t *testing.T) {
	cases := []struct {
		length int
		ok     bool
	}{
		{9, false},
		{10, true},
		{500, true},
		{501, false},
	}
	for _, tc := range cases {
		f := newTransferFixture()
		req := validCreateRequest()
		req.Reason = strings.Repeat("x", tc.length)
		_, err := f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
		if tc.ok {
			assert.NoError(t, err, "reason length %d", tc.length)
		} else {
			require.Error(t, err, "reason length %d", tc.length)
			assert.Equal(t, appErrors.ErrInvalidReasonLength.Code, appErrors.FromError(err).Code, "reason length %d", tc.length)
		}
	}
}

func TestTransferServiceCreateReasonCountsCharacters(t *testing.T) {
	// "é" is two bytes in UTF-8: a byte-based limit would reject a
	// 500-character reason and accept nothing past 250.
	f := newTransferFixture()
	req := validCreateRequest()
	req.Reason = strings.Repeat("é", 500)
	_, err := f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	assert.NoError(t, err)

	f = newTransferFixture()
	req = validCreateRequest()
	req.Reason = strings.Repeat("é", 501)
	_, err = f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidReasonLength.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCreateDestinationValidation(t *testing.T) {
	f := newTransferFixture()

	req := validCreateRequest()
	req.ToOrganizationID = nil
	_, err := f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDestination.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.ToOrganizationID = strPtr("org-x")
	_, err = f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDestination.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.TransferType = models.TransferTypeLeaveOrg
	_, err = f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDestination.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.ToOrganizationID = strPtr("org-suspended")
	_, err = f.svc.Create(context.Background(), req, models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDestination.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCreateSubjectNotInSourceOrg(t *testing.T) {
	f := newTransferFixture()
	f.directory.memberships["teacher-1"] = strPtr("org-z")

	_, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSubjectNotInSourceOrg.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCreateAuthorization(t *testing.T) {
	f := newTransferFixture()

	// manager of a different org cannot initiate for org-x
	_, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// a teacher cannot initiate for somebody else
	req := validCreateRequest()
	_, err = f.svc.Create(context.Background(), req, models.InitiatedByTeacher, "teacher-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCreateDuplicateActive(t *testing.T) {
	f := newTransferFixture()

	_, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByTeacher, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateActiveRequest.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCreateConcurrentDuplicate(t *testing.T) {
	f := newTransferFixture()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
		}(i)
	}
	wg.Wait()

	successes := 0
	duplicates := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if appErrors.FromError(err).Code == appErrors.ErrDuplicateActiveRequest.Code {
			duplicates++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, duplicates)
}

func TestTransferServiceRespondAgreeMovesToPendingAdmin(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	updated, err := f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{
		Decision:     dto.DecisionAgree,
		ResponseNote: "Happy to serve there",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingAdmin, updated.Status)
	require.NotNil(t, updated.ResponseNote)
	assert.Equal(t, "Happy to serve there", *updated.ResponseNote)
	assert.NotNil(t, updated.RespondedAt)
}

func TestTransferServiceRespondDeclineByOrgManager(t *testing.T) {
	f := newTransferFixture()
	req := dto.CreateTransferRequest{
		SubjectUserID:      "teacher-1",
		FromOrganizationID: "org-x",
		TransferType:       models.TransferTypeLeaveOrg,
		Reason:             "Moving to independent ministry work",
	}
	request, err := f.svc.Create(context.Background(), req, models.InitiatedByTeacher, "teacher-1")
	require.NoError(t, err)
	require.Equal(t, models.TransferStatusPendingOrgManager, request.Status)

	updated, err := f.svc.RespondAsCounterparty(context.Background(), request.ID, "manager-1", dto.RespondTransferRequest{
		Decision: dto.DecisionDecline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusDeclinedByOrgManager, updated.Status)

	// membership unchanged
	membership, err := f.directory.GetMembership(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.Equal(t, "org-x", *membership)
}

func TestTransferServiceRespondWrongActor(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "manager-1", dto.RespondTransferRequest{
		Decision: dto.DecisionAgree,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceRespondAfterCancelStateConflict(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), request.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCancelled, cancelled.Status)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{
		Decision: dto.DecisionAgree,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceApproveExecutesMembership(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	processed, err := f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{
		Decision:   dto.DecisionApprove,
		AdminNotes: "Confirmed with both parties",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusApproved, processed.Status)
	require.NotNil(t, processed.ProcessedByUserID)
	assert.Equal(t, "admin-1", *processed.ProcessedByUserID)
	assert.NotNil(t, processed.ProcessedAt)

	membership := f.repo.memberships["teacher-1"]
	require.NotNil(t, membership)
	assert.Equal(t, "org-y", *membership)
}

func TestTransferServiceApproveLeaveOrgClearsMembership(t *testing.T) {
	f := newTransferFixture()
	req := dto.CreateTransferRequest{
		SubjectUserID:      "teacher-1",
		FromOrganizationID: "org-x",
		TransferType:       models.TransferTypeLeaveOrg,
		Reason:             "Moving to independent ministry work",
	}
	request, err := f.svc.Create(context.Background(), req, models.InitiatedByTeacher, "teacher-1")
	require.NoError(t, err)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "manager-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	processed, err := f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusApproved, processed.Status)
	assert.Nil(t, f.repo.memberships["teacher-1"])
}

func TestTransferServiceDenyKeepsMembership(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	processed, err := f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{
		Decision:   dto.DecisionDeny,
		AdminNotes: "Destination at capacity",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusDenied, processed.Status)

	membership := f.repo.memberships["teacher-1"]
	require.NotNil(t, membership)
	assert.Equal(t, "org-x", *membership)
}

func TestTransferServiceApproveMembershipFailureRollsBack(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	f.repo.failMembership = true
	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMembershipUpdate.Code, appErr.Code)
	assert.True(t, appErr.Retryable)

	// status provably remains pending_admin and a retry succeeds
	current, err := f.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingAdmin, current.Status)

	f.repo.failMembership = false
	processed, err := f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusApproved, processed.Status)
}

func TestTransferServiceTerminalStatesRejectTransitions(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionDecline})
	require.NoError(t, err)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Cancel(context.Background(), request.ID, "manager-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceCancelOnlyInitiator(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), request.ID, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceProcessRequiresAdmin(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "manager-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceProcessBeforeAgreementConflicts(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestTransferServiceNoteLimits(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{
		Decision:     dto.DecisionAgree,
		ResponseNote: strings.Repeat("n", 501),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResponseNoteTooLong.Code, appErrors.FromError(err).Code)

	// 500 multi-byte characters stay within the limit
	updated, err := f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{
		Decision:     dto.DecisionAgree,
		ResponseNote: strings.Repeat("é", 500),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingAdmin, updated.Status)
}

func TestTransferServiceAdminNotesLimit(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)

	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{
		Decision:   dto.DecisionApprove,
		AdminNotes: strings.Repeat("é", 501),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAdminNotesTooLong.Code, appErrors.FromError(err).Code)

	processed, err := f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{
		Decision:   dto.DecisionApprove,
		AdminNotes: strings.Repeat("é", 500),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusApproved, processed.Status)
}

func TestTransferServiceListScoping(t *testing.T) {
	f := newTransferFixture()
	_, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.List(context.Background(), dto.TransferQuery{}, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", f.repo.lastFilter.SubjectUserID)

	_, err = f.svc.List(context.Background(), dto.TransferQuery{}, &models.JWTClaims{UserID: "manager-1", Role: models.RoleOrgManager, OrganizationID: "org-x"})
	require.NoError(t, err)
	assert.Equal(t, "org-x", f.repo.lastFilter.OrganizationID)

	_, err = f.svc.List(context.Background(), dto.TransferQuery{}, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, f.repo.lastFilter.SubjectUserID)
	assert.Empty(t, f.repo.lastFilter.OrganizationID)
}

func TestTransferServiceListPendingForAdmin(t *testing.T) {
	f := newTransferFixture()
	_, err := f.svc.ListPendingForAdmin(context.Background())
	require.NoError(t, err)
	require.Len(t, f.repo.lastFilter.Statuses, 1)
	assert.Equal(t, models.TransferStatusPendingAdmin, f.repo.lastFilter.Statuses[0])
}

func TestTransferServiceAuditAndNotifications(t *testing.T) {
	f := newTransferFixture()
	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)
	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)

	require.Len(t, f.audit.logs, 3)
	assert.Equal(t, models.AuditActionTransferCreate, f.audit.logs[0].Action)
	assert.Equal(t, models.AuditActionTransferRespond, f.audit.logs[1].Action)
	assert.Equal(t, models.AuditActionTransferProcess, f.audit.logs[2].Action)

	require.Len(t, f.notifier.events, 3)
	assert.Equal(t, models.NotificationTransferCreated, f.notifier.events[0])
	assert.Equal(t, models.NotificationTransferResponded, f.notifier.events[1])
	assert.Equal(t, models.NotificationTransferProcessed, f.notifier.events[2])
}

func TestTransferServiceNotifiesSourceOrgManagers(t *testing.T) {
	// a teacher-initiated request must reach the managers of the source
	// organization, who are the counterparty but appear nowhere on the row
	f := newTransferFixture()
	_, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByTeacher, "teacher-1")
	require.NoError(t, err)

	require.Len(t, f.notifier.recipients, 1)
	assert.Contains(t, f.notifier.recipients[0], "teacher-1")
	assert.Contains(t, f.notifier.recipients[0], "manager-1")
	assert.NotContains(t, f.notifier.recipients[0], "manager-2")
}

func TestTransferServiceNotifiesDespiteDirectoryFailure(t *testing.T) {
	f := newTransferFixture()
	f.directory.managersErr = fmt.Errorf("directory unavailable")

	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPendingTeacher, request.Status)

	// manager lookup failed, the directly involved parties still get notified
	require.Len(t, f.notifier.recipients, 1)
	assert.ElementsMatch(t, []string{"teacher-1", "manager-1"}, f.notifier.recipients[0])
}

func TestTransferServiceObservesQueryDurations(t *testing.T) {
	f := newTransferFixture()
	metrics := NewMetricsService()
	f.svc.metrics = metrics

	request, err := f.svc.Create(context.Background(), validCreateRequest(), models.InitiatedByOrgManager, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.RespondAsCounterparty(context.Background(), request.ID, "teacher-1", dto.RespondTransferRequest{Decision: dto.DecisionAgree})
	require.NoError(t, err)
	_, err = f.svc.ProcessAsAdmin(context.Background(), request.ID, "admin-1", dto.ProcessTransferRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	_, err = f.svc.ListPendingForAdmin(context.Background())
	require.NoError(t, err)

	// one label series each for insert, load, response, decision and list
	assert.Equal(t, 5, testutil.CollectAndCount(metrics.dbQueryDuration, "db_query_duration_seconds"))
}
