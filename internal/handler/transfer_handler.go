package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lynn75965/biblelessonspark-sub002/internal/dto"
	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
	"github.com/lynn75965/biblelessonspark-sub002/internal/service"
	appErrors "github.com/lynn75965/biblelessonspark-sub002/pkg/errors"
	"github.com/lynn75965/biblelessonspark-sub002/pkg/response"
)

type transferService interface {
	Create(ctx context.Context, req dto.CreateTransferRequest, initiatedBy models.TransferInitiator, requestedByUserID string) (*models.TransferRequest, error)
	RespondAsCounterparty(ctx context.Context, requestID, actingUserID string, req dto.RespondTransferRequest) (*models.TransferRequest, error)
	ProcessAsAdmin(ctx context.Context, requestID, adminUserID string, req dto.ProcessTransferRequest) (*models.TransferRequest, error)
	Cancel(ctx context.Context, requestID, actingUserID string) (*models.TransferRequest, error)
	Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.TransferRequest, error)
	List(ctx context.Context, query dto.TransferQuery, actor *models.JWTClaims) ([]models.TransferRequest, error)
}

// TransferHandler exposes REST endpoints for the transfer-request workflow.
type TransferHandler struct {
	service transferService
	metrics *service.MetricsService
}

// NewTransferHandler constructs the handler.
func NewTransferHandler(svc transferService, metrics *service.MetricsService) *TransferHandler {
	return &TransferHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Open a membership transfer request
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body dto.CreateTransferRequest true "Transfer payload"
// @Success 201 {object} response.Envelope
// @Router /transfers [post]
func (h *TransferHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transfer payload"))
		return
	}

	initiatedBy := models.InitiatedByTeacher
	if claims.Role == models.RoleOrgManager {
		initiatedBy = models.InitiatedByOrgManager
	}

	request, err := h.service.Create(c.Request.Context(), req, initiatedBy, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.observe("create", request)
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List transfer requests visible to the caller
// @Tags Transfers
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param subject query string false "Subject user ID"
// @Param organization query string false "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /transfers [get]
func (h *TransferHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.TransferQuery{
		SubjectUserID:  strings.TrimSpace(c.Query("subject")),
		OrganizationID: strings.TrimSpace(c.Query("organization")),
		Page:           queryInt(c, "page"),
		PageSize:       queryInt(c, "limit"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.TransferStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.TransferStatus(part))
		}
		query.Statuses = statuses
	}

	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get transfer request detail
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer request ID"
// @Success 200 {object} response.Envelope
// @Router /transfers/{id} [get]
func (h *TransferHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Respond godoc
// @Summary Agree to or decline a pending transfer request
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer request ID"
// @Param payload body dto.RespondTransferRequest true "Counterparty decision"
// @Success 200 {object} response.Envelope
// @Router /transfers/{id}/respond [post]
func (h *TransferHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RespondTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid response payload"))
		return
	}
	request, err := h.service.RespondAsCounterparty(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.observe("respond", request)
	response.JSON(c, http.StatusOK, request, nil)
}

// Process godoc
// @Summary Approve or deny a transfer request awaiting admin review
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer request ID"
// @Param payload body dto.ProcessTransferRequest true "Admin decision"
// @Success 200 {object} response.Envelope
// @Router /transfers/{id}/process [post]
func (h *TransferHandler) Process(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ProcessTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid process payload"))
		return
	}
	request, err := h.service.ProcessAsAdmin(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.observe("process", request)
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel a transfer request as its initiator
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer request ID"
// @Success 200 {object} response.Envelope
// @Router /transfers/{id}/cancel [post]
func (h *TransferHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.observe("cancel", request)
	response.JSON(c, http.StatusOK, request, nil)
}

func (h *TransferHandler) observe(action string, request *models.TransferRequest) {
	if h.metrics == nil || request == nil {
		return
	}
	h.metrics.ObserveTransferTransition(action, string(request.Status))
}

func queryInt(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
