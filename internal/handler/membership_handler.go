package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/response"
)

// MembershipHandler wires HTTP endpoints to the membership application workflow.
type MembershipHandler struct {
	service *service.MembershipService
}

// NewMembershipHandler creates a new handler.
func NewMembershipHandler(svc *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: svc}
}

// Plans godoc
// @Summary List active membership plans
// @Tags Memberships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /memberships/plans [get]
func (h *MembershipHandler) Plans(c *gin.Context) {
	plans, err := h.service.Plans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, plans, nil)
}

// Apply godoc
// @Summary Apply for a membership plan
// @Description Splits the plan fee between the wallet and the payment gateway
// @Tags Memberships
// @Accept json
// @Produce json
// @Param payload body service.ApplyRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /memberships/applications [post]
func (h *MembershipHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	result, err := h.service.Apply(c.Request.Context(), claims.MemberID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Get godoc
// @Summary Get a membership application
// @Tags Memberships
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /memberships/applications/{id} [get]
func (h *MembershipHandler) Get(c *gin.Context) {
	application, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, application, nil)
}

// MyApplications godoc
// @Summary List the authenticated member's applications
// @Tags Memberships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/applications [get]
func (h *MembershipHandler) MyApplications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	applications, err := h.service.ListByMember(c.Request.Context(), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, applications, nil)
}

// ReviewQueue godoc
// @Summary List fully funded applications awaiting review
// @Tags Memberships
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /memberships/review-queue [get]
func (h *MembershipHandler) ReviewQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	applications, err := h.service.ReviewQueue(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, applications, nil)
}

// Approve godoc
// @Summary Approve a fully funded application
// @Tags Memberships
// @Param id path string true "Application ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /memberships/applications/{id}/approve [post]
func (h *MembershipHandler) Approve(c *gin.Context) {
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Approve(c.Request.Context(), c.Param("id"), actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reject godoc
// @Summary Reject an application and refund the wallet draw
// @Tags Memberships
// @Accept json
// @Param id path string true "Application ID"
// @Param payload body map[string]string true "Rejection note"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /memberships/applications/{id}/reject [post]
func (h *MembershipHandler) Reject(c *gin.Context) {
	var payload struct {
		Note string `json:"note"`
	}
	_ = c.ShouldBindJSON(&payload)

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Reject(c.Request.Context(), c.Param("id"), actorID, payload.Note); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel the authenticated member's own application
// @Tags Memberships
// @Param id path string true "Application ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /memberships/applications/{id}/cancel [post]
func (h *MembershipHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.MemberID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Fulfil godoc
// @Summary Mark an approved application as fulfilled
// @Tags Memberships
// @Param id path string true "Application ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /memberships/applications/{id}/fulfil [post]
func (h *MembershipHandler) Fulfil(c *gin.Context) {
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Fulfil(c.Request.Context(), c.Param("id"), actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
