package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/response"
)

// CertificateHandler wires HTTP endpoints to the certificate request workflow.
type CertificateHandler struct {
	service *service.CertificateService
}

// NewCertificateHandler creates a new handler.
func NewCertificateHandler(svc *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Types godoc
// @Summary List active certificate types
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /certificates/types [get]
func (h *CertificateHandler) Types(c *gin.Context) {
	types, err := h.service.Types(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, types, nil)
}

// Submit godoc
// @Summary Request a certificate
// @Description Splits the certificate fee plus delivery fee between the wallet and the payment gateway
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.SubmitCertificateRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /certificates/requests [post]
func (h *CertificateHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	result, err := h.service.Submit(c.Request.Context(), claims.MemberID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Get godoc
// @Summary Get a certificate request
// @Tags Certificates
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/requests/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, request, nil)
}

// MyRequests godoc
// @Summary List the authenticated member's certificate requests
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/certificate-requests [get]
func (h *CertificateHandler) MyRequests(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	requests, err := h.service.ListByMember(c.Request.Context(), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, nil)
}

// ReviewQueue godoc
// @Summary List fully funded certificate requests awaiting review
// @Tags Certificates
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /certificates/review-queue [get]
func (h *CertificateHandler) ReviewQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	requests, err := h.service.ReviewQueue(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, nil)
}

// Approve godoc
// @Summary Approve a fully funded certificate request
// @Tags Certificates
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/requests/{id}/approve [post]
func (h *CertificateHandler) Approve(c *gin.Context) {
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
// @Summary Reject a certificate request and refund the wallet draw
// @Tags Certificates
// @Accept json
// @Param id path string true "Request ID"
// @Param payload body map[string]string true "Rejection note"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/requests/{id}/reject [post]
func (h *CertificateHandler) Reject(c *gin.Context) {
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
// @Summary Cancel the authenticated member's own certificate request
// @Tags Certificates
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/requests/{id}/cancel [post]
func (h *CertificateHandler) Cancel(c *gin.Context) {
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
// @Summary Issue the certificate document for an approved request
// @Tags Certificates
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/requests/{id}/fulfil [post]
func (h *CertificateHandler) Fulfil(c *gin.Context) {
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

// Download godoc
// @Summary Get a signed download link for an issued certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/requests/{id}/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	link, err := h.service.Download(c.Request.Context(), c.Param("id"), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, link, nil)
}
