package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/models"
	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/export"
	"github.com/open-alumni/portal-api/pkg/response"
)

// MemberHandler wires HTTP endpoints to the member service.
type MemberHandler struct {
	service  *service.MemberService
	exporter *export.CSVExporter
}

// NewMemberHandler creates a new handler.
func NewMemberHandler(svc *service.MemberService) *MemberHandler {
	return &MemberHandler{service: svc, exporter: export.NewCSVExporter()}
}

// List godoc
// @Summary List members
// @Tags Members
// @Produce json
// @Param search query string false "Search by name or registry key"
// @Param status query string false "Lifecycle status filter"
// @Param branch query string false "Branch filter"
// @Param notable query bool false "Notable filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /members [get]
func (h *MemberHandler) List(c *gin.Context) {
	filter := models.MemberFilter{
		Search:    c.Query("search"),
		Status:    models.MemberStatus(c.Query("status")),
		Branch:    c.Query("branch"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("notable"); raw != "" {
		notable := raw == "true"
		filter.Notable = &notable
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	members, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, members, pagination)
}

// Export godoc
// @Summary Download the member directory as CSV
// @Tags Members
// @Produce text/csv
// @Param search query string false "Search by name or registry key"
// @Param status query string false "Lifecycle status filter"
// @Success 200 {string} string "CSV payload"
// @Router /reports/members [get]
func (h *MemberHandler) Export(c *gin.Context) {
	filter := models.MemberFilter{
		Search: c.Query("search"),
		Status: models.MemberStatus(c.Query("status")),
		Branch: c.Query("branch"),
	}
	filter.Page = 1
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "1000"))

	members, _, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := export.Dataset{
		Headers: []string{"registry_key", "full_name", "status", "branch", "notable", "joined_at"},
		Rows:    make([]map[string]string, 0, len(members)),
	}
	for _, member := range members {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"registry_key": member.RegistryKey,
			"full_name":    member.FullName,
			"status":       string(member.Status),
			"branch":       member.Branch,
			"notable":      strconv.FormatBool(member.Notable),
			"joined_at":    member.CreatedAt.UTC().Format("2006-01-02"),
		})
	}

	payload, err := h.exporter.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to render export"))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=members.csv")
	c.Data(http.StatusOK, "text/csv", payload)
}

// Get godoc
// @Summary Get a member with its contacts, educations and experiences
// @Tags Members
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /members/{id} [get]
func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, member, nil)
}

// Me godoc
// @Summary Get the authenticated member's own record
// @Tags Members
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me [get]
func (h *MemberHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	member, err := h.service.GetByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, member, nil)
}

// UpdateProfile godoc
// @Summary Update a member's profile fields
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.UpdateProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /members/{id} [put]
func (h *MemberHandler) UpdateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	member, err := h.service.UpdateProfile(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, member, nil)
}

// AddEmail godoc
// @Summary Add a contact email
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.AddContactRequest true "Email payload"
// @Success 201 {object} response.Envelope
// @Router /members/{id}/emails [post]
func (h *MemberHandler) AddEmail(c *gin.Context) {
	var req service.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contact payload"))
		return
	}

	email, err := h.service.AddEmail(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, email)
}

// SetPrimaryEmail godoc
// @Summary Mark an email as the primary contact
// @Tags Members
// @Param id path string true "Member ID"
// @Param emailId path string true "Email ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/emails/{emailId}/primary [put]
func (h *MemberHandler) SetPrimaryEmail(c *gin.Context) {
	if err := h.service.SetPrimaryEmail(c.Request.Context(), c.Param("id"), c.Param("emailId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveEmail godoc
// @Summary Remove a contact email
// @Tags Members
// @Param id path string true "Member ID"
// @Param emailId path string true "Email ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/emails/{emailId} [delete]
func (h *MemberHandler) RemoveEmail(c *gin.Context) {
	if err := h.service.RemoveEmail(c.Request.Context(), c.Param("id"), c.Param("emailId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddMobile godoc
// @Summary Add a mobile number
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.AddContactRequest true "Mobile payload"
// @Success 201 {object} response.Envelope
// @Router /members/{id}/mobiles [post]
func (h *MemberHandler) AddMobile(c *gin.Context) {
	var req service.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contact payload"))
		return
	}

	mobile, err := h.service.AddMobile(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, mobile)
}

// SetPrimaryMobile godoc
// @Summary Mark a mobile number as primary
// @Tags Members
// @Param id path string true "Member ID"
// @Param mobileId path string true "Mobile ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/mobiles/{mobileId}/primary [put]
func (h *MemberHandler) SetPrimaryMobile(c *gin.Context) {
	if err := h.service.SetPrimaryMobile(c.Request.Context(), c.Param("id"), c.Param("mobileId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMobile godoc
// @Summary Remove a mobile number
// @Tags Members
// @Param id path string true "Member ID"
// @Param mobileId path string true "Mobile ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/mobiles/{mobileId} [delete]
func (h *MemberHandler) RemoveMobile(c *gin.Context) {
	if err := h.service.RemoveMobile(c.Request.Context(), c.Param("id"), c.Param("mobileId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddPhone godoc
// @Summary Add a landline number
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.AddContactRequest true "Phone payload"
// @Success 201 {object} response.Envelope
// @Router /members/{id}/phones [post]
func (h *MemberHandler) AddPhone(c *gin.Context) {
	var req service.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contact payload"))
		return
	}

	phone, err := h.service.AddPhone(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, phone)
}

// AddEducation godoc
// @Summary Add an education entry
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.AddEducationRequest true "Education payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /members/{id}/educations [post]
func (h *MemberHandler) AddEducation(c *gin.Context) {
	var req service.AddEducationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid education payload"))
		return
	}

	entry, err := h.service.AddEducation(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// AddExperience godoc
// @Summary Add a work-history entry
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body models.MemberExperience true "Experience payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /members/{id}/experiences [post]
func (h *MemberHandler) AddExperience(c *gin.Context) {
	var entry models.MemberExperience
	if err := c.ShouldBindJSON(&entry); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid experience payload"))
		return
	}

	created, err := h.service.AddExperience(c.Request.Context(), c.Param("id"), &entry)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, created)
}

// RemoveExperience godoc
// @Summary Remove a work-history entry
// @Tags Members
// @Param id path string true "Member ID"
// @Param entryId path string true "Experience ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/experiences/{entryId} [delete]
func (h *MemberHandler) RemoveExperience(c *gin.Context) {
	if err := h.service.RemoveExperience(c.Request.Context(), c.Param("id"), c.Param("entryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// WalletBalance godoc
// @Summary Read a member's wallet balance
// @Tags Members
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Router /members/{id}/wallet [get]
func (h *MemberHandler) WalletBalance(c *gin.Context) {
	balance, err := h.service.WalletBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"balance": balance}, nil)
}

// CreditWallet godoc
// @Summary Top up a member's wallet
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.CreditWalletRequest true "Credit payload"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/wallet/credit [post]
func (h *MemberHandler) CreditWallet(c *gin.Context) {
	var req service.CreditWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit payload"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}

	if err := h.service.CreditWallet(c.Request.Context(), c.Param("id"), req, actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approve godoc
// @Summary Approve a pending member
// @Tags Members
// @Param id path string true "Member ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /members/{id}/approve [post]
func (h *MemberHandler) Approve(c *gin.Context) {
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
// @Summary Reject a member with a reason
// @Tags Members
// @Accept json
// @Param id path string true "Member ID"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /members/{id}/reject [post]
func (h *MemberHandler) Reject(c *gin.Context) {
	var req service.DecisionRequest
	_ = c.ShouldBindJSON(&req)

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Reject(c.Request.Context(), c.Param("id"), req, actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Ban godoc
// @Summary Ban a member with a reason
// @Tags Members
// @Accept json
// @Param id path string true "Member ID"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /members/{id}/ban [post]
func (h *MemberHandler) Ban(c *gin.Context) {
	var req service.DecisionRequest
	_ = c.ShouldBindJSON(&req)

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Ban(c.Request.Context(), c.Param("id"), req, actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetNotable godoc
// @Summary Toggle a member's notable flag
// @Tags Members
// @Accept json
// @Param id path string true "Member ID"
// @Param payload body map[string]bool true "Notable payload"
// @Success 204 {object} response.Envelope
// @Router /members/{id}/notable [put]
func (h *MemberHandler) SetNotable(c *gin.Context) {
	var payload struct {
		Notable bool `json:"notable"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.SetNotable(c.Request.Context(), c.Param("id"), payload.Notable); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Soft-delete a member record
// @Tags Members
// @Param id path string true "Member ID"
// @Success 204 {object} response.Envelope
// @Router /members/{id} [delete]
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
