package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/response"
)

// AdvisingHandler wires HTTP endpoints to advising slots and career timeslots.
type AdvisingHandler struct {
	service *service.AdvisingService
}

// NewAdvisingHandler creates a new handler.
func NewAdvisingHandler(svc *service.AdvisingService) *AdvisingHandler {
	return &AdvisingHandler{service: svc}
}

// CreateSlot godoc
// @Summary Create an advising slot
// @Tags Advising
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /advising/slots [post]
func (h *AdvisingHandler) CreateSlot(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, slot)
}

// ListSlots godoc
// @Summary List upcoming advising slots
// @Tags Advising
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /advising/slots [get]
func (h *AdvisingHandler) ListSlots(c *gin.Context) {
	slots, err := h.service.ListSlots(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, slots, nil)
}

// Book godoc
// @Summary Book an advising slot for the authenticated member
// @Tags Advising
// @Produce json
// @Param id path string true "Slot ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /advising/slots/{id}/book [post]
func (h *AdvisingHandler) Book(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Book(c.Request.Context(), c.Param("id"), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, session)
}

// CancelSession godoc
// @Summary Cancel the authenticated member's advising session
// @Tags Advising
// @Param id path string true "Slot ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /advising/slots/{id}/book [delete]
func (h *AdvisingHandler) CancelSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.CancelSession(c.Request.Context(), c.Param("id"), claims.MemberID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MySessions godoc
// @Summary List the authenticated member's advising sessions
// @Tags Advising
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/sessions [get]
func (h *AdvisingHandler) MySessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.MemberSessions(c.Request.Context(), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// SlotAvailability godoc
// @Summary Read remaining capacity for an advising slot
// @Tags Advising
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /advising/slots/{id}/availability [get]
func (h *AdvisingHandler) SlotAvailability(c *gin.Context) {
	availability, err := h.service.SlotAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, availability, nil)
}

// CreateTimeslot godoc
// @Summary Create a career-services timeslot
// @Tags Career
// @Accept json
// @Produce json
// @Param payload body service.CreateTimeslotRequest true "Timeslot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /career/timeslots [post]
func (h *AdvisingHandler) CreateTimeslot(c *gin.Context) {
	var req service.CreateTimeslotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timeslot payload"))
		return
	}

	timeslot, err := h.service.CreateTimeslot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, timeslot)
}

// ListTimeslots godoc
// @Summary List career-services timeslots
// @Tags Career
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /career/timeslots [get]
func (h *AdvisingHandler) ListTimeslots(c *gin.Context) {
	timeslots, err := h.service.ListTimeslots(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, timeslots, nil)
}

// Subscribe godoc
// @Summary Subscribe the authenticated member to a career timeslot
// @Tags Career
// @Produce json
// @Param id path string true "Timeslot ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /career/timeslots/{id}/subscribe [post]
func (h *AdvisingHandler) Subscribe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	subscription, err := h.service.Subscribe(c.Request.Context(), c.Param("id"), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, subscription)
}

// Unsubscribe godoc
// @Summary Release the authenticated member's career timeslot seat
// @Tags Career
// @Param id path string true "Timeslot ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /career/timeslots/{id}/subscribe [delete]
func (h *AdvisingHandler) Unsubscribe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Unsubscribe(c.Request.Context(), c.Param("id"), claims.MemberID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MySubscriptions godoc
// @Summary List the authenticated member's career subscriptions
// @Tags Career
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/subscriptions [get]
func (h *AdvisingHandler) MySubscriptions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	subscriptions, err := h.service.MemberSubscriptions(c.Request.Context(), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, subscriptions, nil)
}

// TimeslotAvailability godoc
// @Summary Read remaining capacity for a career timeslot
// @Tags Career
// @Produce json
// @Param id path string true "Timeslot ID"
// @Success 200 {object} response.Envelope
// @Router /career/timeslots/{id}/availability [get]
func (h *AdvisingHandler) TimeslotAvailability(c *gin.Context) {
	availability, err := h.service.TimeslotAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, availability, nil)
}
