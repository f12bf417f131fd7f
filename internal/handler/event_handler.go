package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/models"
	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/export"
	"github.com/open-alumni/portal-api/pkg/response"
)

// EventHandler wires HTTP endpoints to the event service.
type EventHandler struct {
	service  *service.EventService
	exporter *export.CSVExporter
}

// NewEventHandler creates a new handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc, exporter: export.NewCSVExporter()}
}

// Create godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	event, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, event)
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param search query string false "Search by title"
// @Param from query string false "Start window (RFC3339)"
// @Param to query string false "End window (RFC3339)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := models.EventFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &t
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	events, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, event, nil)
}

// Register godoc
// @Summary Register the authenticated member for an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *EventHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	registration, err := h.service.Register(c.Request.Context(), c.Param("id"), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, registration)
}

// CancelRegistration godoc
// @Summary Cancel the authenticated member's registration
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [delete]
func (h *EventHandler) CancelRegistration(c *gin.Context) {
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

// Registrations godoc
// @Summary List registrations for an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/registrations [get]
func (h *EventHandler) Registrations(c *gin.Context) {
	registrations, err := h.service.Registrations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, registrations, nil)
}

// ExportRegistrations godoc
// @Summary Download event registrations as CSV
// @Tags Events
// @Produce text/csv
// @Param id path string true "Event ID"
// @Success 200 {string} string "CSV payload"
// @Router /events/{id}/registrations/export [get]
func (h *EventHandler) ExportRegistrations(c *gin.Context) {
	registrations, err := h.service.Registrations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := export.Dataset{
		Headers: []string{"ticket_code", "member_id", "status", "registered_at"},
		Rows:    make([]map[string]string, 0, len(registrations)),
	}
	for _, reg := range registrations {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ticket_code":   reg.TicketCode,
			"member_id":     reg.MemberID,
			"status":        string(reg.Status),
			"registered_at": reg.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := h.exporter.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to render export"))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=registrations.csv")
	c.Data(http.StatusOK, "text/csv", payload)
}

// MyRegistrations godoc
// @Summary List the authenticated member's event registrations
// @Tags Events
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/registrations [get]
func (h *EventHandler) MyRegistrations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.MemberID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	registrations, err := h.service.MemberRegistrations(c.Request.Context(), claims.MemberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, registrations, nil)
}

// Availability godoc
// @Summary Read remaining capacity for an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/availability [get]
func (h *EventHandler) Availability(c *gin.Context) {
	availability, err := h.service.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, availability, nil)
}
