package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/models"
	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/response"
)

// OnboardingHandler exposes registry-driven member onboarding.
type OnboardingHandler struct {
	service *service.OnboardingService
}

// NewOnboardingHandler creates a new handler.
func NewOnboardingHandler(svc *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: svc}
}

// Import godoc
// @Summary Import a graduate from the academic registry
// @Description Creates an identity account and a pending member record from the registry transcript
// @Tags Onboarding
// @Accept json
// @Produce json
// @Param payload body service.ImportRequest true "Import payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /onboarding/import [post]
func (h *OnboardingHandler) Import(c *gin.Context) {
	var req service.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}

	result, err := h.service.ImportFromRegistry(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// SearchGraduates godoc
// @Summary Search expected graduates in the registry
// @Tags Onboarding
// @Produce json
// @Param major query string false "Major filter"
// @Param graduation_year query int false "Graduation year filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /onboarding/graduates [get]
func (h *OnboardingHandler) SearchGraduates(c *gin.Context) {
	filter := models.GraduateFilter{
		Major: c.Query("major"),
	}
	filter.GraduationYear, _ = strconv.Atoi(c.Query("graduation_year"))
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	page, err := h.service.SearchExpectedGraduates(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, page, nil)
}

// Calendar godoc
// @Summary Fetch the registry academic calendar
// @Tags Onboarding
// @Produce json
// @Param year query int false "Calendar year"
// @Success 200 {object} response.Envelope
// @Router /onboarding/calendar [get]
func (h *OnboardingHandler) Calendar(c *gin.Context) {
	year, _ := strconv.Atoi(c.Query("year"))
	if year == 0 {
		year = time.Now().UTC().Year()
	}

	items, err := h.service.AcademicCalendar(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil)
}
