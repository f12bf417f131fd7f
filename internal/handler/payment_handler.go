package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-alumni/portal-api/internal/service"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/response"
)

// PaymentHandler receives asynchronous gateway callbacks.
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

type gatewayCallback struct {
	GatewayRef string `json:"gateway_ref" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

// Callback godoc
// @Summary Payment gateway callback
// @Description Settles a pending charge; replayed callbacks are acknowledged without effect
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body gatewayCallback true "Callback payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	var payload gatewayCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid callback payload"))
		return
	}

	var success bool
	switch strings.ToUpper(payload.Status) {
	case "SUCCESS", "CONFIRMED", "PAID":
		success = true
	case "FAILED", "EXPIRED", "DECLINED":
		success = false
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown callback status"))
		return
	}

	if err := h.service.HandleCallback(c.Request.Context(), payload.GatewayRef, success); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"acknowledged": true}, nil)
}
