package webhook

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/handler"
	alertsvc "github.com/complytrack/alert-engine/internal/service/alert"
	apperrors "github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
)

// Handler normalizes provider callbacks into state machine events.
// Provider payloads are treated as opaque JSON reduced to the handful of
// fields the engine needs; anything malformed gets a 400 so the provider
// retries, anything duplicate gets a 200 so it stops.
type Handler struct {
	alerts   alertsvc.Service
	logger   *logger.Logger
	validate *validator.Validate
}

func NewHandler(alerts alertsvc.Service, logger *logger.Logger) *Handler {
	return &Handler{alerts: alerts, logger: logger, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/email", h.HandleEmailEvent)
	r.POST("/webhooks/sms", h.HandleSMSEvent)
	r.POST("/webhooks/sms/inbound", h.HandleInboundSMS)
}

// emailEvent carries the alert id in the provider tag set at send time.
type emailEvent struct {
	Event   string `json:"event" validate:"required,oneof=delivered bounced complained"`
	AlertID string `json:"alert_id" validate:"required,uuid"`
	Reason  string `json:"reason"`
}

func (h *Handler) HandleEmailEvent(c *gin.Context) {
	var event emailEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.validate.Struct(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	alertID, _ := uuid.Parse(event.AlertID)

	var err error
	switch event.Event {
	case "delivered":
		err = h.alerts.HandleDelivered(c.Request.Context(), alertID)
	case "bounced", "complained":
		reason := event.Reason
		if reason == "" {
			reason = "email " + event.Event
		}
		err = h.alerts.HandleDeliveryFailure(c.Request.Context(), alertID, reason)
	}
	h.respond(c, err)
}

type smsEvent struct {
	MessageID string `json:"message_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=delivered failed undelivered"`
}

func (h *Handler) HandleSMSEvent(c *gin.Context) {
	var event smsEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.validate.Struct(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	err := h.alerts.HandleProviderMessageEvent(c.Request.Context(), event.MessageID, event.Status)
	h.respond(c, err)
}

type inboundSMS struct {
	From string `json:"from" validate:"required"`
	Body string `json:"body"`
}

func (h *Handler) HandleInboundSMS(c *gin.Context) {
	var msg inboundSMS
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.validate.Struct(&msg); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	err := h.alerts.HandleInboundSMS(c.Request.Context(), msg.From, msg.Body)
	h.respond(c, err)
}

func (h *Handler) respond(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
	case errors.Is(err, apperrors.ErrDuplicateEvent):
		// Out-of-order or duplicate provider delivery: absorbed.
		h.logger.Debug("absorbed duplicate webhook event")
		c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			if appErr.Code == apperrors.ErrNotFound {
				// The alert this event references is not ours to track; a
				// provider retry cannot fix that.
				h.logger.Debug("webhook event for unknown alert")
				c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
				return
			}
			c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
	}
}
