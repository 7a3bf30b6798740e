package alert

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/handler"
	"github.com/complytrack/alert-engine/internal/model"
	alertsvc "github.com/complytrack/alert-engine/internal/service/alert"
	apperrors "github.com/complytrack/alert-engine/pkg/errors"
)

type Handler struct {
	service alertsvc.Service
}

func NewHandler(service alertsvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	alerts.GET("", h.ListAlerts)
	alerts.GET("/:id", h.GetAlert)
	alerts.GET("/:id/history", h.GetHistory)
	alerts.POST("/:id/snooze", h.SnoozeAlert)
	alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return
	}
	p = p.Normalize()

	var (
		views []*model.AlertView
		total int64
		err   error
	)
	switch {
	case c.Query("deadline_id") != "":
		deadlineID, parseErr := uuid.Parse(c.Query("deadline_id"))
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid deadline ID"))
			return
		}
		views, total, err = h.service.ListByDeadline(c.Request.Context(), deadlineID, p)
	case c.Query("organization_id") != "":
		orgID, parseErr := uuid.Parse(c.Query("organization_id"))
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
			return
		}
		views, total, err = h.service.ListByOrganization(c.Request.Context(), orgID, p)
	default:
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("deadline_id or organization_id is required"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(&handler.ListResponse{
		Items:    views,
		Total:    total,
		Page:     p.Page,
		PageSize: p.PageSize,
	}))
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert ID"))
		return
	}

	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert ID"))
		return
	}

	entries, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

type snoozeRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

func (h *Handler) SnoozeAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert ID"))
		return
	}

	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Snooze(c.Request.Context(), id, req.Until); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"snoozed_until": req.Until}))
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid alert ID"))
		return
	}

	err = h.service.Acknowledge(c.Request.Context(), id, model.AckMethodInAppButton)
	if errors.Is(err, apperrors.ErrDuplicateEvent) {
		// Already acknowledged (or past it): idempotent success.
		c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
}
