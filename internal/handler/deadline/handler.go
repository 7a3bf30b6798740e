package deadline

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/complytrack/alert-engine/internal/handler"
	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/service/scheduler"
	apperrors "github.com/complytrack/alert-engine/pkg/errors"
)

// Handler consumes scheduling triggers from the rest of the system. Each
// event carries the full deadline snapshot.
type Handler struct {
	scheduler scheduler.Service
}

func NewHandler(sched scheduler.Service) *Handler {
	return &Handler{scheduler: sched}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/deadlines/events", h.HandleEvent)
}

func (h *Handler) HandleEvent(c *gin.Context) {
	var event model.DeadlineEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.scheduler.HandleDeadlineEvent(c.Request.Context(), &event, time.Now().UTC()); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(nil))
}
