package preference

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/handler"
	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/service/preference"
	"github.com/complytrack/alert-engine/internal/service/scheduler"
	"github.com/complytrack/alert-engine/pkg/logger"
)

type Handler struct {
	service   preference.Service
	scheduler scheduler.Service
	logger    *logger.Logger
}

func NewHandler(service preference.Service, sched scheduler.Service, logger *logger.Logger) *Handler {
	return &Handler{service: service, scheduler: sched, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	prefs := r.Group("/preferences")
	prefs.GET("", h.GetPreferences)
	prefs.PATCH("", h.PatchPreferences)
}

func scope(c *gin.Context) (uuid.UUID, *uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Query("organization_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return uuid.Nil, nil, false
	}

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
			return uuid.Nil, nil, false
		}
		userID = &id
	}
	return orgID, userID, true
}

func (h *Handler) GetPreferences(c *gin.Context) {
	orgID, userID, ok := scope(c)
	if !ok {
		return
	}

	prefs, err := h.service.Get(c.Request.Context(), orgID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}

func (h *Handler) PatchPreferences(c *gin.Context) {
	orgID, userID, ok := scope(c)
	if !ok {
		return
	}

	var patch model.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	prefs, err := h.service.Patch(c.Request.Context(), orgID, userID, &patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	// Changed preferences reshape pending alerts for the whole scope.
	if err := h.scheduler.RescheduleScope(c.Request.Context(), orgID, userID, time.Now().UTC()); err != nil {
		h.logger.Error(err, "failed to reschedule after preference change",
			"organization_id", orgID.String())
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}
