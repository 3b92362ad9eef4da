package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// AppHandler handles the robot's app list and app start/stop.
type AppHandler struct {
	ctl *session.Controller
}

// NewAppHandler creates a new AppHandler instance.
func NewAppHandler(ctl *session.Controller) *AppHandler {
	return &AppHandler{ctl: ctl}
}

// List returns the current app directory. Pass refresh=true to reload it
// from the robot first when the cached list is stale.
// GET /api/apps
func (h *AppHandler) List(c *gin.Context) {
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		snap, err := h.ctl.Refresh(c.Request.Context(), false)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}
	c.JSON(http.StatusOK, h.ctl.Apps())
}

// Refresh reloads the app list from the robot.
// POST /api/apps/refresh
func (h *AppHandler) Refresh(c *gin.Context) {
	snap, err := h.ctl.Refresh(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Start starts an app. When another app runs in registered mode the response
// asks for confirmation with 202.
// POST /api/apps/:name/start
func (h *AppHandler) Start(c *gin.Context) {
	res, err := h.ctl.StartApp(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if res.NeedsConfirmation {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stop stops one app.
// POST /api/apps/:name/stop
func (h *AppHandler) Stop(c *gin.Context) {
	if err := h.ctl.StopApp(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stopped"})
}

// StopAll stops every running app.
// POST /api/apps/stop-all
func (h *AppHandler) StopAll(c *gin.Context) {
	if err := h.ctl.StopAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stopped"})
}
