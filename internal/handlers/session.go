package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// SessionHandler exposes the robot session and the single-app policy.
type SessionHandler struct {
	ctl  *session.Controller
	conn *session.Connector
}

// NewSessionHandler creates a new SessionHandler instance.
func NewSessionHandler(ctl *session.Controller, conn *session.Connector) *SessionHandler {
	return &SessionHandler{ctl: ctl, conn: conn}
}

// Info returns the robot and policy state.
// GET /api/session
func (h *SessionHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Info())
}

// Connect (re)opens the session with the configured robot.
// POST /api/session/connect
func (h *SessionHandler) Connect(c *gin.Context) {
	info, err := h.conn.Connect(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Disconnect closes the session.
// DELETE /api/session
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.conn.Disconnect()
	c.JSON(http.StatusOK, h.ctl.Info())
}

type confirmRequest struct {
	Accept bool `json:"accept"`
}

// Confirm answers the "stop current application?" question.
// POST /api/session/confirm
func (h *SessionHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.ctl.ConfirmStopExisting(c.Request.Context(), req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetMode returns the session mode.
// GET /api/session/mode
func (h *SessionHandler) GetMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.ctl.Info().Policy.Mode})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode switches between registered and developer mode.
// PUT /api/session/mode
func (h *SessionHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	h.ctl.SetMode(mode)
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}
