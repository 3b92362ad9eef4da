package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/services"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new AuditHandler instance.
func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// List returns audit entries, newest first.
// GET /api/audit?action=&robot=&limit=&offset=
func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := h.auditService.GetLogs(c.Request.Context(), services.AuditFilter{
		Action: c.Query("action"),
		Robot:  c.Query("robot"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}
