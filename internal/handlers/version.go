package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/version"
)

type VersionHandler struct{}

func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// Get returns the build information.
// GET /api/version
func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}
