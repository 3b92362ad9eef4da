package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// ExchangeHandler handles the robot's app exchange.
type ExchangeHandler struct {
	ctl *session.Controller
}

// NewExchangeHandler creates a new ExchangeHandler instance.
func NewExchangeHandler(ctl *session.Controller) *ExchangeHandler {
	return &ExchangeHandler{ctl: ctl}
}

// Get returns the catalog, the current selection and the view.
// GET /api/exchange
func (h *ExchangeHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.state())
}

func (h *ExchangeHandler) state() gin.H {
	body := gin.H{
		"catalog": h.ctl.Catalog(),
		"view":    h.ctl.View(),
	}
	if sel, ok := h.ctl.Selection(); ok {
		body["selection"] = sel
	}
	return body
}

// Refresh reloads the catalog. remote_update=true makes the robot refresh
// its own index first.
// POST /api/exchange/refresh
func (h *ExchangeHandler) Refresh(c *gin.Context) {
	remote, _ := strconv.ParseBool(c.Query("remote_update"))
	if _, err := h.ctl.RefreshCatalog(c.Request.Context(), remote); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}

type viewRequest struct {
	View catalog.View `json:"view" binding:"required"`
}

// SetView switches between the installed and available lists.
// PUT /api/exchange/view
func (h *ExchangeHandler) SetView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctl.ShowView(req.View); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}

type nameRequest struct {
	Name string `json:"name"`
}

// Select opens the detail view for an app.
// POST /api/exchange/select
func (h *ExchangeHandler) Select(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	sel, err := h.ctl.SelectExchangeApp(req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

// Deselect closes the detail view.
// DELETE /api/exchange/select
func (h *ExchangeHandler) Deselect(c *gin.Context) {
	h.ctl.Deselect()
	c.JSON(http.StatusOK, h.state())
}

// Details fetches the details of the selected app.
// GET /api/exchange/details
func (h *ExchangeHandler) Details(c *gin.Context) {
	details, err := h.ctl.LoadDetails(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// Install installs or upgrades an app. Without a name the selection is used.
// POST /api/exchange/install
func (h *ExchangeHandler) Install(c *gin.Context) {
	h.change(c, h.ctl.InstallApp)
}

// Uninstall removes an app. Without a name the selection is used.
// POST /api/exchange/uninstall
func (h *ExchangeHandler) Uninstall(c *gin.Context) {
	h.change(c, h.ctl.UninstallApp)
}

func (h *ExchangeHandler) change(c *gin.Context, op func(ctx context.Context, name string) error) {
	var req nameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := op(c.Request.Context(), req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}
