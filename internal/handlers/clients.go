package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/platform"
	"github.com/pandeptwidyaop/app-chooser/internal/services"
	"github.com/pandeptwidyaop/app-chooser/internal/validation"
)

// ProcessLister reports clients started on this host.
type ProcessLister interface {
	Processes(ctx context.Context) []platform.ClientProcess
}

// ClientHandler manages the registry of local client packages.
type ClientHandler struct {
	clientService *services.ClientService
	processes     ProcessLister
}

// NewClientHandler creates a new ClientHandler instance. processes may be nil
// when clients do not run as host processes.
func NewClientHandler(clientService *services.ClientService, processes ProcessLister) *ClientHandler {
	return &ClientHandler{clientService: clientService, processes: processes}
}

// List returns all registered clients.
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.clientService.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clients)
}

// Get returns a single client by ID.
func (h *ClientHandler) Get(c *gin.Context) {
	client, err := h.clientService.GetByID(c.Param("id"))
	if err != nil {
		h.error(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// Create registers a client package.
func (h *ClientHandler) Create(c *gin.Context) {
	var req models.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateCreate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.DisplayName = validation.SanitizeString(req.DisplayName)

	client, err := h.clientService.Create(&req)
	if err != nil {
		h.error(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// Update changes a registered client.
func (h *ClientHandler) Update(c *gin.Context) {
	var req models.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateUpdate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.DisplayName = validation.SanitizeString(req.DisplayName)

	client, err := h.clientService.Update(c.Param("id"), &req)
	if err != nil {
		h.error(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// Delete removes a client.
func (h *ClientHandler) Delete(c *gin.Context) {
	if err := h.clientService.Delete(c.Param("id")); err != nil {
		h.error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "client deleted"})
}

// Processes lists running client processes.
// GET /api/clients/processes
func (h *ClientHandler) Processes(c *gin.Context) {
	if h.processes == nil {
		c.JSON(http.StatusOK, []platform.ClientProcess{})
		return
	}
	c.JSON(http.StatusOK, h.processes.Processes(c.Request.Context()))
}

func (h *ClientHandler) error(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
	case errors.Is(err, services.ErrClientExists):
		c.JSON(http.StatusConflict, gin.H{"error": "client already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
