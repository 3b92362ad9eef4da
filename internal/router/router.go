// Package router assembles the gin engine of the local API.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/config"
	"github.com/pandeptwidyaop/app-chooser/internal/handlers"
	"github.com/pandeptwidyaop/app-chooser/internal/middleware"
	"github.com/pandeptwidyaop/app-chooser/internal/services"
	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// Deps are the components the handlers serve.
type Deps struct {
	Controller *session.Controller
	Connector  *session.Connector
	Clients    *services.ClientService
	Audit      *services.AuditService
	Logs       *services.LogStream
	Hub        *services.EventHub
	Processes  handlers.ProcessLister
	Logger     *zap.Logger
	// Done stops background middleware work.
	Done <-chan struct{}
}

func New(cfg *config.Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.Server.PathPrefix
	if prefix == "/" {
		prefix = ""
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger.Named("http")))
	r.Use(middleware.PathPrefix(prefix))
	r.Use(middleware.SecurityHeaders(prefix + "/api"))

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 5*time.Minute)
	if deps.Done != nil {
		go limiter.Cleanup(deps.Done)
	}

	sessionHandler := handlers.NewSessionHandler(deps.Controller, deps.Connector)
	appHandler := handlers.NewAppHandler(deps.Controller)
	exchangeHandler := handlers.NewExchangeHandler(deps.Controller)
	clientHandler := handlers.NewClientHandler(deps.Clients, deps.Processes)
	auditHandler := handlers.NewAuditHandler(deps.Audit)
	logHandler := handlers.NewLogHandler(deps.Logs)
	eventHandler := handlers.NewEventHandler(deps.Controller, deps.Hub, logger.Named("events"))
	versionHandler := handlers.NewVersionHandler()

	api := r.Group(prefix + "/api")
	api.GET("/version", versionHandler.Get)

	// Long-lived streams stay outside the rate limit and body limit
	api.GET("/events", eventHandler.HandleWebSocket)
	api.GET("/logs/stream", logHandler.Stream)

	limited := api.Group("")
	limited.Use(limiter.Middleware(), middleware.BodySizeLimit(cfg.Server.MaxBodySize))
	{
		limited.GET("/session", sessionHandler.Info)
		limited.DELETE("/session", sessionHandler.Disconnect)
		limited.POST("/session/connect", sessionHandler.Connect)
		limited.POST("/session/confirm", sessionHandler.Confirm)
		limited.GET("/session/mode", sessionHandler.GetMode)
		limited.PUT("/session/mode", sessionHandler.SetMode)

		limited.GET("/apps", appHandler.List)
		limited.POST("/apps/refresh", appHandler.Refresh)
		limited.POST("/apps/stop-all", appHandler.StopAll)
		limited.POST("/apps/:name/start", appHandler.Start)
		limited.POST("/apps/:name/stop", appHandler.Stop)

		limited.GET("/exchange", exchangeHandler.Get)
		limited.POST("/exchange/refresh", exchangeHandler.Refresh)
		limited.PUT("/exchange/view", exchangeHandler.SetView)
		limited.POST("/exchange/select", exchangeHandler.Select)
		limited.DELETE("/exchange/select", exchangeHandler.Deselect)
		limited.GET("/exchange/details", exchangeHandler.Details)
		limited.POST("/exchange/install", exchangeHandler.Install)
		limited.POST("/exchange/uninstall", exchangeHandler.Uninstall)

		limited.GET("/clients", clientHandler.List)
		limited.POST("/clients", clientHandler.Create)
		limited.GET("/clients/processes", clientHandler.Processes)
		limited.GET("/clients/:id", clientHandler.Get)
		limited.PUT("/clients/:id", clientHandler.Update)
		limited.DELETE("/clients/:id", clientHandler.Delete)

		limited.GET("/audit", auditHandler.List)

		limited.GET("/logs", logHandler.Lines)
		limited.DELETE("/logs", logHandler.Clear)
	}

	if prefix != "" {
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, prefix+"/api/session")
		})
	}

	return r
}
