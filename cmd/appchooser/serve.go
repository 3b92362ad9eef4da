package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/config"
	"github.com/pandeptwidyaop/app-chooser/internal/database"
	"github.com/pandeptwidyaop/app-chooser/internal/directory"
	"github.com/pandeptwidyaop/app-chooser/internal/handlers"
	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/logging"
	"github.com/pandeptwidyaop/app-chooser/internal/platform"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
	"github.com/pandeptwidyaop/app-chooser/internal/router"
	"github.com/pandeptwidyaop/app-chooser/internal/services"
	"github.com/pandeptwidyaop/app-chooser/internal/session"
	"github.com/pandeptwidyaop/app-chooser/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the app chooser daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// hostPlatform is a launcher.Platform whose exit callback can be attached
// once the controller exists.
type hostPlatform interface {
	launcher.Platform
	SetOnExit(platform.ExitFunc)
}

func newPlatform(cfg *config.Config, clients *services.ClientService, logger *zap.Logger) (hostPlatform, handlers.ProcessLister, func(), error) {
	switch cfg.Platform.Driver {
	case platform.DriverDocker:
		p, err := platform.NewDockerPlatform(platform.DockerOptions{
			Logger:      logger,
			LabelPrefix: cfg.Platform.LabelPrefix,
			Network:     cfg.Platform.Network,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return p, nil, func() { _ = p.Close() }, nil
	case platform.DriverExec:
		p := platform.NewExecPlatform(platform.ExecOptions{
			Registry: clients,
			Logger:   logger,
			Env:      cfg.Platform.Env,
		})
		return p, p, func() { p.Shutdown(context.Background()) }, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: %s", platform.ErrUnknownDriver, cfg.Platform.Driver)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	clients := services.NewClientService(db)
	audit := services.NewAuditService(db)
	logs := services.NewLogStream(cfg.LogBuffer)
	hub := services.NewEventHub()

	host, processes, closePlatform, err := newPlatform(cfg, clients, logger.Named("platform"))
	if err != nil {
		return err
	}
	defer closePlatform()

	mode, err := session.ParseMode(cfg.Session.Mode)
	if err != nil {
		return err
	}

	client := robot.NewClient(robot.Config{
		Logger:       logger.Named("robot"),
		BaseURL:      cfg.Robot.BaseURL,
		Timeout:      cfg.Robot.Timeout,
		RetryWaitMin: cfg.Robot.RetryWaitMin,
		RetryWaitMax: cfg.Robot.RetryWaitMax,
		Retries:      cfg.Robot.Retries,
		RateLimit:    cfg.Robot.RateLimit,
		Burst:        cfg.Robot.Burst,
	})

	var push session.Pusher
	if !cfg.Robot.DisablePush {
		url := cfg.Robot.PushURL
		if url == "" {
			url = client.EventsURL()
		}
		push = robot.NewSubscriber(robot.SubscriberOptions{
			Logger:     logger.Named("push"),
			URL:        url,
			MinBackoff: cfg.Robot.PushMinBackoff,
			MaxBackoff: cfg.Robot.PushMaxBackoff,
		})
	}

	ctl := session.NewController(session.Options{
		Robot: client,
		Directory: directory.New(directory.Options{
			ClientType: cfg.Session.ClientType,
			TTL:        cfg.Session.CacheTTL,
			Logger:     logger.Named("directory"),
		}),
		Catalog:  catalog.New(catalog.Options{Logger: logger.Named("catalog")}),
		Policy:   session.NewPolicy(mode),
		Resolver: launcher.NewResolver(host, cfg.Session.ClientType, logger.Named("launcher")),
		Events:   hub,
		Logs:     logs,
		Audit:    audit,
		Logger:   logger.Named("session"),
	})
	defer ctl.Shutdown()
	host.SetOnExit(ctl.ClientTerminated)

	conn := session.NewConnector(ctl, client, push, logger.Named("session"))
	defer conn.Disconnect()

	if cfg.Robot.BaseURL != "" {
		if _, err := conn.Connect(ctx); err != nil {
			logger.Warn("robot not available, connect later through the API",
				zap.String("robot", cfg.Robot.BaseURL), zap.Error(err))
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.New(cfg, router.Deps{
		Controller: ctl,
		Connector:  conn,
		Clients:    clients,
		Audit:      audit,
		Logs:       logs,
		Hub:        hub,
		Processes:  processes,
		Logger:     logger,
		Done:       ctx.Done(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("appchooser starting",
			zap.String("version", version.Version),
			zap.String("addr", srv.Addr),
			zap.String("path_prefix", cfg.Server.PathPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	return nil
}
