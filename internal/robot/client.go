// Package robot talks to the app manager running on a robot: JSON RPC over
// HTTP for commands and a websocket for push notifications.
package robot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// App manager endpoints, relative to the base URL.
const (
	PathRobotInfo         = "/app_manager/robot_info"
	PathListApps          = "/app_manager/list_apps"
	PathStartApp          = "/app_manager/start_app"
	PathStopApp           = "/app_manager/stop_app"
	PathAppDetails        = "/app_manager/get_app_details"
	PathInstallationState = "/app_manager/get_installation_state"
	PathInstallApp        = "/app_manager/install_app"
	PathUninstallApp      = "/app_manager/uninstall_app"
	PathEvents            = "/app_manager/events"
	userAgent             = "app-chooser/1.0"
	defaultTimeout        = 15 * time.Second
	defaultRetryWaitMin   = 500 * time.Millisecond
	defaultRetryWaitMax   = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	Logger       *zap.Logger
	BaseURL      string
	Timeout      time.Duration
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Retries      int
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64
	Burst     int
}

// Client is the app manager RPC client.
type Client struct {
	resty *resty.Client
	// once sends calls the robot may already have acted on; it never retries.
	once    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	mu      sync.RWMutex
	baseURL string
}

// NewClient builds a client for cfg.BaseURL. The base URL may be empty and set
// later with SetBaseURL when a robot is selected.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = defaultRetryWaitMin
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = defaultRetryWaitMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	transport := retryClient.HTTPClient.Transport

	newResty := func(retries int) *resty.Client {
		r := resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(cfg.RetryWaitMin).
			SetRetryMaxWaitTime(cfg.RetryWaitMax).
			SetHeader("User-Agent", userAgent).
			SetHeader("Content-Type", "application/json").
			SetTransport(transport)
		if retries > 0 {
			r.AddRetryCondition(retryPolicy)
		}
		return r
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{resty: newResty(cfg.Retries), once: newResty(0), limiter: limiter, logger: cfg.Logger}
	c.SetBaseURL(cfg.BaseURL)
	return c
}

// retryPolicy retries connection errors, 429 and 5xx the same way
// retryablehttp does.
func retryPolicy(resp *resty.Response, err error) bool {
	ctx := context.Background()
	var raw *http.Response
	if resp != nil {
		raw = resp.RawResponse
		if resp.Request != nil {
			ctx = resp.Request.Context()
		}
	}
	if err == nil && raw == nil {
		return false
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, raw, err)
	return retry
}

// SetBaseURL points the client at another robot.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.resty.SetBaseURL(c.baseURL)
	c.once.SetBaseURL(c.baseURL)
}

// mutating lists the calls that change robot state. A failed attempt may
// still have taken effect, so they are sent once.
var mutating = map[string]bool{
	PathStartApp:     true,
	PathStopApp:      true,
	PathInstallApp:   true,
	PathUninstallApp: true,
}

// BaseURL returns the current robot base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// EventsURL is the websocket URL of the push channel.
func (c *Client) EventsURL() string {
	u := c.BaseURL()
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + PathEvents
}

// Info fetches the robot name and capabilities.
func (c *Client) Info(ctx context.Context) (models.RobotInfo, error) {
	var out models.RobotInfo
	err := c.do(ctx, "robot_info", http.MethodGet, PathRobotInfo, nil, &out)
	return out, err
}

func (c *Client) ListApps(ctx context.Context) (models.AppList, error) {
	var out models.AppList
	err := c.do(ctx, "list_apps", http.MethodPost, PathListApps, struct{}{}, &out)
	return out, err
}

func (c *Client) StartApp(ctx context.Context, name string) (models.StartAppResponse, error) {
	var out models.StartAppResponse
	err := c.do(ctx, "start_app", http.MethodPost, PathStartApp, models.StartAppRequest{Name: name}, &out)
	return out, err
}

func (c *Client) StopApp(ctx context.Context, name string) (models.StopAppResponse, error) {
	var out models.StopAppResponse
	err := c.do(ctx, "stop_app", http.MethodPost, PathStopApp, models.StopAppRequest{Name: name}, &out)
	return out, err
}

func (c *Client) GetAppDetails(ctx context.Context, name string) (models.AppDetailsResponse, error) {
	var out models.AppDetailsResponse
	err := c.do(ctx, "get_app_details", http.MethodPost, PathAppDetails, models.AppDetailsRequest{Name: name}, &out)
	return out, err
}

func (c *Client) GetInstallationState(ctx context.Context, remoteUpdate bool) (models.InstallationState, error) {
	var out models.InstallationState
	err := c.do(ctx, "get_installation_state", http.MethodPost, PathInstallationState,
		models.InstallationStateRequest{RemoteUpdate: remoteUpdate}, &out)
	return out, err
}

func (c *Client) InstallApp(ctx context.Context, name string) (models.InstallAppResponse, error) {
	var out models.InstallAppResponse
	err := c.do(ctx, "install_app", http.MethodPost, PathInstallApp, models.InstallAppRequest{Name: name}, &out)
	return out, err
}

func (c *Client) UninstallApp(ctx context.Context, name string) (models.UninstallAppResponse, error) {
	var out models.UninstallAppResponse
	err := c.do(ctx, "uninstall_app", http.MethodPost, PathUninstallApp, models.UninstallAppRequest{Name: name}, &out)
	return out, err
}

// do runs one call. Every failure that is not a decoded response comes back
// as a *TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.BaseURL() == "" {
		return &TransportError{Op: op, Err: ErrNotConnected}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
	}

	rc := c.resty
	if mutating[path] {
		rc = c.once
	}
	req := rc.R().SetContext(ctx).SetResult(out)
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("app manager call failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	c.logger.Debug("app manager call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))
	if resp.IsError() {
		return &TransportError{Op: op, Err: fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))}
	}
	if resp.StatusCode() == http.StatusNoContent {
		return &TransportError{Op: op, Err: errors.New("empty response")}
	}
	return nil
}
