// Package session ties the app directory, exchange catalog and launch resolver
// to one robot connection and enforces the single-active-app policy.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/directory"
	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

// AppManager is the robot's app manager RPC surface.
type AppManager interface {
	ListApps(ctx context.Context) (models.AppList, error)
	StartApp(ctx context.Context, name string) (models.StartAppResponse, error)
	StopApp(ctx context.Context, name string) (models.StopAppResponse, error)
	GetAppDetails(ctx context.Context, name string) (models.AppDetailsResponse, error)
	GetInstallationState(ctx context.Context, remoteUpdate bool) (models.InstallationState, error)
	InstallApp(ctx context.Context, name string) (models.InstallAppResponse, error)
	UninstallApp(ctx context.Context, name string) (models.UninstallAppResponse, error)
}

// Sink receives session events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// LogWriter keeps the install status log.
type LogWriter interface {
	Append(line string)
}

// Auditor records remote and local actions.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// Options configures a Controller. Robot, Directory, Catalog, Policy and
// Resolver are required.
type Options struct {
	Robot     AppManager
	Directory *directory.Directory
	Catalog   *catalog.Catalog
	Policy    *Policy
	Resolver  *launcher.Resolver
	Events    Sink
	Logs      LogWriter
	Audit     Auditor
	Logger    *zap.Logger
	Now       func() time.Time
}

// StartResult is what a start request led to.
type StartResult struct {
	Outcome           *launcher.Outcome `json:"outcome,omitempty"`
	Running           []string          `json:"running,omitempty"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
}

// Info describes the current session.
type Info struct {
	Robot           models.RobotInfo `json:"robot"`
	Policy          Status           `json:"policy"`
	ExchangeEnabled bool             `json:"exchange_enabled"`
}

// Controller runs user commands and robot notifications against the engine.
// Each method blocks on at most one remote call at a time and reports any
// failure through exactly one error event.
type Controller struct {
	robot    AppManager
	dir      *directory.Directory
	cat      *catalog.Catalog
	policy   *Policy
	resolver *launcher.Resolver
	events   Sink
	logs     LogWriter
	audit    Auditor
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	info models.RobotInfo

	unsubscribe []func()
}

// NewController wires the engine components together.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		robot:    opts.Robot,
		dir:      opts.Directory,
		cat:      opts.Catalog,
		policy:   opts.Policy,
		resolver: opts.Resolver,
		events:   opts.Events,
		logs:     opts.Logs,
		audit:    opts.Audit,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	c.unsubscribe = append(c.unsubscribe,
		c.dir.Subscribe(func(s directory.Snapshot) {
			c.policy.Observe(s)
			c.publish(Event{Kind: EventApps, Data: s})
		}),
		c.cat.Subscribe(func(e catalog.Event) {
			c.publish(Event{Kind: EventCatalog, Data: e})
		}),
	)
	return c
}

// Shutdown detaches the controller from the directory and catalog.
func (c *Controller) Shutdown() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// Open starts a session with a robot and returns its epoch. Push handlers
// must pass this epoch back so that late notifications are dropped.
func (c *Controller) Open(info models.RobotInfo) uint64 {
	epoch := c.policy.Begin()
	c.dir.Reset()
	c.cat.Reset()
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	c.logger.Info("session opened", zap.String("robot", info.Name), zap.Uint64("epoch", epoch))
	c.publish(Event{Kind: EventSession, Message: "opened", Data: c.Info()})
	return epoch
}

// Close ends the session. In-flight completions are discarded.
func (c *Controller) Close() {
	c.policy.End()
	c.dir.Reset()
	c.cat.Reset()
	c.mu.Lock()
	c.info = models.RobotInfo{}
	c.mu.Unlock()
	c.logger.Info("session closed")
	c.publish(Event{Kind: EventSession, Message: "closed", Data: c.Info()})
}

func (c *Controller) Info() Info {
	c.mu.RLock()
	info := c.info
	c.mu.RUnlock()
	return Info{Robot: info, Policy: c.policy.Status(), ExchangeEnabled: info.ExchangeEnabled()}
}

// Apps returns the current directory snapshot.
func (c *Controller) Apps() directory.Snapshot {
	return c.dir.Snapshot()
}

// Catalog returns the current exchange snapshot.
func (c *Controller) Catalog() catalog.Snapshot {
	return c.cat.Snapshot()
}

// SetMode switches between registered and developer mode.
func (c *Controller) SetMode(m Mode) {
	c.policy.SetMode(m)
	c.logger.Info("session mode changed", zap.String("mode", string(m)))
	c.publish(Event{Kind: EventSession, Message: "mode", Data: c.Info()})
}

// Refresh reloads the app list unless the cached one is still fresh.
func (c *Controller) Refresh(ctx context.Context, force bool) (directory.Snapshot, error) {
	epoch, err := c.epoch()
	if err != nil {
		c.fail(ctx, "list_apps", "", err)
		return c.dir.Snapshot(), err
	}
	if !force && !c.dir.NeedsRefresh() {
		return c.dir.Snapshot(), nil
	}

	list, err := c.robot.ListApps(ctx)
	if !c.policy.Current(epoch) {
		return c.dir.Snapshot(), ErrStaleCompletion
	}
	if err != nil {
		err = c.dir.Fail(err)
		c.fail(ctx, "list_apps", "", err)
		return c.dir.Snapshot(), err
	}
	return c.dir.ApplyUpdate(list.AvailableApps, list.RunningApps), nil
}

// HandleAppList applies an app-list notification received during epoch.
func (c *Controller) HandleAppList(epoch uint64, list models.AppList) error {
	if !c.policy.Current(epoch) {
		return ErrStaleCompletion
	}
	c.dir.ApplyUpdate(list.AvailableApps, list.RunningApps)
	return nil
}

// HandleCatalog applies an exchange notification received during epoch.
func (c *Controller) HandleCatalog(epoch uint64, state models.InstallationState) error {
	if !c.policy.Current(epoch) {
		return ErrStaleCompletion
	}
	c.cat.ApplyUpdate(state.AvailableApps, state.InstalledApps)
	return nil
}

// HandleLogLine appends one line of install status output.
func (c *Controller) HandleLogLine(epoch uint64, line string) error {
	if !c.policy.Current(epoch) {
		return ErrStaleCompletion
	}
	if c.logs != nil {
		c.logs.Append(line)
	}
	c.publish(Event{Kind: EventLog, Message: line})
	return nil
}

// StartApp starts name on the robot and launches its client. When another app
// is running in registered mode the result asks for confirmation instead.
func (c *Controller) StartApp(ctx context.Context, name string) (StartResult, error) {
	if _, err := c.epoch(); err != nil {
		c.fail(ctx, "start_app", name, err)
		return StartResult{}, err
	}
	snap := c.dir.Snapshot()
	if _, ok := snap.Find(name); !ok {
		err := fmt.Errorf("%w: %s", ErrAppNotFound, name)
		c.fail(ctx, "start_app", name, err)
		return StartResult{}, err
	}

	ticket, decision, err := c.policy.RequestStart(name, snap)
	if err != nil {
		c.fail(ctx, "start_app", name, err)
		return StartResult{}, err
	}
	if decision == DecisionConfirm {
		running := snap.RunningNames()
		c.publish(Event{
			Kind:    EventConfirmStop,
			App:     name,
			Message: "There is an application already running. Stop the current application?",
			Data:    running,
		})
		return StartResult{NeedsConfirmation: true, Running: running}, nil
	}
	return c.start(ctx, ticket)
}

// ConfirmStopExisting answers the stop-current question. Accepting stops every
// running app and then starts the app that was requested.
func (c *Controller) ConfirmStopExisting(ctx context.Context, accept bool) (StartResult, error) {
	ticket, ok, err := c.policy.Confirm(accept)
	if err != nil {
		c.fail(ctx, "confirm", "", err)
		return StartResult{}, err
	}
	if !ok {
		return StartResult{}, nil
	}
	next, resume, err := c.stop(ctx, ticket)
	if err != nil || !resume {
		return StartResult{}, err
	}
	return c.start(ctx, next)
}

// StopApp stops name on the robot; "*" stops every app.
func (c *Controller) StopApp(ctx context.Context, name string) error {
	ticket, err := c.policy.RequestStop(name)
	if err != nil {
		c.fail(ctx, "stop_app", name, err)
		return err
	}
	_, _, err = c.stop(ctx, ticket)
	return err
}

// StopAll stops every app running on the robot.
func (c *Controller) StopAll(ctx context.Context) error {
	return c.StopApp(ctx, models.StopAllApps)
}

// ClientTerminated is called when a launched client exits.
func (c *Controller) ClientTerminated(app string) {
	c.status(app, "Finished")
}

func (c *Controller) start(ctx context.Context, ticket Ticket) (StartResult, error) {
	snap := c.dir.Snapshot()
	app, ok := snap.Find(ticket.App)
	if !ok {
		err := c.policy.StartFailed(ticket, fmt.Errorf("%w: %s", ErrAppNotFound, ticket.App))
		return StartResult{}, c.settle(ctx, "start_app", ticket.App, err)
	}

	resolved := c.resolver.Resolve(ctx, app)
	if resolved.Kind == launcher.Ambiguous {
		err := c.policy.StartFailed(ticket, &AmbiguousClientError{
			App:        app.Name,
			ClientType: c.resolver.ClientType(),
			Count:      resolved.Count,
		})
		return StartResult{Outcome: &resolved}, c.settle(ctx, "start_app", app.Name, err)
	}

	if !snap.IsRunning(app.Name) {
		resp, err := c.robot.StartApp(ctx, app.Name)
		if err == nil {
			err = robot.StartError(resp)
		}
		if err != nil {
			err = c.policy.StartFailed(ticket, err)
			return StartResult{}, c.settle(ctx, "start_app", app.Name, err)
		}
	}
	if err := c.policy.StartSucceeded(ticket); err != nil {
		return StartResult{}, c.settle(ctx, "start_app", app.Name, err)
	}
	c.record(ctx, "start_app", app.Name, nil, nil)
	c.status(app.Name, "Started")

	if resolved.Kind == launcher.NoClientNeeded {
		return StartResult{Outcome: &resolved}, nil
	}
	out, err := c.resolver.Launch(ctx, app)
	if err != nil {
		c.fail(ctx, "launch", app.Name, err)
		return StartResult{Outcome: &out}, err
	}
	c.record(ctx, "launch", app.Name, nil, map[string]interface{}{"outcome": out.Kind.String()})
	switch out.Kind {
	case launcher.ClientNotInstalled:
		c.publish(Event{Kind: EventInstallOffer, App: app.Name, Message: out.MarketURI, Data: out})
	case launcher.Resolved:
		c.publish(Event{Kind: EventLaunch, App: app.Name, Data: out})
	}
	return StartResult{Outcome: &out}, nil
}

func (c *Controller) stop(ctx context.Context, ticket Ticket) (Ticket, bool, error) {
	resp, err := c.robot.StopApp(ctx, ticket.App)
	if err == nil {
		err = robot.StopError(resp)
	}
	var (
		next   Ticket
		resume bool
	)
	if err != nil {
		next, resume, err = c.policy.StopFailed(ticket, err)
	} else {
		next, resume, err = c.policy.StopSucceeded(ticket)
	}
	if err != nil {
		return Ticket{}, false, c.settle(ctx, "stop_app", ticket.App, err)
	}
	c.record(ctx, "stop_app", ticket.App, nil, nil)
	c.status(ticket.App, "stopped")
	return next, resume, nil
}

// settle reports a failed completion. Stale completions are only logged.
func (c *Controller) settle(ctx context.Context, op, app string, err error) error {
	if errors.Is(err, ErrStaleCompletion) {
		c.logger.Debug("discarding stale completion", zap.String("op", op), zap.String("app", app))
		return err
	}
	c.fail(ctx, op, app, err)
	return err
}

// RefreshCatalog reloads the exchange. remoteUpdate asks the robot to refresh
// its own index first.
func (c *Controller) RefreshCatalog(ctx context.Context, remoteUpdate bool) (catalog.Snapshot, error) {
	epoch, err := c.exchangeEpoch()
	if err != nil {
		c.fail(ctx, "get_installation_state", "", err)
		return c.cat.Snapshot(), err
	}
	state, err := c.robot.GetInstallationState(ctx, remoteUpdate)
	if !c.policy.Current(epoch) {
		return c.cat.Snapshot(), ErrStaleCompletion
	}
	if err != nil {
		c.fail(ctx, "get_installation_state", "", err)
		return c.cat.Snapshot(), err
	}
	return c.cat.ApplyUpdate(state.AvailableApps, state.InstalledApps).Snapshot, nil
}

// SelectExchangeApp opens the detail view for name.
func (c *Controller) SelectExchangeApp(name string) (catalog.Selection, error) {
	sel, err := c.cat.Select(name)
	if err != nil {
		c.fail(context.Background(), "select", name, err)
	}
	return sel, err
}

// Deselect closes the detail view.
func (c *Controller) Deselect() {
	c.cat.Deselect()
}

// Selection returns the selected exchange app.
func (c *Controller) Selection() (catalog.Selection, bool) {
	return c.cat.Selection()
}

// View returns the exchange screen currently shown.
func (c *Controller) View() catalog.View {
	return c.cat.View()
}

// ShowView switches the exchange between its installed and available lists.
func (c *Controller) ShowView(v catalog.View) error {
	switch v {
	case catalog.ViewInstalled:
		c.cat.ShowInstalled()
	case catalog.ViewExchange:
		c.cat.ShowExchange()
	default:
		return fmt.Errorf("%w: %q", catalog.ErrInvalidView, v)
	}
	return nil
}

// LoadDetails fetches the details of the selected exchange app.
func (c *Controller) LoadDetails(ctx context.Context) (catalog.Details, error) {
	sel, ok := c.cat.Selection()
	if !ok {
		return catalog.Details{}, catalog.ErrNoSelection
	}
	epoch, err := c.exchangeEpoch()
	if err != nil {
		c.cat.FailDetails(sel.Name)
		c.fail(ctx, "get_app_details", sel.Name, err)
		return catalog.Details{}, err
	}

	resp, err := c.robot.GetAppDetails(ctx, sel.Name)
	if !c.policy.Current(epoch) {
		return catalog.Details{}, ErrStaleCompletion
	}
	if err != nil {
		c.cat.FailDetails(sel.Name)
		c.fail(ctx, "get_app_details", sel.Name, err)
		return catalog.Details{}, err
	}
	details, err := c.cat.ApplyDetails(sel.Name, resp.App)
	switch {
	case errors.Is(err, catalog.ErrSelectionSuperseded):
		return details, err
	case err != nil:
		c.fail(ctx, "get_app_details", sel.Name, err)
	}
	return details, err
}

// InstallApp installs or upgrades name from the exchange. An empty name means
// the selected app.
func (c *Controller) InstallApp(ctx context.Context, name string) error {
	return c.exchangeOp(ctx, "install_app", name, func(name string) error {
		resp, err := c.robot.InstallApp(ctx, name)
		if err != nil {
			return err
		}
		return robot.InstallError(resp)
	})
}

// UninstallApp removes name from the robot. An empty name means the selected
// app.
func (c *Controller) UninstallApp(ctx context.Context, name string) error {
	return c.exchangeOp(ctx, "uninstall_app", name, func(name string) error {
		resp, err := c.robot.UninstallApp(ctx, name)
		if err != nil {
			return err
		}
		return robot.UninstallError(resp)
	})
}

func (c *Controller) exchangeOp(ctx context.Context, op, name string, call func(string) error) error {
	if name == "" {
		sel, ok := c.cat.Selection()
		if !ok {
			c.fail(ctx, op, "", catalog.ErrNoSelection)
			return catalog.ErrNoSelection
		}
		name = sel.Name
	}
	epoch, err := c.exchangeEpoch()
	if err != nil {
		c.fail(ctx, op, name, err)
		return err
	}

	err = call(name)
	if !c.policy.Current(epoch) {
		return ErrStaleCompletion
	}
	if err != nil {
		c.fail(ctx, op, name, err)
		return err
	}
	c.record(ctx, op, name, nil, nil)
	c.status(name, "Done")

	if _, err := c.RefreshCatalog(ctx, false); err != nil {
		c.logger.Warn("catalog refresh after change failed", zap.String("op", op), zap.Error(err))
	}
	return nil
}

func (c *Controller) epoch() (uint64, error) {
	st := c.policy.Status()
	if !st.Open {
		return 0, ErrSessionClosed
	}
	return st.Epoch, nil
}

func (c *Controller) exchangeEpoch() (uint64, error) {
	epoch, err := c.epoch()
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	enabled := c.info.ExchangeEnabled()
	c.mu.RUnlock()
	if !enabled {
		return 0, ErrExchangeUnavailable
	}
	return epoch, nil
}

func (c *Controller) fail(ctx context.Context, op, app string, err error) {
	class := Classify(err)
	c.logger.Warn("operation failed",
		zap.String("op", op),
		zap.String("app", app),
		zap.String("class", string(class)),
		zap.Error(err))
	c.record(ctx, op, app, err, nil)
	c.publish(Event{Kind: EventError, Op: op, App: app, Class: class, Message: StatusText(err)})
}

func (c *Controller) status(app, msg string) {
	c.publish(Event{Kind: EventStatus, App: app, Message: msg})
}

func (c *Controller) publish(e Event) {
	if c.events == nil {
		return
	}
	e.Time = c.now()
	c.events.Publish(e)
}

func (c *Controller) record(ctx context.Context, action, resource string, err error, details map[string]interface{}) {
	if c.audit == nil {
		return
	}
	c.mu.RLock()
	robotName := c.info.Name
	c.mu.RUnlock()

	entry := &models.AuditEntry{
		Robot:        robotName,
		Action:       action,
		ResourceType: "app",
		ResourceID:   resource,
		Outcome:      "success",
		Details:      details,
	}
	if err != nil {
		entry.Outcome = "failure"
		if entry.Details == nil {
			entry.Details = map[string]interface{}{}
		}
		entry.Details["error"] = err.Error()
		entry.Details["class"] = string(Classify(err))
	}
	if rerr := c.audit.Record(ctx, entry); rerr != nil {
		c.logger.Warn("audit record failed", zap.String("action", action), zap.Error(rerr))
	}
}
