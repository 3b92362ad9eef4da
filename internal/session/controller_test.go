package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/directory"
	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

type fakeRobot struct {
	mu        sync.Mutex
	list      models.AppList
	state     models.InstallationState
	details   map[string]*models.ExchangeApp
	startResp models.StartAppResponse
	stopResp  models.StopAppResponse
	install   models.InstallAppResponse
	uninstall models.UninstallAppResponse
	err       error
	calls     []string
	onStart   func()
}

func newFakeRobot() *fakeRobot {
	return &fakeRobot{
		startResp: models.StartAppResponse{Started: true},
		stopResp:  models.StopAppResponse{Stopped: true},
		install:   models.InstallAppResponse{Installed: true},
		uninstall: models.UninstallAppResponse{Uninstalled: true},
		details:   map[string]*models.ExchangeApp{},
	}
}

func (f *fakeRobot) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeRobot) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRobot) ListApps(ctx context.Context) (models.AppList, error) {
	return f.list, f.call("list_apps")
}

func (f *fakeRobot) StartApp(ctx context.Context, name string) (models.StartAppResponse, error) {
	if f.onStart != nil {
		f.onStart()
	}
	return f.startResp, f.call("start_app " + name)
}

func (f *fakeRobot) StopApp(ctx context.Context, name string) (models.StopAppResponse, error) {
	return f.stopResp, f.call("stop_app " + name)
}

func (f *fakeRobot) GetAppDetails(ctx context.Context, name string) (models.AppDetailsResponse, error) {
	return models.AppDetailsResponse{App: f.details[name]}, f.call("get_app_details " + name)
}

func (f *fakeRobot) GetInstallationState(ctx context.Context, remoteUpdate bool) (models.InstallationState, error) {
	return f.state, f.call("get_installation_state")
}

func (f *fakeRobot) InstallApp(ctx context.Context, name string) (models.InstallAppResponse, error) {
	return f.install, f.call("install_app " + name)
}

func (f *fakeRobot) UninstallApp(ctx context.Context, name string) (models.UninstallAppResponse, error) {
	return f.uninstall, f.call("uninstall_app " + name)
}

type fakePlatform struct {
	installed map[string]bool
}

func (p *fakePlatform) LaunchEntry(ctx context.Context, packageID string) (string, bool) {
	if p.installed[packageID] {
		return packageID + "/main", true
	}
	return "", false
}

func (p *fakePlatform) Dispatch(ctx context.Context, req *launcher.LaunchRequest) (launcher.DispatchResult, error) {
	if req.Entry != "" {
		return launcher.Dispatched, nil
	}
	return launcher.NoHandlerFound, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Of(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type memoryAudit struct {
	entries []*models.AuditEntry
}

func (a *memoryAudit) Record(ctx context.Context, e *models.AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type memoryLog struct {
	lines []string
}

func (l *memoryLog) Append(line string) {
	l.lines = append(l.lines, line)
}

type fixture struct {
	ctl   *Controller
	robot *fakeRobot
	sink  *recordingSink
	audit *memoryAudit
	logs  *memoryLog
	epoch uint64
}

func newFixture(t *testing.T, mode Mode) *fixture {
	t.Helper()
	f := &fixture{
		robot: newFakeRobot(),
		sink:  &recordingSink{},
		audit: &memoryAudit{},
		logs:  &memoryLog{},
	}
	platform := &fakePlatform{installed: map[string]bool{"org.ros.nav": true}}
	f.ctl = NewController(Options{
		Robot:     f.robot,
		Directory: directory.New(directory.Options{}),
		Catalog:   catalog.New(catalog.Options{}),
		Policy:    NewPolicy(mode),
		Resolver:  launcher.NewResolver(platform, models.ClientTypeAndroid, nil),
		Events:    f.sink,
		Logs:      f.logs,
		Audit:     f.audit,
	})
	t.Cleanup(f.ctl.Shutdown)
	f.epoch = f.ctl.Open(models.RobotInfo{Name: "turtlebot", ExchangeURL: "http://exchange"})
	return f
}

func (f *fixture) apps(t *testing.T, available []models.RemoteApp, running ...models.RemoteApp) {
	t.Helper()
	f.robot.list = models.AppList{AvailableApps: available, RunningApps: running}
	_, err := f.ctl.Refresh(context.Background(), true)
	require.NoError(t, err)
}

func TestController_StartLaunchesClient(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav")})

	res, err := f.ctl.StartApp(context.Background(), "nav")

	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, launcher.Resolved, res.Outcome.Kind)
	assert.Equal(t, "org.ros.nav/main", res.Outcome.Request.Entry)
	assert.Contains(t, f.robot.Calls(), "start_app nav")
	assert.Equal(t, StateActiveApp, f.ctl.Info().Policy.State)

	status := f.sink.Of(EventStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "Started", status[0].Message)
	assert.Len(t, f.sink.Of(EventLaunch), 1)
}

func TestController_StartOffersInstallForMissingClient(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("teleop")})

	res, err := f.ctl.StartApp(context.Background(), "teleop")

	require.NoError(t, err)
	assert.Equal(t, launcher.ClientNotInstalled, res.Outcome.Kind)
	assert.Equal(t, "market://details?id=org.ros.teleop", res.Outcome.MarketURI)
	offers := f.sink.Of(EventInstallOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, res.Outcome.MarketURI, offers[0].Message)
}

func TestController_AmbiguousClientDoesNotStartRemote(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	twice := remote("nav")
	twice.ClientApps = append(twice.ClientApps, twice.ClientApps[0])
	f.apps(t, []models.RemoteApp{twice})

	_, err := f.ctl.StartApp(context.Background(), "nav")

	var ambiguous *AmbiguousClientError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, 2, ambiguous.Count)
	assert.NotContains(t, f.robot.Calls(), "start_app nav")
	assert.Equal(t, StateIdle, f.ctl.Info().Policy.State)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ClassAmbiguousClient, errs[0].Class)
}

func TestController_StartRejected(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav")})
	f.robot.startResp = models.StartAppResponse{ErrorCode: models.StatusAppInvalid, Message: "app is broken"}

	_, err := f.ctl.StartApp(context.Background(), "nav")

	require.Error(t, err)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ClassRejection, errs[0].Class)
	assert.Equal(t, "app is broken", errs[0].Message)
	assert.Empty(t, f.sink.Of(EventStatus))
	assert.Equal(t, StateIdle, f.ctl.Info().Policy.State)
}

func TestController_MultiAppNotSupported(t *testing.T) {
	f := newFixture(t, ModeDeveloper)
	f.apps(t, []models.RemoteApp{remote("nav"), remote("map")}, remote("nav"))
	f.robot.startResp = models.StartAppResponse{ErrorCode: models.StatusMultiAppNotSupported, Message: "one app only"}

	_, err := f.ctl.StartApp(context.Background(), "map")

	assert.ErrorIs(t, err, ErrMultiAppNotSupported)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ClassMultiApp, errs[0].Class)
	assert.Equal(t, "Multi-App Disabled on Robot", errs[0].Message)
}

func TestController_ConfirmStopExisting(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav"), remote("map")}, remote("map"))

	res, err := f.ctl.StartApp(context.Background(), "nav")
	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, []string{"map"}, res.Running)
	require.Len(t, f.sink.Of(EventConfirmStop), 1)

	res, err = f.ctl.ConfirmStopExisting(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, launcher.Resolved, res.Outcome.Kind)
	calls := f.robot.Calls()
	assert.Equal(t, []string{"stop_app *", "start_app nav"}, calls[len(calls)-2:])
	assert.Equal(t, "nav", f.ctl.Info().Policy.Active)
}

func TestController_StopNotRunningIsSuccess(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav")}, remote("nav"))
	f.robot.stopResp = models.StopAppResponse{ErrorCode: models.StatusNotRunning, Message: "not running"}

	err := f.ctl.StopApp(context.Background(), "nav")

	require.NoError(t, err)
	assert.Empty(t, f.sink.Of(EventError))
	status := f.sink.Of(EventStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "stopped", status[0].Message)
}

func TestController_StopAll(t *testing.T) {
	f := newFixture(t, ModeDeveloper)
	f.apps(t, []models.RemoteApp{remote("nav")}, remote("nav"))

	require.NoError(t, f.ctl.StopAll(context.Background()))

	assert.Contains(t, f.robot.Calls(), "stop_app *")
	assert.Equal(t, StateIdle, f.ctl.Info().Policy.State)
}

func TestController_RefreshTransportFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav")})
	f.robot.err = &robot.TransportError{Op: "list_apps", Err: errors.New("connection refused")}

	snap, err := f.ctl.Refresh(context.Background(), true)

	var unavailable *directory.DirectoryUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, robot.IsTransport(err))
	assert.Len(t, snap.Available(), 1)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ClassTransport, errs[0].Class)
}

func TestController_ClosedSession(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.ctl.Close()

	_, err := f.ctl.Refresh(context.Background(), true)

	assert.ErrorIs(t, err, ErrSessionClosed)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Robot not available", errs[0].Message)

	_, err = f.ctl.StartApp(context.Background(), "nav")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Len(t, f.sink.Of(EventError), 2)
}

func TestController_StaleCompletionDiscarded(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.apps(t, []models.RemoteApp{remote("nav")})
	f.robot.onStart = func() { f.ctl.Close() }

	_, err := f.ctl.StartApp(context.Background(), "nav")

	assert.ErrorIs(t, err, ErrStaleCompletion)
	assert.Empty(t, f.sink.Of(EventError))
	assert.Empty(t, f.sink.Of(EventStatus))
}

func TestController_PushFromOldSessionIgnored(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	old := f.epoch
	f.ctl.Close()
	f.ctl.Open(models.RobotInfo{Name: "turtlebot"})

	err := f.ctl.HandleAppList(old, models.AppList{AvailableApps: []models.RemoteApp{remote("nav")}})

	assert.ErrorIs(t, err, ErrStaleCompletion)
	assert.Empty(t, f.ctl.Apps().Available())
}

func TestController_HandleLogLine(t *testing.T) {
	f := newFixture(t, ModeRegistered)

	require.NoError(t, f.ctl.HandleLogLine(f.epoch, "Downloading nav"))

	assert.Equal(t, []string{"Downloading nav"}, f.logs.lines)
	assert.Len(t, f.sink.Of(EventLog), 1)
}

func TestController_ExchangeFlow(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.robot.state = models.InstallationState{
		AvailableApps: []models.ExchangeApp{{Name: "map", DisplayName: "Map", LatestVersion: "1.0"}},
	}
	f.robot.details["map"] = &models.ExchangeApp{Name: "map", DisplayName: "Map", Description: "mapping"}

	_, err := f.ctl.RefreshCatalog(context.Background(), false)
	require.NoError(t, err)
	sel, err := f.ctl.SelectExchangeApp("map")
	require.NoError(t, err)
	assert.Equal(t, "Map (Not Installed)", sel.Title)

	details, err := f.ctl.LoadDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mapping", details.Description)

	f.robot.state = models.InstallationState{
		InstalledApps: []models.ExchangeApp{{Name: "map", DisplayName: "Map", Version: "1.0", LatestVersion: "1.0"}},
	}
	require.NoError(t, f.ctl.InstallApp(context.Background(), ""))

	sel, ok := f.ctl.cat.Selection()
	require.True(t, ok)
	assert.Equal(t, "Map (Installed)", sel.Title)
	assert.Contains(t, f.robot.Calls(), "install_app map")
	require.NotEmpty(t, f.audit.entries)
	last := f.audit.entries[len(f.audit.entries)-1]
	assert.Equal(t, "install_app", last.Action)
	assert.Equal(t, "success", last.Outcome)
}

func TestController_UninstallRejected(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.robot.uninstall = models.UninstallAppResponse{Message: "in use"}

	err := f.ctl.UninstallApp(context.Background(), "map")

	_, ok := robot.AsRejection(err)
	require.True(t, ok)
	errs := f.sink.Of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "in use", errs[0].Message)
}

func TestController_ExchangeNeedsRobotSupport(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.ctl.Open(models.RobotInfo{Name: "plain"})

	_, err := f.ctl.RefreshCatalog(context.Background(), true)

	assert.ErrorIs(t, err, ErrExchangeUnavailable)
}

func TestController_DetailsFailureRevertsView(t *testing.T) {
	f := newFixture(t, ModeRegistered)
	f.robot.state = models.InstallationState{AvailableApps: []models.ExchangeApp{{Name: "map"}}}
	_, err := f.ctl.RefreshCatalog(context.Background(), false)
	require.NoError(t, err)
	f.ctl.cat.ShowExchange()
	_, err = f.ctl.SelectExchangeApp("map")
	require.NoError(t, err)

	_, err = f.ctl.LoadDetails(context.Background())

	assert.ErrorIs(t, err, catalog.ErrDetailsUnavailable)
	assert.Equal(t, catalog.ViewExchange, f.ctl.cat.View())
}

func TestController_ClientTerminated(t *testing.T) {
	f := newFixture(t, ModeRegistered)

	f.ctl.ClientTerminated("nav")

	status := f.sink.Of(EventStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "Finished", status[0].Message)
}
