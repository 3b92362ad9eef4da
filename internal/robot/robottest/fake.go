// Package robottest provides an in-process app manager for tests.
package robottest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AppManager is a scripted robot app manager served over httptest.
type AppManager struct {
	Server *httptest.Server

	mu        sync.Mutex
	info      models.RobotInfo
	apps      []models.RemoteApp
	running   map[string]bool
	order     []string
	available []models.ExchangeApp
	installed []models.ExchangeApp
	multiApp  bool
	failNext  map[string]int
	conns     map[*websocket.Conn]bool
	calls     []string
}

// New starts a fake app manager. Call Close when done.
func New(info models.RobotInfo, apps ...models.RemoteApp) *AppManager {
	gin.SetMode(gin.TestMode)
	m := &AppManager{
		info:     info,
		apps:     apps,
		running:  map[string]bool{},
		failNext: map[string]int{},
		conns:    map[*websocket.Conn]bool{},
	}

	r := gin.New()
	g := r.Group("/app_manager")
	g.GET("/robot_info", m.robotInfo)
	g.POST("/list_apps", m.listApps)
	g.POST("/start_app", m.startApp)
	g.POST("/stop_app", m.stopApp)
	g.POST("/get_app_details", m.appDetails)
	g.POST("/get_installation_state", m.installationState)
	g.POST("/install_app", m.installApp)
	g.POST("/uninstall_app", m.uninstallApp)
	g.GET("/events", m.events)

	m.Server = httptest.NewServer(r)
	return m
}

func (m *AppManager) URL() string {
	return m.Server.URL
}

func (m *AppManager) Close() {
	m.mu.Lock()
	for c := range m.conns {
		c.Close()
	}
	m.mu.Unlock()
	m.Server.Close()
}

// SetMultiApp allows several apps to run at once.
func (m *AppManager) SetMultiApp(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.multiApp = enabled
}

// SetRunning marks apps as running without a start request.
func (m *AppManager) SetRunning(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.markRunning(n)
	}
}

// SetExchange replaces the exchange contents.
func (m *AppManager) SetExchange(available, installed []models.ExchangeApp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	m.installed = installed
}

// FailNext makes the next n calls to path answer 500.
func (m *AppManager) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[path] = n
}

// Calls returns the request paths served so far.
func (m *AppManager) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Running returns the names of running apps in start order.
func (m *AppManager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Subscribers reports how many push connections are open.
func (m *AppManager) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// PushAppList sends the current app list to every subscriber.
func (m *AppManager) PushAppList() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast(robot.TopicAppList, m.appList())
}

// PushLog sends one install status line to every subscriber.
func (m *AppManager) PushLog(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast(robot.TopicInstallStatus, line)
}

// PushRaw sends an arbitrary text frame, for malformed-input tests.
func (m *AppManager) PushRaw(frame string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

func (m *AppManager) track(c *gin.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := c.FullPath()
	m.calls = append(m.calls, path)
	if m.failNext[path] > 0 {
		m.failNext[path]--
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scripted failure"})
		return false
	}
	return true
}

func (m *AppManager) robotInfo(c *gin.Context) {
	if !m.track(c) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.JSON(http.StatusOK, m.info)
}

func (m *AppManager) listApps(c *gin.Context) {
	if !m.track(c) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.JSON(http.StatusOK, m.appList())
}

func (m *AppManager) startApp(c *gin.Context) {
	if !m.track(c) {
		return
	}
	var req models.StartAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, models.StartAppResponse{ErrorCode: models.StatusBadRequest, Message: err.Error()})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(req.Name) == nil {
		c.JSON(http.StatusOK, models.StartAppResponse{ErrorCode: models.StatusNotFound, Message: "No such application: " + req.Name})
		return
	}
	if !m.multiApp && len(m.order) > 0 && !m.running[req.Name] {
		c.JSON(http.StatusOK, models.StartAppResponse{
			ErrorCode: models.StatusMultiAppNotSupported,
			Message:   "an application is already running",
		})
		return
	}
	m.markRunning(req.Name)
	c.JSON(http.StatusOK, models.StartAppResponse{Started: true, Message: "app started"})
	m.broadcast(robot.TopicAppList, m.appList())
}

func (m *AppManager) stopApp(c *gin.Context) {
	if !m.track(c) {
		return
	}
	var req models.StopAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, models.StopAppResponse{ErrorCode: models.StatusBadRequest, Message: err.Error()})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case req.Name == models.StopAllApps:
		if len(m.order) == 0 {
			c.JSON(http.StatusOK, models.StopAppResponse{ErrorCode: models.StatusNotRunning, Message: "no app running"})
			return
		}
		m.running = map[string]bool{}
		m.order = nil
	case !m.running[req.Name]:
		c.JSON(http.StatusOK, models.StopAppResponse{ErrorCode: models.StatusNotRunning, Message: req.Name + " is not running"})
		return
	default:
		delete(m.running, req.Name)
		m.order = remove(m.order, req.Name)
	}
	c.JSON(http.StatusOK, models.StopAppResponse{Stopped: true, Message: "app stopped"})
	m.broadcast(robot.TopicAppList, m.appList())
}

func (m *AppManager) appDetails(c *gin.Context) {
	if !m.track(c) {
		return
	}
	var req models.AppDetailsRequest
	_ = c.ShouldBindJSON(&req)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range [][]models.ExchangeApp{m.installed, m.available} {
		for _, a := range list {
			if a.Name == req.Name {
				app := a.Clone()
				c.JSON(http.StatusOK, models.AppDetailsResponse{App: &app})
				return
			}
		}
	}
	c.JSON(http.StatusOK, models.AppDetailsResponse{})
}

func (m *AppManager) installationState(c *gin.Context) {
	if !m.track(c) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.JSON(http.StatusOK, m.installationStateLocked())
}

func (m *AppManager) installApp(c *gin.Context) {
	if !m.track(c) {
		return
	}
	var req models.InstallAppRequest
	_ = c.ShouldBindJSON(&req)
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := indexOf(m.available, req.Name)
	if idx < 0 {
		if i := indexOf(m.installed, req.Name); i >= 0 && m.installed[i].Upgradable() {
			m.installed[i].Version = m.installed[i].LatestVersion
			c.JSON(http.StatusOK, models.InstallAppResponse{Installed: true})
			m.broadcast(robot.TopicExchange, m.installationStateLocked())
			return
		}
		c.JSON(http.StatusOK, models.InstallAppResponse{Message: "no such app in exchange: " + req.Name})
		return
	}
	app := m.available[idx]
	app.Version = app.LatestVersion
	m.available = append(m.available[:idx:idx], m.available[idx+1:]...)
	m.installed = append(m.installed, app)

	m.broadcast(robot.TopicInstallStatus, "Installing "+req.Name)
	c.JSON(http.StatusOK, models.InstallAppResponse{Installed: true})
	m.broadcast(robot.TopicExchange, m.installationStateLocked())
}

func (m *AppManager) uninstallApp(c *gin.Context) {
	if !m.track(c) {
		return
	}
	var req models.UninstallAppRequest
	_ = c.ShouldBindJSON(&req)
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := indexOf(m.installed, req.Name)
	if idx < 0 {
		c.JSON(http.StatusOK, models.UninstallAppResponse{Message: req.Name + " is not installed"})
		return
	}
	app := m.installed[idx]
	app.Version = ""
	m.installed = append(m.installed[:idx:idx], m.installed[idx+1:]...)
	m.available = append(m.available, app)
	c.JSON(http.StatusOK, models.UninstallAppResponse{Uninstalled: true})
	m.broadcast(robot.TopicExchange, m.installationStateLocked())
}

func (m *AppManager) events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	var sub robot.SubscribeRequest
	if err := conn.ReadJSON(&sub); err != nil {
		conn.Close()
		return
	}
	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	m.mu.Lock()
	delete(m.conns, conn)
	m.mu.Unlock()
	conn.Close()
}

// broadcast must be called with m.mu held.
func (m *AppManager) broadcast(topic robot.Topic, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	for c := range m.conns {
		if err := c.WriteJSON(robot.PushMessage{Topic: topic, Data: raw}); err != nil {
			c.Close()
			delete(m.conns, c)
		}
	}
}

func (m *AppManager) appList() models.AppList {
	out := models.AppList{AvailableApps: []models.RemoteApp{}, RunningApps: []models.RemoteApp{}}
	for _, a := range m.apps {
		out.AvailableApps = append(out.AvailableApps, a.Clone())
	}
	for _, name := range m.order {
		if a := m.find(name); a != nil {
			out.RunningApps = append(out.RunningApps, a.Clone())
		}
	}
	return out
}

func (m *AppManager) installationStateLocked() models.InstallationState {
	out := models.InstallationState{AvailableApps: []models.ExchangeApp{}, InstalledApps: []models.ExchangeApp{}}
	for _, a := range m.available {
		out.AvailableApps = append(out.AvailableApps, a.Clone())
	}
	for _, a := range m.installed {
		out.InstalledApps = append(out.InstalledApps, a.Clone())
	}
	return out
}

func (m *AppManager) find(name string) *models.RemoteApp {
	for i := range m.apps {
		if m.apps[i].Name == name {
			return &m.apps[i]
		}
	}
	return nil
}

func (m *AppManager) markRunning(name string) {
	if !m.running[name] {
		m.running[name] = true
		m.order = append(m.order, name)
	}
}

func indexOf(apps []models.ExchangeApp, name string) int {
	for i, a := range apps {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func remove(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// DropSubscribers closes every push connection, as a robot restart would.
func (m *AppManager) DropSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		c.Close()
		delete(m.conns, c)
	}
}
