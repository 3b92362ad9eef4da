package models

// Status codes reported by the robot app manager.
const (
	StatusSuccess              = 0
	StatusBadRequest           = 400
	StatusNotFound             = 404
	StatusNotRunning           = 405
	StatusInternalError        = 500
	StatusAppInvalid           = 501
	StatusMultiAppNotSupported = 502
)

// StopAllApps is the app name that asks the robot to stop every running app.
const StopAllApps = "*"

// AppList is both the ListApps response and the app-list push notification.
type AppList struct {
	AvailableApps []RemoteApp `json:"available_apps"`
	RunningApps   []RemoteApp `json:"running_apps"`
}

// InstallationState is both the GetInstallationState response and the
// exchange-catalog push notification.
type InstallationState struct {
	AvailableApps []ExchangeApp `json:"available_apps"`
	InstalledApps []ExchangeApp `json:"installed_apps"`
}

type StartAppRequest struct {
	Name string `json:"name"`
}

type StartAppResponse struct {
	Started   bool   `json:"started"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

type StopAppRequest struct {
	Name string `json:"name"`
}

type StopAppResponse struct {
	Stopped   bool   `json:"stopped"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

type AppDetailsRequest struct {
	Name string `json:"name"`
}

type AppDetailsResponse struct {
	App *ExchangeApp `json:"app"`
}

type InstallationStateRequest struct {
	RemoteUpdate bool `json:"remote_update"`
}

type InstallAppRequest struct {
	Name string `json:"name"`
}

type InstallAppResponse struct {
	Installed bool   `json:"installed"`
	Message   string `json:"message"`
}

type UninstallAppRequest struct {
	Name string `json:"name"`
}

type UninstallAppResponse struct {
	Uninstalled bool   `json:"uninstalled"`
	Message     string `json:"message"`
}

// RobotInfo describes the connected robot as advertised by its app manager.
type RobotInfo struct {
	Name        string `json:"name"`
	ExchangeURL string `json:"exchange_url,omitempty"`
}

// ExchangeEnabled reports whether the robot advertises an app exchange.
func (r RobotInfo) ExchangeEnabled() bool {
	return r.ExchangeURL != ""
}
