package robot

import (
	"errors"
	"fmt"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// ErrNotConnected is returned when no robot base URL is configured.
var ErrNotConnected = errors.New("robot not available")

// TransportError means the app manager could not be reached or answered with
// something that is not a valid response.
type TransportError struct {
	Err error
	Op  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: cannot contact robot: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Rejection is a well-formed response that reports failure.
type Rejection struct {
	Op      string
	Message string
	Code    int
}

func (e *Rejection) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected (code %d)", e.Op, e.Code)
	}
	return e.Message
}

// NotRunning reports a stop request for an app that was not running.
func (e *Rejection) NotRunning() bool {
	return e.Code == models.StatusNotRunning
}

// MultiAppNotSupported reports a start refused because the robot runs one app
// at a time.
func (e *Rejection) MultiAppNotSupported() bool {
	return e.Code == models.StatusMultiAppNotSupported
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsRejection returns the Rejection wrapped in err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// StartError converts a StartApp response into an error, or nil when the app
// started.
func StartError(resp models.StartAppResponse) error {
	if resp.Started {
		return nil
	}
	return &Rejection{Op: "start_app", Code: resp.ErrorCode, Message: resp.Message}
}

// StopError converts a StopApp response into an error, or nil when the app
// stopped.
func StopError(resp models.StopAppResponse) error {
	if resp.Stopped {
		return nil
	}
	return &Rejection{Op: "stop_app", Code: resp.ErrorCode, Message: resp.Message}
}

// InstallError converts an InstallApp response into an error.
func InstallError(resp models.InstallAppResponse) error {
	if resp.Installed {
		return nil
	}
	return &Rejection{Op: "install_app", Message: resp.Message}
}

// UninstallError converts an UninstallApp response into an error.
func UninstallError(resp models.UninstallAppResponse) error {
	if resp.Uninstalled {
		return nil
	}
	return &Rejection{Op: "uninstall_app", Message: resp.Message}
}
