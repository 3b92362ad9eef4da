package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

var (
	ErrAppNotFound         = errors.New("app not found")
	ErrExchangeUnavailable = errors.New("robot has no app exchange")
)

// EventKind identifies what a session event carries.
type EventKind string

const (
	EventSession      EventKind = "session"
	EventStatus       EventKind = "status"
	EventError        EventKind = "error"
	EventConfirmStop  EventKind = "confirm_stop_existing"
	EventApps         EventKind = "apps"
	EventCatalog      EventKind = "catalog"
	EventLaunch       EventKind = "launch"
	EventInstallOffer EventKind = "install_offer"
	EventLog          EventKind = "log"
)

// ErrorClass groups failures by how the user should read them.
type ErrorClass string

const (
	ClassTransport       ErrorClass = "transport"
	ClassRejection       ErrorClass = "rejection"
	ClassMultiApp        ErrorClass = "multi_app_not_supported"
	ClassAmbiguousClient ErrorClass = "ambiguous_client"
	ClassDispatch        ErrorClass = "dispatch"
	ClassUnavailable     ErrorClass = "unavailable"
	ClassInvalid         ErrorClass = "invalid"
)

// Event is published to the UI. Every failed operation produces exactly one
// error event.
type Event struct {
	Time    time.Time  `json:"time"`
	Data    any        `json:"data,omitempty"`
	Kind    EventKind  `json:"kind"`
	Op      string     `json:"op,omitempty"`
	App     string     `json:"app,omitempty"`
	Message string     `json:"message,omitempty"`
	Class   ErrorClass `json:"class,omitempty"`
}

// AmbiguousClientError reports an app that does not declare exactly one client
// of the wanted type.
type AmbiguousClientError struct {
	App        string
	ClientType string
	Count      int
}

func (e *AmbiguousClientError) Error() string {
	return fmt.Sprintf("%s declares %d %s clients, expected exactly one", e.App, e.Count, e.ClientType)
}

// Classify maps an error onto the class shown to the user.
func Classify(err error) ErrorClass {
	var ambiguous *AmbiguousClientError
	switch {
	case errors.Is(err, ErrMultiAppNotSupported):
		return ClassMultiApp
	case errors.As(err, &ambiguous):
		return ClassAmbiguousClient
	case errors.Is(err, launcher.ErrDispatchFailed):
		return ClassDispatch
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrExchangeUnavailable):
		return ClassUnavailable
	case robot.IsTransport(err):
		return ClassTransport
	}
	if _, ok := robot.AsRejection(err); ok {
		return ClassRejection
	}
	return ClassInvalid
}

// StatusText renders err the way the status line shows it.
func StatusText(err error) string {
	switch Classify(err) {
	case ClassUnavailable:
		if errors.Is(err, ErrSessionClosed) {
			return "Robot not available"
		}
		return err.Error()
	case ClassRejection:
		r, _ := robot.AsRejection(err)
		return r.Error()
	case ClassMultiApp:
		return "Multi-App Disabled on Robot"
	default:
		return "Failed: " + err.Error()
	}
}
