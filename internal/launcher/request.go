package launcher

import (
	"context"
	"fmt"
)

// RemoteAppNameExtra is the extra through which a launched client learns which
// remote app it is fronting.
const RemoteAppNameExtra = "ros.android.activity.robot_app_name"

// LaunchRequest is the platform-neutral description of a client start.
type LaunchRequest struct {
	Extras            *KeyValueMap `json:"extras,omitempty"`
	Action            string       `json:"action,omitempty"`
	Category          string       `json:"category,omitempty"`
	Type              string       `json:"type,omitempty"`
	PackageID         string       `json:"package_id,omitempty"`
	Entry             string       `json:"entry,omitempty"`
	FallbackInstallID string       `json:"fallback_install_id,omitempty"`
}

// HasAction reports whether the request names an action or a resolved entry.
func (r *LaunchRequest) HasAction() bool {
	return r.Action != "" || r.Entry != ""
}

func (r *LaunchRequest) String() string {
	if r.Entry != "" {
		return fmt.Sprintf("entry=%s action=%s", r.Entry, r.Action)
	}
	return fmt.Sprintf("action=%s", r.Action)
}

// DispatchResult is the host platform's answer to a launch request.
type DispatchResult int

const (
	Dispatched DispatchResult = iota
	NoHandlerFound
)

func (d DispatchResult) String() string {
	switch d {
	case Dispatched:
		return "dispatched"
	case NoHandlerFound:
		return "no_handler_found"
	default:
		return "unknown"
	}
}

// Platform is the host mechanism that actually starts client applications.
type Platform interface {
	// LaunchEntry returns a launchable entry point for an installed package.
	LaunchEntry(ctx context.Context, packageID string) (string, bool)
	// Dispatch starts a client for the request. A missing handler is reported
	// as NoHandlerFound, not as an error.
	Dispatch(ctx context.Context, req *LaunchRequest) (DispatchResult, error)
}
