package launcher

import (
	"context"
	"strings"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// Manager data keys understood by the launcher.
const (
	IntentAction   = "intent-action"
	IntentCategory = "intent-category"
	IntentType     = "intent-type"
)

const packageSegments = 3

// ClientDescriptor is one remote-declared client with its launch metadata parsed.
type ClientDescriptor struct {
	clientType  string
	managerData *KeyValueMap
	appData     *KeyValueMap
}

// NewClientDescriptor normalises a client declaration received from the robot.
func NewClientDescriptor(spec models.ClientApp) *ClientDescriptor {
	return &ClientDescriptor{
		clientType:  spec.ClientType,
		managerData: NewKeyValueMap(spec.ManagerData),
		appData:     NewKeyValueMap(spec.AppData),
	}
}

// ClientType returns the declared client type.
func (d *ClientDescriptor) ClientType() string {
	return d.clientType
}

// Action returns the intent action, empty for clients without a UI entry.
func (d *ClientDescriptor) Action() string {
	v, _ := d.managerData.Get(IntentAction)
	return v
}

// PackageID derives the client package from the first three segments of the
// action, e.g. "org.ros.nav.MAIN" -> "org.ros.nav". Shorter actions are used whole.
func (d *ClientDescriptor) PackageID() string {
	action := d.Action()
	if action == "" {
		return ""
	}
	parts := strings.Split(action, ".")
	if len(parts) < packageSegments {
		return action
	}
	return strings.Join(parts[:packageSegments], ".")
}

// InstallID is the id offered for installation when no client handles the
// action: the action without its final segment.
func (d *ClientDescriptor) InstallID() string {
	action := d.Action()
	if i := strings.LastIndex(action, "."); i > 0 {
		return action[:i]
	}
	return action
}

// Build turns the descriptor into a launch request for remote app remoteName.
// The platform is asked for a launchable entry of the derived package first; the
// raw action stays on the request as the fallback.
func (d *ClientDescriptor) Build(ctx context.Context, platform Platform, remoteName string) *LaunchRequest {
	req := &LaunchRequest{Extras: NewKeyValueMap(nil)}

	if action := d.Action(); action != "" {
		req.Action = action
		req.PackageID = d.PackageID()
		req.FallbackInstallID = d.InstallID()
		if platform != nil {
			if entry, ok := platform.LaunchEntry(ctx, req.PackageID); ok {
				req.Entry = entry
			}
		}
	}
	if category, ok := d.managerData.Get(IntentCategory); ok {
		req.Category = category
	}
	if typ, ok := d.managerData.Get(IntentType); ok {
		req.Type = typ
	}

	for _, kv := range d.appData.Pairs() {
		req.Extras.Set(kv.Key, kv.Value)
	}
	req.Extras.Set(RemoteAppNameExtra, remoteName)

	return req
}
