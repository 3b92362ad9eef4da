// Package models defines the data exchanged with the robot app manager and the
// records kept locally for client packages and audit entries.
package models

// ClientTypeAndroid is the client type this chooser fronts.
const ClientTypeAndroid = "android"

// KeyValue is a single ordered key/value pair as sent by the app manager.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ClientApp declares one local client application able to front a remote app.
type ClientApp struct {
	ClientType  string     `json:"client_type"`
	ManagerData []KeyValue `json:"manager_data"`
	AppData     []KeyValue `json:"app_data"`
}

// RemoteApp is an application runnable on the robot.
type RemoteApp struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	ClientApps  []ClientApp `json:"client_apps"`
}

// HasClient reports whether the app declares any client application at all.
// Apps without one can only be observed or stopped.
func (a RemoteApp) HasClient() bool {
	return len(a.ClientApps) > 0
}

// SupportsClient reports whether any client descriptor has the given type.
func (a RemoteApp) SupportsClient(clientType string) bool {
	for _, c := range a.ClientApps {
		if c.ClientType == clientType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can keep it after the source slice changes.
func (a RemoteApp) Clone() RemoteApp {
	out := a
	if a.ClientApps != nil {
		out.ClientApps = make([]ClientApp, len(a.ClientApps))
		for i, c := range a.ClientApps {
			out.ClientApps[i] = ClientApp{
				ClientType:  c.ClientType,
				ManagerData: append([]KeyValue(nil), c.ManagerData...),
				AppData:     append([]KeyValue(nil), c.AppData...),
			}
		}
	}
	return out
}
