// Package platform starts local client applications for launch requests,
// either as host processes from the client registry or as docker containers.
package platform

import (
	"errors"
	"os"
	"strings"
	"unicode"

	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// Drivers accepted by the configuration.
const (
	DriverExec   = "exec"
	DriverDocker = "docker"
)

// EnvPrefix prefixes every variable handed to a launched client.
const EnvPrefix = "APPCHOOSER_"

// ErrUnknownDriver is returned for a platform driver other than exec or docker.
var ErrUnknownDriver = errors.New("unknown platform driver")

// ExitFunc is called with the remote app name when a launched client exits.
type ExitFunc func(app string)

// Registry looks up locally installed clients.
type Registry interface {
	GetByPackageID(packageID string) (*models.ClientPackage, error)
	FindByAction(action string) (*models.ClientPackage, error)
}

// Environ renders req as environment variables: the action, category and
// type, the remote app name and one variable per extra.
func Environ(req *launcher.LaunchRequest) []string {
	env := make([]string, 0, 4)
	add := func(key, value string) {
		if value != "" {
			env = append(env, EnvPrefix+key+"="+value)
		}
	}
	add("ACTION", req.Action)
	add("CATEGORY", req.Category)
	add("TYPE", req.Type)
	add("APP", RemoteApp(req))
	if req.Extras != nil {
		for _, kv := range req.Extras.Pairs() {
			add("EXTRA_"+envName(kv.Key), kv.Value)
		}
	}
	return env
}

// RemoteApp returns the remote app name carried by req.
func RemoteApp(req *launcher.LaunchRequest) string {
	if req.Extras == nil {
		return ""
	}
	name, _ := req.Extras.Get(launcher.RemoteAppNameExtra)
	return name
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return '_'
		}
		return unicode.ToUpper(r)
	}, key)
}

func hostEnv(extra []string) []string {
	return append(os.Environ(), extra...)
}
