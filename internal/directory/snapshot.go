package directory

import (
	"encoding/json"
	"time"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// Snapshot is an immutable view of the robot's apps. Accessors return copies.
type Snapshot struct {
	updatedAt time.Time
	available []models.RemoteApp
	running   []models.RemoteApp
	seq       uint64
}

// Available returns the apps offered by the robot after client filtering.
func (s Snapshot) Available() []models.RemoteApp {
	return cloneApps(s.available)
}

// Running returns the apps the robot reports as running.
func (s Snapshot) Running() []models.RemoteApp {
	return cloneApps(s.running)
}

// Launchable returns the available apps that declare a client and can
// therefore be offered for launch.
func (s Snapshot) Launchable() []models.RemoteApp {
	var out []models.RemoteApp
	for _, a := range s.available {
		if a.HasClient() {
			out = append(out, a.Clone())
		}
	}
	return out
}

// RunningLike returns the running apps plus every app without a client, which
// can only be observed, whichever list it arrived in.
func (s Snapshot) RunningLike() []models.RemoteApp {
	seen := make(map[string]struct{}, len(s.running))
	out := make([]models.RemoteApp, 0, len(s.running))
	for _, a := range s.running {
		seen[a.Name] = struct{}{}
		out = append(out, a.Clone())
	}
	for _, a := range s.available {
		if a.HasClient() {
			continue
		}
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a.Clone())
	}
	return out
}

// IsRunning reports whether the named app is in the running list.
func (s Snapshot) IsRunning(name string) bool {
	for _, a := range s.running {
		if a.Name == name {
			return true
		}
	}
	return false
}

// AnyRunning reports whether any app is running.
func (s Snapshot) AnyRunning() bool {
	return len(s.running) > 0
}

// RunningNames returns the names of the running apps in order.
func (s Snapshot) RunningNames() []string {
	names := make([]string, 0, len(s.running))
	for _, a := range s.running {
		names = append(names, a.Name)
	}
	return names
}

// Find looks the app up in the available list, then the running list.
func (s Snapshot) Find(name string) (models.RemoteApp, bool) {
	for _, list := range [][]models.RemoteApp{s.available, s.running} {
		for _, a := range list {
			if a.Name == name {
				return a.Clone(), true
			}
		}
	}
	return models.RemoteApp{}, false
}

// UpdatedAt is when the snapshot was applied; zero for the initial snapshot.
func (s Snapshot) UpdatedAt() time.Time {
	return s.updatedAt
}

// Seq increases by one with every applied update.
func (s Snapshot) Seq() uint64 {
	return s.seq
}

type snapshotJSON struct {
	UpdatedAt   time.Time          `json:"updated_at"`
	Available   []models.RemoteApp `json:"available"`
	Running     []models.RemoteApp `json:"running"`
	RunningLike []string           `json:"running_like"`
	Seq         uint64             `json:"seq"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	like := s.RunningLike()
	names := make([]string, 0, len(like))
	for _, a := range like {
		names = append(names, a.Name)
	}
	return json.Marshal(snapshotJSON{
		UpdatedAt:   s.updatedAt,
		Available:   nonNil(s.available),
		Running:     nonNil(s.running),
		RunningLike: names,
		Seq:         s.seq,
	})
}

func nonNil(apps []models.RemoteApp) []models.RemoteApp {
	if apps == nil {
		return []models.RemoteApp{}
	}
	return apps
}

func cloneApps(apps []models.RemoteApp) []models.RemoteApp {
	if apps == nil {
		return nil
	}
	out := make([]models.RemoteApp, len(apps))
	for i, a := range apps {
		out[i] = a.Clone()
	}
	return out
}
