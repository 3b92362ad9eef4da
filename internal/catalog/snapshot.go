package catalog

import (
	"encoding/json"
	"time"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

const upgradableSuffix = " (Upgradable)"

// Entry is one visible row of the installed or available list.
type Entry struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Label         string `json:"label"`
	Version       string `json:"version,omitempty"`
	LatestVersion string `json:"latest_version,omitempty"`
	Upgradable    bool   `json:"upgradable"`
}

// Snapshot is an immutable view of the exchange catalog.
type Snapshot struct {
	updatedAt time.Time
	installed []models.ExchangeApp
	available []models.ExchangeApp
	seq       uint64
}

// Installed returns every installed app, hidden ones included.
func (s Snapshot) Installed() []models.ExchangeApp {
	return cloneApps(s.installed)
}

// Available returns every installable app, hidden ones included.
func (s Snapshot) Available() []models.ExchangeApp {
	return cloneApps(s.available)
}

// VisibleInstalled lists the installed apps that are not hidden, marking the
// ones with a newer version available.
func (s Snapshot) VisibleInstalled() []Entry {
	out := make([]Entry, 0, len(s.installed))
	for _, a := range s.installed {
		if a.Hidden {
			continue
		}
		e := Entry{
			Name:          a.Name,
			DisplayName:   a.DisplayName,
			Label:         a.DisplayName,
			Version:       a.Version,
			LatestVersion: a.LatestVersion,
			Upgradable:    a.Upgradable(),
		}
		if e.Upgradable {
			e.Label += upgradableSuffix
		}
		out = append(out, e)
	}
	return out
}

// VisibleAvailable lists the installable apps that are not hidden.
func (s Snapshot) VisibleAvailable() []Entry {
	out := make([]Entry, 0, len(s.available))
	for _, a := range s.available {
		if a.Hidden {
			continue
		}
		out = append(out, Entry{
			Name:          a.Name,
			DisplayName:   a.DisplayName,
			Label:         a.DisplayName,
			Version:       a.Version,
			LatestVersion: a.LatestVersion,
		})
	}
	return out
}

// Lookup finds name in the installed set, then the available set. Hidden apps
// are found too so that references taken before they were hidden still resolve.
func (s Snapshot) Lookup(name string) (app models.ExchangeApp, installed bool, ok bool) {
	if a, found := find(s.installed, name); found {
		return a.Clone(), true, true
	}
	if a, found := find(s.available, name); found {
		return a.Clone(), false, true
	}
	return models.ExchangeApp{}, false, false
}

// Find is Lookup restricted to visible apps.
func (s Snapshot) Find(name string) (models.ExchangeApp, bool, bool) {
	app, installed, ok := s.Lookup(name)
	if !ok || app.Hidden {
		return models.ExchangeApp{}, false, false
	}
	return app, installed, true
}

// UpdatedAt is when the snapshot was applied.
func (s Snapshot) UpdatedAt() time.Time {
	return s.updatedAt
}

// Seq increases with every applied update.
func (s Snapshot) Seq() uint64 {
	return s.seq
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UpdatedAt time.Time `json:"updated_at"`
		Installed []Entry   `json:"installed"`
		Available []Entry   `json:"available"`
		Seq       uint64    `json:"seq"`
	}{
		UpdatedAt: s.updatedAt,
		Installed: s.VisibleInstalled(),
		Available: s.VisibleAvailable(),
		Seq:       s.seq,
	})
}

func find(apps []models.ExchangeApp, name string) (models.ExchangeApp, bool) {
	for _, a := range apps {
		if a.Name == name {
			return a, true
		}
	}
	return models.ExchangeApp{}, false
}

// dedupe keeps the first app of each name so lookups within a set are unambiguous.
func dedupe(apps []models.ExchangeApp) []models.ExchangeApp {
	out := make([]models.ExchangeApp, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a.Clone())
	}
	return out
}

func cloneApps(apps []models.ExchangeApp) []models.ExchangeApp {
	if apps == nil {
		return nil
	}
	out := make([]models.ExchangeApp, len(apps))
	for i, a := range apps {
		out[i] = a.Clone()
	}
	return out
}
