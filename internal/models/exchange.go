package models

// Icon is an image blob attached to an exchange app.
type Icon struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// ExchangeApp is an installable package in the robot's app exchange.
type ExchangeApp struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Version       string `json:"version"`
	LatestVersion string `json:"latest_version"`
	Description   string `json:"description,omitempty"`
	Hidden        bool   `json:"hidden"`
	Icon          *Icon  `json:"icon,omitempty"`
}

// Upgradable reports whether an installed app lags behind the latest version.
func (a ExchangeApp) Upgradable() bool {
	return a.Version != a.LatestVersion
}

// Clone returns a deep copy of the app including its icon bytes.
func (a ExchangeApp) Clone() ExchangeApp {
	out := a
	if a.Icon != nil {
		icon := Icon{Format: a.Icon.Format, Data: append([]byte(nil), a.Icon.Data...)}
		out.Icon = &icon
	}
	return out
}
