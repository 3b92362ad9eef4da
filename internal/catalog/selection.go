package catalog

import "github.com/pandeptwidyaop/app-chooser/internal/models"

// SelectionStatus is the install state of the selected app.
type SelectionStatus string

const (
	StatusNotInstalled        SelectionStatus = "not_installed"
	StatusInstalled           SelectionStatus = "installed"
	StatusInstalledUpgradable SelectionStatus = "installed_upgradable"
)

// Selection is the app picked in the exchange UI, refreshed after every update.
type Selection struct {
	Name         string          `json:"name"`
	Display      string          `json:"display"`
	Title        string          `json:"title"`
	Status       SelectionStatus `json:"status"`
	CanInstall   bool            `json:"can_install"`
	CanUninstall bool            `json:"can_uninstall"`
}

func selectionFor(app models.ExchangeApp, installed bool) Selection {
	sel := Selection{Name: app.Name, Display: app.DisplayName}
	switch {
	case installed && app.Upgradable():
		sel.Status = StatusInstalledUpgradable
		sel.Title = app.DisplayName + " (Installed, Upgrade Available)"
		sel.CanInstall = true
		sel.CanUninstall = true
	case installed:
		sel.Status = StatusInstalled
		sel.Title = app.DisplayName + " (Installed)"
		sel.CanUninstall = true
	default:
		sel.Status = StatusNotInstalled
		sel.Title = app.DisplayName + " (Not Installed)"
		sel.CanInstall = true
	}
	return sel
}

// View is the exchange screen currently shown.
type View string

const (
	ViewInstalled View = "installed"
	ViewExchange  View = "exchange"
	ViewDetail    View = "detail"
)
