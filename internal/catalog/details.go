package catalog

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

var iconFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// Details is the detail view of one exchange app.
type Details struct {
	Icon        *models.Icon `json:"icon,omitempty"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Latest      string       `json:"latest_version"`
	IconMIME    string       `json:"icon_mime,omitempty"`
}

func newDetails(app models.ExchangeApp) Details {
	d := Details{
		Name:        app.Name,
		DisplayName: app.DisplayName,
		Description: app.Description,
		Version:     app.Version,
		Latest:      app.LatestVersion,
	}
	if mime, ok := renderableIcon(app.Icon); ok {
		icon := app.Clone().Icon
		d.Icon = icon
		d.IconMIME = mime
	}
	return d
}

// renderableIcon accepts jpeg and png icons whose bytes match the declared
// format. Anything else falls back to the default icon.
func renderableIcon(icon *models.Icon) (string, bool) {
	if icon == nil || len(icon.Data) == 0 {
		return "", false
	}
	want, ok := iconFormats[icon.Format]
	if !ok {
		return "", false
	}
	if !mimetype.Detect(icon.Data).Is(want) {
		return "", false
	}
	return want, true
}
