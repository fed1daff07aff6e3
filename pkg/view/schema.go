package view

// Option is one entry of the settings form rendered by the host.
type Option struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"`
	DisplayName string   `json:"displayName"`
	Default     any      `json:"default,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	// Group names a collapsible section of the form.
	Group string `json:"group,omitempty"`
}

func num(f float64) *float64 { return &f }

// OptionsSchema describes the user-configurable view options.
func OptionsSchema() []Option {
	return []Option{
		{Key: OptCenter, Type: "text", DisplayName: "Center coordinates", Placeholder: "[latitude, longitude]"},
		{Key: OptDefaultZoom, Type: "slider", DisplayName: "Default zoom",
			Default: float64(DefaultZoom), Min: num(0), Max: num(24), Step: num(1)},
		{Key: OptHeight, Type: "slider", DisplayName: "Embedded height",
			Default: 400.0, Min: num(100), Max: num(1000), Step: num(10)},

		{Key: OptCoordinates, Type: "property", DisplayName: "Marker coordinates",
			Default: DefaultCoordinatesProp, Group: "Markers"},
		{Key: OptIcon, Type: "property", DisplayName: "Marker icon", Group: "Markers"},
		{Key: OptColor, Type: "property", DisplayName: "Marker color", Group: "Markers"},
		{Key: OptMarkup, Type: "property", DisplayName: "Custom SVG marker", Group: "Markers"},

		{Key: OptMinZoom, Type: "slider", DisplayName: "Minimum zoom",
			Default: float64(DefaultMinZoom), Min: num(0), Max: num(24), Step: num(1), Group: "Display"},
		{Key: OptMaxZoom, Type: "slider", DisplayName: "Maximum zoom",
			Default: float64(DefaultMaxZoom), Min: num(0), Max: num(24), Step: num(1), Group: "Display"},
		{Key: OptTileSet, Type: "dropdown", DisplayName: "Background", Group: "Display"},
		{Key: OptLightTiles, Type: "multitext", DisplayName: "Map tiles",
			Placeholder: "https://tile.openstreetmap.org/{z}/{x}/{y}.png", Group: "Display"},
		{Key: OptDarkTiles, Type: "multitext", DisplayName: "Map tiles in dark mode", Group: "Display"},
	}
}
