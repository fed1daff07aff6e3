package config

// Persistent state keys (Registry)
const (
	KeyTheme         = "theme"
	KeyActiveTileSet = "active_tile_set"
	KeyAllowZero     = "allow_zero_coordinates"
	KeyCacheLimit    = "marker_cache_limit"
)

// Theme names.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)
