package domain

// Theme controls the colours of the rendered surface.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme converts a string to a Theme, defaulting to system.
func ParseTheme(s string) Theme {
	switch s {
	case "light":
		return ThemeLight
	case "dark":
		return ThemeDark
	default:
		return ThemeSystem
	}
}

// Resolve maps ThemeSystem onto the given system preference. The result is always light or dark.
func (t Theme) Resolve(system Theme) Theme {
	switch t {
	case ThemeLight, ThemeDark:
		return t
	}
	if system == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}
