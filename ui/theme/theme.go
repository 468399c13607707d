package theme

// Palette and base styling for the control panel.

import (
	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// Palette defines the semantic colors used across widgets.
type Palette struct {
	AppBg     string
	Surface   string
	Primary   string
	Danger    string
	Accent    string
	Text      string
	TextMuted string
}

var (
	light = Palette{
		AppBg:     "#f7f9fb",
		Surface:   "#ffffff",
		Primary:   "#2563eb",
		Danger:    "#dc2626",
		Accent:    "#10b981",
		Text:      "#1e293b",
		TextMuted: "#64748b",
	}
	dark = Palette{
		AppBg:     "#0f172a",
		Surface:   "#1e293b",
		Primary:   "#3b82f6",
		Danger:    "#ef4444",
		Accent:    "#10b981",
		Text:      "#f1f5f9",
		TextMuted: "#94a3b8",
	}
	darkMode bool
)

// Current returns the palette for the active mode.
func Current() Palette {
	if darkMode {
		return dark
	}
	return light
}

// RunStateColors returns the background and foreground of the run-state
// indicator: accent while censoring, danger while stopped.
func RunStateColors(running bool) (bg, fg string) {
	p := Current()
	if running {
		return p.Accent, "white"
	}
	return p.Danger, "white"
}

// SetDark switches mode and reapplies styles.
func SetDark(on bool) {
	darkMode = on
	InitStyles()
}

// IsDark reports the current mode.
func IsDark() bool { return darkMode }

// InitStyles activates the base theme and colors the root window.
func InitStyles() {
	_ = ActivateTheme("azure light")
	App.Configure(Background(Current().AppBg))
}
