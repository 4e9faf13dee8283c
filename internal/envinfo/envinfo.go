// Package envinfo builds the compact execution-context summary passed to the
// reasoning engine and verifier for grounding ("macOS; arm64; Browser:
// Firefox; Screen: 1920x1080 (width x height in pixels)").
package envinfo

import (
	"fmt"
	"runtime"
	"strings"
)

// ScreenInfo is an optional collaborator reporting display geometry. Errors
// are swallowed: the descriptor degrades to whatever it can state.
type ScreenInfo interface {
	// Size returns the primary display size in pixels.
	Size() (width, height int, err error)
	// CursorPosition returns the current pointer coordinates.
	CursorPosition() (x, y int, err error)
}

// Descriptor builds environment-context strings.
type Descriptor struct {
	screen ScreenInfo

	// overridable for tests
	goos   string
	goarch string
}

// New creates a Descriptor. screen may be nil.
func New(screen ScreenInfo) *Descriptor {
	return &Descriptor{screen: screen, goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// Describe renders the context summary. browser is an optional user-supplied
// hint; blank becomes "unknown".
func (d *Descriptor) Describe(browser string) string {
	parts := []string{osName(d.goos)}
	if d.goarch != "" {
		parts = append(parts, d.goarch)
	}

	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "unknown"
	}
	parts = append(parts, "Browser: "+browser)

	if d.screen != nil {
		if w, h, err := d.screen.Size(); err == nil && w > 0 && h > 0 {
			parts = append(parts, fmt.Sprintf("Screen: %dx%d (width x height in pixels)", w, h))
		}
		if x, y, err := d.screen.CursorPosition(); err == nil {
			parts = append(parts, fmt.Sprintf("Cursor: (%d, %d)", x, y))
		}
	}

	return strings.Join(parts, "; ")
}

func osName(goos string) string {
	switch goos {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	default:
		return goos
	}
}

// IsMacOS reports whether an environment-context string names macOS/Darwin.
// Shared by the translator and the reasoning prompts for modifier selection.
func IsMacOS(envContext string) bool {
	lower := strings.ToLower(envContext)
	return strings.Contains(lower, "macos") || strings.Contains(lower, "darwin")
}

// ModifierKey returns the platform launcher modifier for an environment
// context: "command" on macOS, "win" everywhere else.
func ModifierKey(envContext string) string {
	if IsMacOS(envContext) {
		return "command"
	}
	return "win"
}
