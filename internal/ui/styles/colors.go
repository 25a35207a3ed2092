// Package styles holds the colors and lipgloss styles of the terminal client.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	Primary       = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#4B5563", Dark: "#9CA3AF"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}
	TextInverse   = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#111827"}
	Border        = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"}
	Muted         = lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#1F2937"}
	Error         = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
)

// Mode accent colours, keyed by the registry's Tailwind class names.
var modeColors = map[string]lipgloss.AdaptiveColor{
	"text-blue-600":   {Light: "#2563EB", Dark: "#60A5FA"},
	"text-purple-600": {Light: "#9333EA", Dark: "#C084FC"},
	"text-pink-600":   {Light: "#DB2777", Dark: "#F472B6"},
}

// ModeColor maps a mode's colour class to a terminal colour. Unknown classes
// fall back to Primary.
func ModeColor(class string) lipgloss.AdaptiveColor {
	if c, ok := modeColors[class]; ok {
		return c
	}
	return Primary
}
