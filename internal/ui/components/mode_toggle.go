// Package components renders the chat screen pieces. Components hold only
// presentation state and report user intent to the caller.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"groovie/internal/ui/styles"
	"groovie/pkg/access"
	"groovie/pkg/domain"
)

const lockMarker = "🔒"

var modeIcons = map[string]string{
	"BookOpen":      "📖",
	"GraduationCap": "🎓",
	"Wand2":         "✨",
}

var badgeIcons = map[domain.AccessLevel]string{
	domain.AccessFree:     "🎓",
	domain.AccessPremium:  "⭐",
	domain.AccessEducator: "👨‍🏫",
}

// ModeButton renders one mode.
type ModeButton struct {
	Config  domain.ModeConfig
	Active  bool
	Locked  bool
	Focused bool
	Tooltip string
	theme   *styles.Theme
}

func NewModeButton(theme *styles.Theme, cfg domain.ModeConfig) ModeButton {
	return ModeButton{Config: cfg, theme: theme}
}

func (b ModeButton) View() string {
	icon, ok := modeIcons[b.Config.Icon]
	if !ok {
		icon = modeIcons["BookOpen"]
	}
	label := icon + " " + b.Config.Label
	if b.Locked {
		label += " " + lockMarker
	}
	var style lipgloss.Style
	switch {
	case b.Locked:
		style = b.theme.ModeLocked
	case b.Active:
		style = b.theme.ModeActive.Background(styles.ModeColor(b.Config.Color))
	default:
		style = b.theme.ModeInactive.Foreground(styles.ModeColor(b.Config.Color))
	}
	if b.Focused {
		style = style.Inherit(b.theme.ModeFocused)
	}
	return style.Render(label)
}

// ModeToggle is the mode selector bar. Focus is the index of the highlighted
// mode; it is the only state the toggle owns.
type ModeToggle struct {
	Modes           []domain.ChatMode
	Configs         map[domain.ChatMode]domain.ModeConfig
	Current         domain.ChatMode
	AccessLevel     domain.AccessLevel
	Disabled        bool
	ShowAccessBadge bool
	Focus           int
	Width           int

	theme *styles.Theme
}

func NewModeToggle(theme *styles.Theme, level domain.AccessLevel, current domain.ChatMode) *ModeToggle {
	t := &ModeToggle{
		Modes:           domain.Modes(),
		Configs:         domain.ModeConfigs(),
		Current:         current,
		AccessLevel:     level,
		ShowAccessBadge: true,
		Width:           80,
		theme:           theme,
	}
	t.FocusCurrent()
	return t
}

// Accessible reports whether the user's tier unlocks mode.
func (t *ModeToggle) Accessible(mode domain.ChatMode) bool {
	cfg, ok := t.Configs[mode]
	return ok && access.CanAccessMode(t.AccessLevel, cfg.RequiredAccess)
}

// Tooltip is the description for accessible modes and
// "<Label> (Requires <tier>)" for locked ones.
func (t *ModeToggle) Tooltip(mode domain.ChatMode) string {
	cfg, ok := t.Configs[mode]
	if !ok {
		return ""
	}
	if t.Accessible(mode) {
		return cfg.Description
	}
	return cfg.Label + " (Requires " + string(cfg.RequiredAccess) + ")"
}

// Select reports whether choosing mode should switch to it. Locked, current
// and unknown modes, and any mode while disabled, are ignored.
func (t *ModeToggle) Select(mode domain.ChatMode) bool {
	if t.Disabled || mode == t.Current || !t.Accessible(mode) {
		return false
	}
	return true
}

// SelectFocused applies Select to the focused mode.
func (t *ModeToggle) SelectFocused() (domain.ChatMode, bool) {
	mode, ok := t.FocusedMode()
	if !ok || !t.Select(mode) {
		return "", false
	}
	return mode, true
}

func (t *ModeToggle) FocusedMode() (domain.ChatMode, bool) {
	if t.Focus < 0 || t.Focus >= len(t.Modes) {
		return "", false
	}
	return t.Modes[t.Focus], true
}

func (t *ModeToggle) FocusNext() {
	if len(t.Modes) > 0 {
		t.Focus = (t.Focus + 1) % len(t.Modes)
	}
}

func (t *ModeToggle) FocusPrev() {
	if len(t.Modes) > 0 {
		t.Focus = (t.Focus - 1 + len(t.Modes)) % len(t.Modes)
	}
}

// FocusCurrent moves focus back to the active mode.
func (t *ModeToggle) FocusCurrent() {
	for i, mode := range t.Modes {
		if mode == t.Current {
			t.Focus = i
			return
		}
	}
	t.Focus = 0
}

func (t *ModeToggle) Buttons() []ModeButton {
	buttons := make([]ModeButton, 0, len(t.Modes))
	for i, mode := range t.Modes {
		cfg, ok := t.Configs[mode]
		if !ok {
			continue
		}
		b := NewModeButton(t.theme, cfg)
		b.Active = mode == t.Current
		b.Locked = !t.Accessible(mode)
		b.Focused = i == t.Focus
		b.Tooltip = t.Tooltip(mode)
		buttons = append(buttons, b)
	}
	return buttons
}

func (t *ModeToggle) View() string {
	parts := []string{t.theme.ToggleLabel.Render("MODE:")}
	var tooltip string
	for _, b := range t.Buttons() {
		parts = append(parts, b.View())
		if b.Focused {
			tooltip = b.Tooltip
		}
	}
	row := strings.Join(parts, " ")
	if t.ShowAccessBadge {
		badge := t.theme.Badge.Render(badgeIcons[normalizeLevel(t.AccessLevel)] + " " + access.Badge(t.AccessLevel))
		gap := t.Width - lipgloss.Width(row) - lipgloss.Width(badge) - 2
		if gap < 1 {
			gap = 1
		}
		row = lipgloss.JoinHorizontal(lipgloss.Center, row, strings.Repeat(" ", gap), badge)
	}
	if tooltip != "" {
		row = lipgloss.JoinVertical(lipgloss.Left, row, t.theme.Tooltip.Render(tooltip))
	}
	return t.theme.ToggleBar.Render(row)
}

func normalizeLevel(level domain.AccessLevel) domain.AccessLevel {
	if level.Valid() {
		return level
	}
	return domain.AccessFree
}
