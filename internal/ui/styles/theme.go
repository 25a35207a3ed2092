package styles

import "github.com/charmbracelet/lipgloss"

// Theme groups the styles shared by the components.
type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	ToggleBar    lipgloss.Style
	ToggleLabel  lipgloss.Style
	ModeActive   lipgloss.Style
	ModeInactive lipgloss.Style
	ModeLocked   lipgloss.Style
	ModeFocused  lipgloss.Style
	Badge        lipgloss.Style
	Tooltip      lipgloss.Style

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	Meta            lipgloss.Style
	Artifact        lipgloss.Style
	EmptyState      lipgloss.Style

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style

	Input lipgloss.Style
	Error lipgloss.Style
	Help  lipgloss.Style
}

func NewTheme() *Theme {
	return &Theme{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Subtitle: lipgloss.NewStyle().Foreground(TextSecondary),

		ToggleBar:    lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(Border),
		ToggleLabel:  lipgloss.NewStyle().Bold(true).Foreground(TextSecondary),
		ModeActive:   lipgloss.NewStyle().Bold(true).Foreground(TextInverse).Padding(0, 1),
		ModeInactive: lipgloss.NewStyle().Foreground(TextPrimary).Padding(0, 1),
		ModeLocked:   lipgloss.NewStyle().Foreground(TextMuted).Faint(true).Padding(0, 1),
		ModeFocused:  lipgloss.NewStyle().Underline(true),
		Badge:        lipgloss.NewStyle().Foreground(TextSecondary).Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(0, 1),
		Tooltip:      lipgloss.NewStyle().Italic(true).Foreground(TextMuted),

		UserBubble:      lipgloss.NewStyle().Foreground(TextInverse).Background(Primary).Padding(0, 1),
		AssistantBubble: lipgloss.NewStyle().Foreground(TextPrimary).Background(Muted).Padding(0, 1),
		Meta:            lipgloss.NewStyle().Foreground(TextMuted),
		Artifact:        lipgloss.NewStyle().Foreground(TextSecondary),
		EmptyState:      lipgloss.NewStyle().Foreground(TextMuted).Italic(true),

		Sidebar:         lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(Border),
		SidebarTitle:    lipgloss.NewStyle().Bold(true).Foreground(TextPrimary),
		SidebarItem:     lipgloss.NewStyle().Foreground(TextSecondary),
		SidebarSelected: lipgloss.NewStyle().Bold(true).Foreground(Primary),

		Input: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border),
		Error: lipgloss.NewStyle().Foreground(Error),
		Help:  lipgloss.NewStyle().Foreground(TextMuted),
	}
}
