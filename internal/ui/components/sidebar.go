package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"groovie/internal/ui/styles"
	"groovie/pkg/domain"
)

const (
	sidebarTitle   = "Conversations"
	sidebarEmpty   = "No conversations yet"
	untitledLabel  = "Untitled"
	defaultSidebar = 28
)

// ConversationSidebar lists the conversations of the current mode.
type ConversationSidebar struct {
	Conversations []domain.Conversation
	CurrentID     string
	ModeLabel     string
	IsOpen        bool
	Width         int

	theme *styles.Theme
}

func NewConversationSidebar(theme *styles.Theme) *ConversationSidebar {
	return &ConversationSidebar{IsOpen: true, Width: defaultSidebar, theme: theme}
}

func (s *ConversationSidebar) Toggle() { s.IsOpen = !s.IsOpen }

// Neighbor returns the id of the conversation delta places away from the
// current one, clamped to the list. With no current selection it starts from
// the first entry.
func (s *ConversationSidebar) Neighbor(delta int) (string, bool) {
	if len(s.Conversations) == 0 {
		return "", false
	}
	idx := -1
	for i, c := range s.Conversations {
		if c.ID == s.CurrentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s.Conversations[0].ID, true
	}
	next := idx + delta
	if next < 0 {
		next = 0
	}
	if next >= len(s.Conversations) {
		next = len(s.Conversations) - 1
	}
	if next == idx {
		return "", false
	}
	return s.Conversations[next].ID, true
}

func (s *ConversationSidebar) View() string {
	if !s.IsOpen {
		return ""
	}
	width := s.Width
	if width < 8 {
		width = defaultSidebar
	}
	inner := width - 4

	lines := []string{s.theme.SidebarTitle.Render(sidebarTitle)}
	if s.ModeLabel != "" {
		lines = append(lines, s.theme.Meta.Render(truncate(s.ModeLabel, inner)))
	}
	lines = append(lines, "")
	if len(s.Conversations) == 0 {
		lines = append(lines, s.theme.EmptyState.Render(sidebarEmpty))
	}
	for _, c := range s.Conversations {
		label := strings.TrimSpace(c.Title)
		if label == "" {
			label = untitledLabel
		}
		if c.ID == s.CurrentID {
			lines = append(lines, s.theme.SidebarSelected.Render("▸ "+truncate(label, inner-2)))
			continue
		}
		lines = append(lines, s.theme.SidebarItem.Render("  "+truncate(label, inner-2)))
	}
	return s.theme.Sidebar.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
