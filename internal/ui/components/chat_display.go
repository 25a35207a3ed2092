package components

import (
	"github.com/charmbracelet/lipgloss"

	"groovie/internal/ui/styles"
)

// ChatDisplay composes the chat screen. The pieces are owned by the caller;
// ChatDisplay only lays them out.
type ChatDisplay struct {
	Title    string
	Subtitle string
	Toggle   *ModeToggle
	List     *MessageList
	Input    *ChatInput
	Sidebar  *ConversationSidebar
	Error    string
	Help     string
	Width    int

	theme *styles.Theme
}

func NewChatDisplay(theme *styles.Theme, toggle *ModeToggle, list *MessageList, input *ChatInput, sidebar *ConversationSidebar) *ChatDisplay {
	return &ChatDisplay{
		Title:   "Groovie",
		Toggle:  toggle,
		List:    list,
		Input:   input,
		Sidebar: sidebar,
		Width:   100,
		theme:   theme,
	}
}

// SetWidth distributes the terminal width between sidebar and main column.
func (d *ChatDisplay) SetWidth(w int) {
	d.Width = w
	main := d.mainWidth()
	if d.Toggle != nil {
		d.Toggle.Width = main
	}
	if d.List != nil {
		d.List.Width = main
	}
	if d.Input != nil {
		d.Input.SetWidth(main)
	}
}

func (d *ChatDisplay) sidebarOpen() bool {
	return d.Sidebar != nil && d.Sidebar.IsOpen
}

func (d *ChatDisplay) mainWidth() int {
	w := d.Width
	if d.sidebarOpen() {
		w -= d.Sidebar.Width + 1
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (d *ChatDisplay) View() string {
	header := d.theme.Title.Render(d.Title)
	if d.Subtitle != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Bottom, header, "  ", d.theme.Subtitle.Render(d.Subtitle))
	}

	column := []string{header}
	if d.Toggle != nil {
		column = append(column, d.Toggle.View())
	}
	if d.List != nil {
		column = append(column, "", d.List.View(), "")
	}
	if d.Error != "" {
		column = append(column, d.theme.Error.Render(d.Error))
	}
	if d.Input != nil {
		column = append(column, d.Input.View())
	}
	if d.Help != "" {
		column = append(column, d.theme.Help.Render(d.Help))
	}
	main := lipgloss.NewStyle().Width(d.mainWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, column...))

	if !d.sidebarOpen() {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, d.Sidebar.View(), " ", main)
}
