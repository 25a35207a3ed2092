package chat

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the chat screen bindings.
type KeyMap struct {
	NextMode      key.Binding
	PrevMode      key.Binding
	Select        key.Binding
	Send          key.Binding
	ToggleSidebar key.Binding
	New           key.Binding
	Clear         key.Binding
	PrevConv      key.Binding
	NextConv      key.Binding
	Delete        key.Binding
	Quit          key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next mode"),
		),
		PrevMode: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "prev mode"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "switch mode"),
		),
		Send: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "send"),
		),
		ToggleSidebar: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("C-b", "sidebar"),
		),
		New: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "clear"),
		),
		PrevConv: key.NewBinding(
			key.WithKeys("ctrl+up"),
			key.WithHelp("C-↑", "prev chat"),
		),
		NextConv: key.NewBinding(
			key.WithKeys("ctrl+down"),
			key.WithHelp("C-↓", "next chat"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "delete chat"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// ShortHelp is the one-line help shown under the input.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.NextMode, k.ToggleSidebar, k.New, k.Clear, k.PrevConv, k.NextConv, k.Delete, k.Quit}
}
