package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"groovie/internal/ui/styles"
)

// ChatInput is the message composer. It refuses to submit while a reply is
// loading or a previous submit has not been acknowledged.
type ChatInput struct {
	area    textarea.Model
	loading bool
	sending bool
	theme   *styles.Theme
}

func NewChatInput(theme *styles.Theme, placeholder string) *ChatInput {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.SetWidth(78)
	ta.Focus()
	return &ChatInput{area: ta, theme: theme}
}

func (c *ChatInput) Value() string { return c.area.Value() }

func (c *ChatInput) SetValue(v string) { c.area.SetValue(v) }

func (c *ChatInput) Placeholder() string { return c.area.Placeholder }

func (c *ChatInput) SetPlaceholder(p string) { c.area.Placeholder = p }

func (c *ChatInput) SetWidth(w int) {
	if w > 4 {
		c.area.SetWidth(w - 2)
	}
}

// SetLoading mirrors the session's loading flag. Clearing it also ends the
// current send.
func (c *ChatInput) SetLoading(loading bool) {
	c.loading = loading
	if !loading {
		c.sending = false
	}
}

func (c *ChatInput) Loading() bool { return c.loading }

func (c *ChatInput) Sending() bool { return c.sending }

// CanSubmit reports whether Submit would accept the current text.
func (c *ChatInput) CanSubmit() bool {
	return !c.loading && !c.sending && strings.TrimSpace(c.area.Value()) != ""
}

// Submit returns the trimmed text and clears the box. The second result is
// false when nothing was submitted.
func (c *ChatInput) Submit() (string, bool) {
	if !c.CanSubmit() {
		return "", false
	}
	text := strings.TrimSpace(c.area.Value())
	c.area.Reset()
	c.sending = true
	return text, true
}

// Restore puts text back after a failed send.
func (c *ChatInput) Restore(text string) {
	c.sending = false
	if strings.TrimSpace(c.area.Value()) == "" {
		c.area.SetValue(text)
	}
}

func (c *ChatInput) Focus() tea.Cmd { return c.area.Focus() }

func (c *ChatInput) Blur() { c.area.Blur() }

func (c *ChatInput) Focused() bool { return c.area.Focused() }

func (c *ChatInput) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	c.area, cmd = c.area.Update(msg)
	return cmd
}

func (c *ChatInput) View() string {
	return c.theme.Input.Render(c.area.View())
}
