package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"groovie/internal/ui/styles"
	"groovie/pkg/domain"
)

const (
	DefaultEmptyStateMessage = "Start a conversation. Ask me anything!"
	DefaultLoadingMessage    = "Thinking..."
)

// MessageBubble renders a single chat message.
type MessageBubble struct {
	Message  domain.Message
	Width    int
	ShowMode bool

	theme *styles.Theme
}

func NewMessageBubble(theme *styles.Theme, msg domain.Message) MessageBubble {
	return MessageBubble{Message: msg, Width: 60, ShowMode: true, theme: theme}
}

func (b MessageBubble) View() string {
	isUser := b.Message.Role == domain.RoleUser

	who := "Assistant"
	if isUser {
		who = "You"
	}
	meta := []string{who}
	if b.ShowMode {
		if cfg, ok := domain.LookupMode(b.Message.Mode); ok {
			meta = append(meta, cfg.Label)
		}
	}
	if !b.Message.CreatedAt.IsZero() {
		meta = append(meta, b.Message.CreatedAt.Local().Format("15:04"))
	}

	style := b.theme.AssistantBubble
	align := lipgloss.Left
	if isUser {
		style = b.theme.UserBubble
		align = lipgloss.Right
	}
	width := b.Width
	if width < 10 {
		width = 10
	}

	body := style.Width(width).Render(b.Message.Content)
	lines := []string{b.theme.Meta.Render(strings.Join(meta, " · ")), body}
	for _, a := range b.Message.Artifacts {
		line := "📎 " + a.Title
		if a.DownloadURL != "" {
			line += " <" + a.DownloadURL + ">"
		}
		lines = append(lines, b.theme.Artifact.Render(line))
	}
	return lipgloss.JoinVertical(align, lines...)
}

// LoadingBubble is the placeholder shown while a reply is pending.
type LoadingBubble struct {
	Message string

	spinner spinner.Model
	theme   *styles.Theme
}

func NewLoadingBubble(theme *styles.Theme) LoadingBubble {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	s.Style = theme.Meta
	return LoadingBubble{Message: DefaultLoadingMessage, spinner: s, theme: theme}
}

// Tick starts the spinner animation.
func (l LoadingBubble) Tick() tea.Cmd {
	return l.spinner.Tick
}

func (l LoadingBubble) Update(msg tea.Msg) (LoadingBubble, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

func (l LoadingBubble) View() string {
	return l.theme.AssistantBubble.Render(l.spinner.View() + " " + l.Message)
}

// MessageList renders the transcript, or the empty state when there is none.
type MessageList struct {
	Messages          []domain.Message
	IsLoading         bool
	EmptyStateMessage string
	LoadingMessage    string
	Width             int

	loading LoadingBubble
	theme   *styles.Theme
}

func NewMessageList(theme *styles.Theme) *MessageList {
	return &MessageList{
		EmptyStateMessage: DefaultEmptyStateMessage,
		LoadingMessage:    DefaultLoadingMessage,
		Width:             80,
		loading:           NewLoadingBubble(theme),
		theme:             theme,
	}
}

func (l *MessageList) Tick() tea.Cmd {
	return l.loading.Tick()
}

func (l *MessageList) Update(msg tea.Msg) tea.Cmd {
	if !l.IsLoading {
		return nil
	}
	var cmd tea.Cmd
	l.loading, cmd = l.loading.Update(msg)
	return cmd
}

func (l *MessageList) View() string {
	if len(l.Messages) == 0 && !l.IsLoading {
		empty := l.EmptyStateMessage
		if empty == "" {
			empty = DefaultEmptyStateMessage
		}
		return l.theme.EmptyState.Width(l.Width).Align(lipgloss.Center).Render(empty)
	}

	bubbleWidth := l.Width * 3 / 4
	rows := make([]string, 0, len(l.Messages)+1)
	for _, msg := range l.Messages {
		b := NewMessageBubble(l.theme, msg)
		b.Width = bubbleWidth
		view := b.View()
		if msg.Role == domain.RoleUser {
			view = lipgloss.PlaceHorizontal(l.Width, lipgloss.Right, view)
		}
		rows = append(rows, view)
	}
	if l.IsLoading {
		l.loading.Message = l.LoadingMessage
		if l.loading.Message == "" {
			l.loading.Message = DefaultLoadingMessage
		}
		rows = append(rows, l.loading.View())
	}
	return strings.Join(rows, "\n\n")
}
