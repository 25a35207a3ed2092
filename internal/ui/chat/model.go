// Package chat is the bubbletea model of the terminal client. It binds the
// chat session and the conversation history to the components.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"groovie/internal/ui/components"
	"groovie/internal/ui/styles"
	"groovie/pkg/access"
	"groovie/pkg/chatsession"
	"groovie/pkg/domain"
	"groovie/pkg/history"
)

const newConversationTitle = "New conversation"

// Backend is everything the screen needs from the API.
type Backend interface {
	chatsession.Transport
	history.Backend
}

type Config struct {
	Backend     Backend
	UserID      string
	AccessLevel domain.AccessLevel
	Mode        domain.ChatMode
}

// changedMsg signals that the session or history moved; Update re-reads both.
type changedMsg struct{}

type sendDoneMsg struct {
	text string
	err  error
}

type opDoneMsg struct {
	op  string
	err error
}

type deletedMsg struct {
	id  string
	err error
}

type createdMsg struct {
	conv *domain.Conversation
	err  error
}

type Model struct {
	cfg     Config
	keys    KeyMap
	theme   *styles.Theme
	session *chatsession.Session
	history *history.History
	changed chan struct{}

	toggle  *components.ModeToggle
	list    *components.MessageList
	input   *components.ChatInput
	sidebar *components.ConversationSidebar
	display *components.ChatDisplay

	toggleFocused bool
	errText       string
	quitting      bool
}

func New(cfg Config) (*Model, error) {
	if cfg.Backend == nil {
		return nil, errors.New("chat: backend required")
	}
	if !cfg.AccessLevel.Valid() {
		cfg.AccessLevel = domain.AccessFree
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.DefaultMode
	}
	startCfg, ok := domain.LookupMode(cfg.Mode)
	if !ok {
		return nil, errors.New("chat: unknown mode " + string(cfg.Mode))
	}
	if !access.CanAccessMode(cfg.AccessLevel, startCfg.RequiredAccess) {
		cfg.Mode = domain.DefaultMode
	}

	m := &Model{
		cfg:     cfg,
		keys:    DefaultKeyMap(),
		theme:   styles.NewTheme(),
		changed: make(chan struct{}, 1),
	}
	signal := func() {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	}

	session, err := chatsession.New(chatsession.Options{
		Transport:   cfg.Backend,
		InitialMode: cfg.Mode,
		Policy:      chatsession.RejectConcurrent,
		OnChange:    func(chatsession.State) { signal() },
		OnError: func(err error) {
			slog.Warn("chat send failed", "err", err)
		},
	})
	if err != nil {
		return nil, err
	}
	hist, err := history.New(history.Options{
		Backend:  cfg.Backend,
		Mode:     cfg.Mode,
		UserID:   cfg.UserID,
		OnChange: func(history.State) { signal() },
		OnError: func(err error) {
			slog.Warn("history request failed", "err", err)
		},
	})
	if err != nil {
		return nil, err
	}
	m.session = session
	m.history = hist

	modeCfg, _ := domain.LookupMode(cfg.Mode)
	m.toggle = components.NewModeToggle(m.theme, cfg.AccessLevel, cfg.Mode)
	m.list = components.NewMessageList(m.theme)
	m.input = components.NewChatInput(m.theme, modeCfg.Placeholder)
	m.sidebar = components.NewConversationSidebar(m.theme)
	m.sidebar.ModeLabel = modeCfg.Label
	m.display = components.NewChatDisplay(m.theme, m.toggle, m.list, m.input, m.sidebar)
	m.display.Subtitle = cfg.UserID
	m.display.Help = m.helpLine()
	return m, nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.input.Focus(), m.list.Tick(), m.waitForChange(), m.fetchHistory())
}

// waitForChange delivers one changedMsg; Update re-arms it.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changed
		return changedMsg{}
	}
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "load conversations", err: m.history.Fetch(context.Background())}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.display.SetWidth(msg.Width)
		return m, nil

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case sendDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.input.Restore(msg.text)
			return m, nil
		}
		return m, m.fetchHistory()

	case opDoneMsg:
		if msg.err != nil {
			m.errText = msg.op + " failed: " + msg.err.Error()
		}
		m.refresh()
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.errText = "delete conversation failed: " + msg.err.Error()
		} else if m.session.Snapshot().ConversationID == msg.id {
			m.session.ClearMessages()
		}
		m.refresh()
		return m, nil

	case createdMsg:
		if errors.Is(msg.err, history.ErrScopeChanged) {
			m.refresh()
			return m, nil
		}
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.session.LoadConversation(*msg.conv)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, m.list.Update(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextMode):
		m.focusToggle()
		m.toggle.FocusNext()
		return m, nil

	case key.Matches(msg, m.keys.PrevMode):
		m.focusToggle()
		m.toggle.FocusPrev()
		return m, nil

	case m.toggleFocused && key.Matches(msg, m.keys.Select):
		cmd := m.focusInput()
		mode, ok := m.toggle.SelectFocused()
		if !ok {
			m.toggle.FocusCurrent()
			return m, cmd
		}
		return m, tea.Batch(cmd, m.switchMode(mode))

	case key.Matches(msg, m.keys.Send):
		return m, m.send()

	case key.Matches(msg, m.keys.ToggleSidebar):
		m.sidebar.Toggle()
		m.display.SetWidth(m.display.Width)
		return m, nil

	case key.Matches(msg, m.keys.New):
		m.errText = ""
		return m, func() tea.Msg {
			conv, err := m.history.Create(context.Background(), newConversationTitle)
			return createdMsg{conv: conv, err: err}
		}

	case key.Matches(msg, m.keys.Clear):
		m.errText = ""
		m.session.ClearMessages()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PrevConv):
		m.selectNeighbor(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextConv):
		m.selectNeighbor(1)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		return m, m.deleteCurrent()
	}

	var cmd tea.Cmd
	if m.toggleFocused {
		cmd = m.focusInput()
		m.toggle.FocusCurrent()
	}
	return m, tea.Batch(cmd, m.input.Update(msg))
}

func (m *Model) focusToggle() {
	m.toggleFocused = true
	m.input.Blur()
}

func (m *Model) focusInput() tea.Cmd {
	m.toggleFocused = false
	return m.input.Focus()
}

func (m *Model) switchMode(mode domain.ChatMode) tea.Cmd {
	if err := m.session.SwitchMode(mode); err != nil {
		m.errText = err.Error()
		return nil
	}
	cfg, _ := domain.LookupMode(mode)
	m.toggle.Current = mode
	m.toggle.FocusCurrent()
	m.input.SetPlaceholder(cfg.Placeholder)
	m.sidebar.ModeLabel = cfg.Label
	m.errText = ""
	m.refresh()
	return func() tea.Msg {
		return opDoneMsg{op: "load conversations", err: m.history.SetScope(context.Background(), mode, m.cfg.UserID)}
	}
}

func (m *Model) send() tea.Cmd {
	text, ok := m.input.Submit()
	if !ok {
		return nil
	}
	m.errText = ""
	return tea.Batch(m.list.Tick(), func() tea.Msg {
		return sendDoneMsg{text: text, err: m.session.SendMessage(context.Background(), text)}
	})
}

func (m *Model) selectNeighbor(delta int) {
	id, ok := m.sidebar.Neighbor(delta)
	if !ok {
		return
	}
	for _, conv := range m.history.Snapshot().Conversations {
		if conv.ID == id {
			m.session.LoadConversation(conv)
			break
		}
	}
	m.refresh()
}

func (m *Model) deleteCurrent() tea.Cmd {
	id := m.session.Snapshot().ConversationID
	if id == "" {
		return nil
	}
	m.errText = ""
	return func() tea.Msg {
		return deletedMsg{id: id, err: m.history.Delete(context.Background(), id)}
	}
}

// refresh copies session and history state into the components.
func (m *Model) refresh() {
	s := m.session.Snapshot()
	h := m.history.Snapshot()

	m.list.Messages = s.Messages
	m.list.IsLoading = s.IsLoading
	m.input.SetLoading(s.IsLoading)
	m.toggle.Disabled = s.IsLoading
	m.sidebar.Conversations = h.Conversations
	m.sidebar.CurrentID = s.ConversationID

	switch {
	case s.Error != "":
		m.display.Error = s.Error
	case h.Error != "":
		m.display.Error = h.Error
	default:
		m.display.Error = m.errText
	}
}

func (m *Model) helpLine() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	return m.display.View()
}
