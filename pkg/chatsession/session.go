// Package chatsession holds the client side of a chat: the message list,
// the active mode and the loading and error flags of in-flight sends.
package chatsession

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"groovie/internal/util"
	"groovie/pkg/apiclient"
	"groovie/pkg/domain"
)

// ErrSendInFlight is returned by SendMessage under RejectConcurrent while
// another send is outstanding.
var ErrSendInFlight = errors.New("a message is already being sent")

const (
	noResponse = "No response"
	// tempConversationID asks the server to start a conversation.
	tempConversationID = "temp"
)

// Transport sends one chat turn. *apiclient.Client implements it.
type Transport interface {
	SendChat(ctx context.Context, mode domain.ChatMode, req apiclient.ChatRequest) (apiclient.ChatResponse, error)
}

// Policy decides what happens to a send issued while another is in flight.
type Policy int

const (
	// AllowConcurrent lets sends overlap; replies are appended as they arrive.
	AllowConcurrent Policy = iota
	// RejectConcurrent refuses a second send with ErrSendInFlight.
	RejectConcurrent
)

// State is a snapshot of the session.
type State struct {
	Messages       []domain.Message
	CurrentMode    domain.ChatMode
	IsLoading      bool
	Error          string
	ConversationID string
}

func (s State) clone() State {
	out := s
	out.Messages = domain.CloneMessages(s.Messages)
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return out
}

type Options struct {
	Transport   Transport
	InitialMode domain.ChatMode
	Policy      Policy
	// OnChange receives a snapshot after every transition.
	OnChange func(State)
	// OnError receives send failures.
	OnError func(error)
	Now     func() time.Time
}

// Session is safe for concurrent use. Callbacks run outside the lock.
type Session struct {
	transport Transport
	policy    Policy
	onChange  func(State)
	onError   func(error)
	now       func() time.Time

	mu         sync.Mutex
	state      State
	inFlight   int
	generation uint64
}

func New(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, errors.New("chatsession: transport required")
	}
	mode := opts.InitialMode
	if mode == "" {
		mode = domain.DefaultMode
	}
	if !mode.Valid() {
		return nil, errors.New("chatsession: unknown initial mode " + string(mode))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		transport: opts.Transport,
		policy:    opts.Policy,
		onChange:  opts.OnChange,
		onError:   opts.OnError,
		now:       now,
		state:     State{Messages: []domain.Message{}, CurrentMode: mode},
	}, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SendMessage appends the user message, calls the transport and appends the
// reply. Blank content is ignored. On failure the user message stays, Error
// is set and the error is returned. A reply that arrives after SwitchMode,
// ClearMessages or LoadConversation is dropped.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	if s.policy == RejectConcurrent && s.inFlight > 0 {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	mode := s.state.CurrentMode
	s.state.Messages = append(s.state.Messages, domain.Message{
		ID:        util.NewID(),
		Content:   content,
		Role:      domain.RoleUser,
		CreatedAt: s.now(),
		Mode:      mode,
	})
	s.inFlight++
	s.state.IsLoading = true
	s.state.Error = ""
	generation := s.generation
	conversationID := s.state.ConversationID
	if conversationID == "" {
		conversationID = tempConversationID
	}
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(snap)

	resp, err := s.transport.SendChat(ctx, mode, apiclient.ChatRequest{
		Message:        content,
		Mode:           mode,
		ConversationID: conversationID,
	})

	s.mu.Lock()
	s.inFlight--
	s.state.IsLoading = s.inFlight > 0
	current := generation == s.generation
	if err != nil {
		if current {
			s.state.Error = err.Error()
		}
		snap = s.state.clone()
		s.mu.Unlock()
		s.notify(snap)
		if current && s.onError != nil {
			s.onError(err)
		}
		return err
	}
	if current {
		s.state.Messages = append(s.state.Messages, assistantMessage(resp, mode, s.now()))
		if resp.ConversationID != "" {
			s.state.ConversationID = resp.ConversationID
		}
	}
	snap = s.state.clone()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

func assistantMessage(resp apiclient.ChatResponse, mode domain.ChatMode, now time.Time) domain.Message {
	content := resp.Content
	if content == "" {
		content = resp.Message
	}
	if content == "" {
		content = noResponse
	}
	id := resp.MessageID
	if id == "" {
		id = util.NewID()
	}
	var artifacts []domain.Artifact
	if len(resp.Artifacts) > 0 {
		artifacts = append([]domain.Artifact(nil), resp.Artifacts...)
	}
	return domain.Message{
		ID:             id,
		ConversationID: resp.ConversationID,
		Content:        content,
		Role:           domain.RoleAssistant,
		CreatedAt:      now,
		Mode:           mode,
		Artifacts:      artifacts,
	}
}

// SwitchMode changes the mode of subsequent sends. Messages are kept.
func (s *Session) SwitchMode(mode domain.ChatMode) error {
	if !mode.Valid() {
		return errors.New("chatsession: unknown mode " + string(mode))
	}
	s.mu.Lock()
	if s.state.CurrentMode == mode {
		s.mu.Unlock()
		return nil
	}
	s.state.CurrentMode = mode
	s.generation++
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// ClearMessages empties the list and the error, and detaches the session
// from its conversation. Mode and loading flag are untouched.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.state.Messages = []domain.Message{}
	s.state.Error = ""
	s.state.ConversationID = ""
	s.generation++
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(snap)
}

// LoadConversation shows a stored conversation and continues it.
func (s *Session) LoadConversation(conv domain.Conversation) {
	s.mu.Lock()
	s.state.Messages = domain.CloneMessages(conv.Messages)
	if s.state.Messages == nil {
		s.state.Messages = []domain.Message{}
	}
	s.state.ConversationID = conv.ID
	s.state.Error = ""
	s.generation++
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(snap)
}

// MessagesForMode returns the messages tagged with mode, in order.
func (s *Session) MessagesForMode(mode domain.ChatMode) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Message{}
	for _, msg := range s.state.Messages {
		if msg.Mode == mode {
			out = append(out, msg)
		}
	}
	return domain.CloneMessages(out)
}

func (s *Session) notify(snap State) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
