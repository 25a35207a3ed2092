// Package history keeps the conversation list of one (mode, user) scope in
// sync with the API.
package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"groovie/pkg/apiclient"
	"groovie/pkg/domain"
)

// ErrNoUser is returned by Create when the scope has no user.
var ErrNoUser = errors.New("history: no user in scope")

// ErrScopeChanged is returned by Create when SetScope ran while the request
// was in flight. The conversation exists on the server but is not listed.
var ErrScopeChanged = errors.New("history: scope changed during create")

// Backend is the conversation API. *apiclient.Client implements it.
type Backend interface {
	ListConversations(ctx context.Context, mode domain.ChatMode, userID string) ([]domain.Conversation, error)
	CreateConversation(ctx context.Context, req apiclient.CreateConversationRequest) (domain.Conversation, error)
	UpdateConversation(ctx context.Context, id, title string) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

type State struct {
	Conversations []domain.Conversation
	IsLoading     bool
	Error         string
	Mode          domain.ChatMode
	UserID        string
}

func (s State) clone() State {
	out := s
	out.Conversations = make([]domain.Conversation, len(s.Conversations))
	for i, c := range s.Conversations {
		out.Conversations[i] = c.Clone()
	}
	return out
}

type Options struct {
	Backend  Backend
	Mode     domain.ChatMode
	UserID   string
	OnChange func(State)
	OnError  func(error)
	Now      func() time.Time
}

// History is safe for concurrent use. Callbacks run outside the lock.
type History struct {
	backend  Backend
	onChange func(State)
	onError  func(error)
	now      func() time.Time

	mu       sync.Mutex
	state    State
	fetching int
	// scope is bumped on SetScope; list results from an older scope are dropped.
	scope uint64
}

func New(opts Options) (*History, error) {
	if opts.Backend == nil {
		return nil, errors.New("history: backend required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = domain.DefaultMode
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &History{
		backend:  opts.Backend,
		onChange: opts.OnChange,
		onError:  opts.OnError,
		now:      now,
		state: State{
			Conversations: []domain.Conversation{},
			Mode:          mode,
			UserID:        strings.TrimSpace(opts.UserID),
		},
	}, nil
}

func (h *History) Snapshot() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.clone()
}

// Fetch replaces the list with the server's. Without a user it does nothing.
func (h *History) Fetch(ctx context.Context) error {
	h.mu.Lock()
	mode, userID, scope := h.state.Mode, h.state.UserID, h.scope
	if userID == "" {
		h.mu.Unlock()
		return nil
	}
	h.fetching++
	h.state.IsLoading = true
	h.state.Error = ""
	snap := h.state.clone()
	h.mu.Unlock()
	h.notify(snap)

	items, err := h.backend.ListConversations(ctx, mode, userID)

	h.mu.Lock()
	h.fetching--
	h.state.IsLoading = h.fetching > 0
	current := scope == h.scope
	if current {
		if err != nil {
			h.state.Error = err.Error()
		} else {
			h.state.Conversations = cloneAll(items)
		}
	}
	snap = h.state.clone()
	h.mu.Unlock()
	h.notify(snap)
	if err != nil && current {
		h.fail(err)
	}
	return err
}

// Create starts a conversation in the current scope and appends it.
func (h *History) Create(ctx context.Context, title string) (*domain.Conversation, error) {
	h.mu.Lock()
	mode, userID, scope := h.state.Mode, h.state.UserID, h.scope
	if userID == "" {
		h.mu.Unlock()
		return nil, ErrNoUser
	}
	h.state.Error = ""
	h.mu.Unlock()

	conv, err := h.backend.CreateConversation(ctx, apiclient.CreateConversationRequest{
		Title:  title,
		Mode:   mode,
		UserID: userID,
	})
	if err != nil {
		h.recordError(err)
		return nil, err
	}
	h.mu.Lock()
	if scope != h.scope {
		h.mu.Unlock()
		return nil, ErrScopeChanged
	}
	h.state.Conversations = append(h.state.Conversations, conv.Clone())
	snap := h.state.clone()
	h.mu.Unlock()
	h.notify(snap)
	out := conv.Clone()
	return &out, nil
}

// Delete removes the conversation on the server, then locally.
func (h *History) Delete(ctx context.Context, id string) error {
	h.clearError()
	if err := h.backend.DeleteConversation(ctx, id); err != nil {
		h.recordError(err)
		return err
	}
	h.mutate(func(s *State) {
		kept := make([]domain.Conversation, 0, len(s.Conversations))
		for _, c := range s.Conversations {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		s.Conversations = kept
	})
	return nil
}

// UpdateTitle renames on the server, then patches title and updatedAt locally.
func (h *History) UpdateTitle(ctx context.Context, id, title string) error {
	h.clearError()
	updated, err := h.backend.UpdateConversation(ctx, id, title)
	if err != nil {
		h.recordError(err)
		return err
	}
	newTitle := updated.Title
	if newTitle == "" {
		newTitle = title
	}
	at := updated.UpdatedAt
	if at.IsZero() {
		at = h.now()
	}
	h.mutate(func(s *State) {
		for i := range s.Conversations {
			if s.Conversations[i].ID == id {
				s.Conversations[i].Title = newTitle
				s.Conversations[i].UpdatedAt = at
			}
		}
	})
	return nil
}

// SetScope switches mode or user and re-fetches when either changed.
// The old list is dropped immediately.
func (h *History) SetScope(ctx context.Context, mode domain.ChatMode, userID string) error {
	userID = strings.TrimSpace(userID)
	h.mu.Lock()
	if h.state.Mode == mode && h.state.UserID == userID {
		h.mu.Unlock()
		return nil
	}
	h.state.Mode = mode
	h.state.UserID = userID
	h.state.Conversations = []domain.Conversation{}
	h.state.Error = ""
	h.scope++
	snap := h.state.clone()
	h.mu.Unlock()
	h.notify(snap)
	return h.Fetch(ctx)
}

func (h *History) mutate(fn func(*State)) {
	h.mu.Lock()
	fn(&h.state)
	snap := h.state.clone()
	h.mu.Unlock()
	h.notify(snap)
}

func (h *History) clearError() {
	h.mu.Lock()
	h.state.Error = ""
	h.mu.Unlock()
}

func (h *History) recordError(err error) {
	h.mutate(func(s *State) { s.Error = err.Error() })
	h.fail(err)
}

func (h *History) fail(err error) {
	if h.onError != nil {
		h.onError(err)
	}
}

func (h *History) notify(snap State) {
	if h.onChange != nil {
		h.onChange(snap)
	}
}

func cloneAll(items []domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, len(items))
	for i, c := range items {
		out[i] = c.Clone()
	}
	return out
}
