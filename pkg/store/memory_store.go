package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"groovie/pkg/domain"
)

// MemoryStore keeps everything in-process. Used when no database is configured.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	conversations map[string]domain.Conversation
	order         []string // conversation ids, insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		conversations: make(map[string]domain.Conversation),
	}
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok && !existing.CreatedAt.IsZero() {
		u.CreatedAt = existing.CreatedAt
	}
	if !u.AccessLevel.Valid() {
		u.AccessLevel = domain.AccessFree
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	c = c.Clone()
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	m.conversations[c.ID] = c
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return c.Clone(), true, nil
}

func (m *MemoryStore) ListConversations(_ context.Context, filter ConversationFilter) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID := strings.TrimSpace(filter.UserID)
	out := make([]domain.Conversation, 0, len(m.order))
	for _, id := range m.order {
		c, ok := m.conversations[id]
		if !ok {
			continue
		}
		if userID != "" && c.UserID != userID {
			continue
		}
		if filter.Mode != "" && c.Mode != filter.Mode {
			continue
		}
		out = append(out, c.Clone())
	}
	return out, nil
}

func (m *MemoryStore) UpdateConversationTitle(_ context.Context, id, title string, at time.Time) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = at.UTC()
	m.conversations[id] = c
	return c.Clone(), nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, conversationID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	for _, msg := range domain.CloneMessages(msgs) {
		msg.ConversationID = conversationID
		c.Messages = append(c.Messages, msg)
		c.Artifacts = append(c.Artifacts, msg.Artifacts...)
		if msg.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = msg.CreatedAt
		}
	}
	m.conversations[conversationID] = c
	return nil
}

func (m *MemoryStore) ListRecentMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return []domain.Message{}, nil
	}
	msgs := c.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return domain.CloneMessages(msgs), nil
}
