package store

import (
	"context"
	"errors"
	"time"

	"groovie/pkg/domain"
)

// ErrNotFound is returned by mutations that target a missing record.
var ErrNotFound = errors.New("record not found")

// ConversationFilter narrows ListConversations. Empty fields match everything.
type ConversationFilter struct {
	UserID string
	Mode   domain.ChatMode
}

// Store persists users, conversations and their messages.
//
// Lookups report absence as (zero, false, nil). Listing returns conversations
// in insertion order with their messages attached.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, bool, error)

	// conversations
	CreateConversation(ctx context.Context, c domain.Conversation) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, bool, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string, at time.Time) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// messages
	AppendMessages(ctx context.Context, conversationID string, msgs ...domain.Message) error
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// UserReader is the slice of Store the access cache needs.
type UserReader interface {
	GetUser(ctx context.Context, id string) (domain.User, bool, error)
}
