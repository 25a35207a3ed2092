package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"groovie/internal/util"
	"groovie/pkg/access"
	"groovie/pkg/ai"
	"groovie/pkg/domain"
	"groovie/pkg/store"
	"groovie/services/api/internal/sources"
)

// tempConversationID is what clients send before they own a conversation.
const tempConversationID = "temp"

// AccessResolver yields the stored tier of a user.
type AccessResolver interface {
	AccessLevel(ctx context.Context, userID string) (domain.AccessLevel, error)
	Invalidate(ctx context.Context, userID string) error
}

// ArtifactPublisher uploads artifacts and returns download links.
type ArtifactPublisher interface {
	Publish(ctx context.Context, userID string, a domain.Artifact) (string, error)
	Remove(ctx context.Context, userID string, artifacts []domain.Artifact) error
}

// SourceFetcher extracts reading material from links in a message.
type SourceFetcher interface {
	FetchFromMessage(ctx context.Context, message string) []sources.Document
}

// Config holds runtime dependencies of the core application.
type Config struct {
	Store        store.Store
	Generator    ai.ChatGenerator
	Access       AccessResolver
	Artifacts    ArtifactPublisher // optional
	Sources      SourceFetcher     // optional
	HistoryLimit int
	Now          func() time.Time
}

// App implements chat and conversation management.
type App struct {
	store        store.Store
	generator    ai.ChatGenerator
	access       AccessResolver
	artifacts    ArtifactPublisher
	sources      SourceFetcher
	historyLimit int
	now          func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}
	accessResolver := cfg.Access
	if accessResolver == nil {
		accessResolver = store.NewAccessLevels(cfg.Store, nil, 0)
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit < 0 {
		historyLimit = 0
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		store:        cfg.Store,
		generator:    cfg.Generator,
		access:       accessResolver,
		artifacts:    cfg.Artifacts,
		sources:      cfg.Sources,
		historyLimit: historyLimit,
		now:          now,
	}, nil
}

// Identity is an authenticated caller before its tier is resolved.
type Identity struct {
	UserID string
	Email  string
	Name   string
	// ClaimedLevel comes from the identity provider and, when valid,
	// overrides the stored tier.
	ClaimedLevel string
}

// ResolveUser maps an identity onto a user with its effective tier.
// Unknown users without a tier claim are free.
func (a *App) ResolveUser(ctx context.Context, id Identity) (domain.User, error) {
	userID := strings.TrimSpace(id.UserID)
	if userID == "" {
		return domain.User{}, errors.New("user id required")
	}
	level, err := a.access.AccessLevel(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve access level: %w", err)
	}
	user := domain.User{ID: userID, Email: id.Email, Name: id.Name, AccessLevel: level}

	claimed := domain.AccessLevel(strings.ToLower(strings.TrimSpace(id.ClaimedLevel)))
	if !claimed.Valid() || claimed == level {
		return user, nil
	}
	existing, ok, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	now := a.now()
	if !ok {
		existing = domain.User{ID: userID, CreatedAt: now}
	}
	if id.Email != "" {
		existing.Email = id.Email
	}
	if id.Name != "" {
		existing.Name = id.Name
	}
	existing.AccessLevel = claimed
	existing.UpdatedAt = now
	if err := a.store.SaveUser(ctx, existing); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	if err := a.access.Invalidate(ctx, userID); err != nil {
		util.LoggerFromContext(ctx).Warn("access cache invalidate failed", "user_id", userID, "err", err)
	}
	return existing, nil
}

// ModeView is a mode plus its lock status for one caller.
type ModeView struct {
	domain.ModeConfig
	Status access.Status `json:"status"`
}

// Modes lists every mode in registry order with the caller's access status.
func (a *App) Modes(level domain.AccessLevel) []ModeView {
	configs := domain.ModeConfigs()
	out := make([]ModeView, 0, len(configs))
	for _, mode := range domain.Modes() {
		cfg := configs[mode]
		out = append(out, ModeView{ModeConfig: cfg, Status: access.GetAccessStatus(level, cfg)})
	}
	return out
}

// CheckModeAccess returns ErrUnknownMode or a wrapped ErrModeLocked.
func (a *App) CheckModeAccess(level domain.AccessLevel, mode domain.ChatMode) (domain.ModeConfig, error) {
	cfg, ok := domain.LookupMode(mode)
	if !ok {
		return domain.ModeConfig{}, ErrUnknownMode
	}
	if !access.CanAccessMode(level, cfg.RequiredAccess) {
		return cfg, fmt.Errorf("%w: %s requires %s", ErrModeLocked, cfg.Label, cfg.RequiredAccess)
	}
	return cfg, nil
}

type ChatRequest struct {
	Mode           domain.ChatMode
	Message        string
	ConversationID string
}

type ChatReply struct {
	Content        string            `json:"content"`
	ConversationID string            `json:"conversationId"`
	MessageID      string            `json:"messageId"`
	Mode           domain.ChatMode   `json:"mode"`
	Artifacts      []domain.Artifact `json:"artifacts"`
}

// Chat generates one assistant reply and persists the exchange.
// A new conversation is only stored once the reply succeeded.
func (a *App) Chat(ctx context.Context, user domain.User, req ChatRequest) (ChatReply, error) {
	if _, err := a.CheckModeAccess(user.AccessLevel, req.Mode); err != nil {
		return ChatReply{}, err
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatReply{}, ErrEmptyMessage
	}
	logger := util.LoggerFromContext(ctx)

	conv, isNew, err := a.ensureConversation(ctx, user, req.Mode, message, req.ConversationID)
	if err != nil {
		return ChatReply{}, err
	}
	var history []domain.Message
	if !isNew && a.historyLimit > 0 {
		history, err = a.store.ListRecentMessages(ctx, conv.ID, a.historyLimit)
		if err != nil {
			return ChatReply{}, fmt.Errorf("load history: %w", err)
		}
	}
	var docs []sources.Document
	if req.Mode == domain.ModeReadingResource && a.sources != nil {
		docs = a.sources.FetchFromMessage(ctx, message)
		for _, doc := range docs {
			if doc.Err != nil {
				logger.Info("source fetch failed", "url", doc.URL, "err", doc.Err)
			}
		}
	}

	userMsg := domain.Message{
		ID:             util.NewID(),
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           domain.RoleUser,
		Content:        message,
		Mode:           req.Mode,
		CreatedAt:      a.now(),
	}
	reply, err := a.generator.Generate(ctx, buildPrompt(req.Mode, history, message, docs))
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	replyAt := a.now()
	artifacts := a.publishArtifacts(ctx, user.ID, detectArtifacts(req.Mode, message, reply, replyAt))
	assistantMsg := domain.Message{
		ID:             util.NewID(),
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           domain.RoleAssistant,
		Content:        reply,
		Mode:           req.Mode,
		CreatedAt:      replyAt,
		Artifacts:      artifacts,
	}

	if isNew {
		conv.Messages = []domain.Message{userMsg, assistantMsg}
		conv.Artifacts = artifacts
		conv.UpdatedAt = replyAt
		if err := a.store.CreateConversation(ctx, conv); err != nil {
			return ChatReply{}, fmt.Errorf("create conversation: %w", err)
		}
	} else if err := a.store.AppendMessages(ctx, conv.ID, userMsg, assistantMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChatReply{}, ErrConversationNotFound
		}
		return ChatReply{}, fmt.Errorf("save messages: %w", err)
	}

	logger.Info("chat reply", "mode", req.Mode, "conversation_id", conv.ID, "artifacts", len(artifacts), "sources", len(docs))
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}
	return ChatReply{
		Content:        reply,
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Mode:           req.Mode,
		Artifacts:      artifacts,
	}, nil
}

func (a *App) publishArtifacts(ctx context.Context, userID string, artifacts []domain.Artifact) []domain.Artifact {
	if a.artifacts == nil {
		return artifacts
	}
	for i := range artifacts {
		url, err := a.artifacts.Publish(ctx, userID, artifacts[i])
		if err != nil {
			util.LoggerFromContext(ctx).Warn("artifact upload failed", "artifact_id", artifacts[i].ID, "type", artifacts[i].Type, "err", err)
			continue
		}
		artifacts[i].DownloadURL = url
	}
	return artifacts
}

func (a *App) ensureConversation(ctx context.Context, user domain.User, mode domain.ChatMode, message, conversationID string) (domain.Conversation, bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID != "" && conversationID != tempConversationID {
		conv, err := a.ownedConversation(ctx, user.ID, conversationID)
		return conv, false, err
	}
	now := a.now()
	return domain.Conversation{
		ID:        util.NewID(),
		UserID:    user.ID,
		Mode:      mode,
		Title:     conversationTitle(message),
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

func (a *App) ownedConversation(ctx context.Context, userID, id string) (domain.Conversation, error) {
	conv, ok, err := a.store.GetConversation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return domain.Conversation{}, ErrConversationNotFound
	}
	if conv.UserID != userID {
		return domain.Conversation{}, ErrConversationForbidden
	}
	return conv, nil
}

// ListConversations returns the user's conversations in creation order.
// An empty mode lists all modes.
func (a *App) ListConversations(ctx context.Context, userID string, mode domain.ChatMode) ([]domain.Conversation, error) {
	if mode != "" && !mode.Valid() {
		return nil, ErrUnknownMode
	}
	items, err := a.store.ListConversations(ctx, store.ConversationFilter{UserID: userID, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// CreateConversation starts an empty conversation. The caller must be able
// to use mode.
func (a *App) CreateConversation(ctx context.Context, user domain.User, mode domain.ChatMode, title string) (domain.Conversation, error) {
	if _, err := a.CheckModeAccess(user.AccessLevel, mode); err != nil {
		return domain.Conversation{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultConversationTitle
	}
	now := a.now()
	conv := domain.Conversation{
		ID:        util.NewID(),
		UserID:    user.ID,
		Mode:      mode,
		Title:     title,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (a *App) GetConversation(ctx context.Context, userID, id string) (domain.Conversation, error) {
	return a.ownedConversation(ctx, userID, id)
}

// RenameConversation sets the title and bumps updatedAt.
func (a *App) RenameConversation(ctx context.Context, userID, id, title string) (domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Conversation{}, ErrEmptyTitle
	}
	if _, err := a.ownedConversation(ctx, userID, id); err != nil {
		return domain.Conversation{}, err
	}
	conv, err := a.store.UpdateConversationTitle(ctx, id, title, a.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Conversation{}, ErrConversationNotFound
		}
		return domain.Conversation{}, fmt.Errorf("rename conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation removes the conversation and, best effort, its uploaded artifacts.
func (a *App) DeleteConversation(ctx context.Context, userID, id string) error {
	conv, err := a.ownedConversation(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteConversation(ctx, conv.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	if a.artifacts != nil && len(conv.Artifacts) > 0 {
		if err := a.artifacts.Remove(ctx, userID, conv.Artifacts); err != nil {
			slog.Warn("artifact cleanup failed", "conversation_id", conv.ID, "err", err)
		}
	}
	return nil
}
