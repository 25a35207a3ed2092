package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"groovie/internal/ratelimit"
	"groovie/internal/usertoken"
	"groovie/internal/util"
	"groovie/pkg/domain"
	"groovie/services/api/internal/app"
)

const (
	serviceName   = "api"
	maxBodyBytes  = 1 << 20
	defaultChatRL = 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// TokenVerifier validates bearer tokens. Nil enables header auth
	// (X-User-Id, X-Access-Level) for local development.
	TokenVerifier          *usertoken.Verifier
	Redis                  redis.UniversalClient
	ChatRateLimitPerMinute int
	TrustedProxies         *util.TrustedProxies
	CORSAllowedOrigins     []string
}

// Server exposes the chat, conversation and page endpoints.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	mux            *http.ServeMux
	chatLimiter    ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = defaultChatRL
	}
	var (
		limiter ratelimit.Limiter
		err     error
	)
	if cfg.Redis != nil {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.Redis, "groovie:api:ratelimit:chat", chatLimit, time.Minute)
	} else {
		limiter, err = ratelimit.NewMemoryLimiter(chatLimit, time.Minute)
	}
	if err != nil {
		return nil, fmt.Errorf("init chat limiter: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		mux:            http.NewServeMux(),
		chatLimiter:    limiter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSAllowedOrigins,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	guarded := s.guard(s.mux)
	return util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, util.WithRequestID(util.WithRequestLog(serviceName, guarded))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/auth/access-level", s.authenticated(s.handleAccessLevel))
	s.mux.Handle("/api/modes", s.authenticated(s.handleModes))
	s.mux.Handle("/api/modes/{mode}/chat", s.authenticated(s.handleChat))
	s.mux.Handle("/api/conversations", s.authenticated(s.handleConversations))
	s.mux.Handle("/api/conversations/{id}", s.authenticated(s.handleConversationByID))

	// pages
	s.mux.HandleFunc("/{$}", s.handleHome)
	s.mux.HandleFunc("/{mode}", s.handleModePage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "api.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// authorize resolves the caller. A user already resolved by the route guard
// is reused.
func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	if user, ok := userFromContext(r.Context()); ok {
		return user, true
	}
	identity, ok := s.identify(r)
	if !ok {
		return domain.User{}, false
	}
	user, err := s.app.ResolveUser(r.Context(), identity)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("resolve user failed", "user_id", identity.UserID, "err", err)
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) identify(r *http.Request) (app.Identity, bool) {
	if s.tokenVerifier == nil {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			return app.Identity{}, false
		}
		return app.Identity{UserID: userID, ClaimedLevel: r.Header.Get("X-Access-Level")}, true
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "api.token.verify", "fail", "reason", "missing_token")
		return app.Identity{}, false
	}
	claims, err := s.tokenVerifier.Verify(r.Context(), token)
	if err != nil {
		s.audit(r, "api.token.verify", "fail", "reason", "invalid_signature_or_claims")
		return app.Identity{}, false
	}
	return app.Identity{
		UserID:       claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		ClaimedLevel: claims.AccessLevel,
	}, true
}

func (s *Server) handleAccessLevel(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.AccessLevel{"accessLevel": user.AccessLevel})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": s.app.Modes(user.AccessLevel)})
}

type chatRequest struct {
	Message        string `json:"message"`
	Mode           string `json:"mode"`
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	mode, err := domain.ParseChatMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown mode")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if raw := strings.TrimSpace(req.Mode); raw != "" {
		bodyMode, err := domain.ParseChatMode(raw)
		if err != nil || bodyMode != mode {
			writeAppError(w, app.ErrModeMismatch)
			return
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		writeAppError(w, app.ErrEmptyMessage)
		return
	}
	if _, err := s.app.CheckModeAccess(user.AccessLevel, mode); err != nil {
		s.audit(r, "api.chat", "fail", "user_id", user.ID, "mode", mode, "reason", "mode_locked")
		writeAppError(w, err)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "chat|"+user.ID, "too many chat requests") {
		s.audit(r, "api.chat", "rate_limited", "user_id", user.ID)
		return
	}
	reply, err := s.app.Chat(r.Context(), user, app.ChatRequest{
		Mode:           mode,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if errors.Is(err, app.ErrGeneration) {
			util.LoggerFromContext(r.Context()).Error("chat generation failed", "mode", mode, "err", err)
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type createConversationRequest struct {
	Title  string `json:"title"`
	Mode   string `json:"mode"`
	UserID string `json:"userId"`
}

type updateConversationRequest struct {
	Title string `json:"title"`
}

// /api/conversations
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		if !ownsScope(r.URL.Query().Get("userId"), user) {
			s.audit(r, "api.conversations.list", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var mode domain.ChatMode
		if raw := strings.TrimSpace(r.URL.Query().Get("mode")); raw != "" {
			parsed, err := domain.ParseChatMode(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unknown mode")
				return
			}
			mode = parsed
		}
		items, err := s.app.ListConversations(r.Context(), user.ID, mode)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if items == nil {
			items = []domain.Conversation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
	case http.MethodPost:
		var req createConversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if !ownsScope(req.UserID, user) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		mode, err := domain.ParseChatMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown mode")
			return
		}
		conv, err := s.app.CreateConversation(r.Context(), user, mode, req.Title)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"conversation": conv})
	default:
		methodNotAllowed(w)
	}
}

// /api/conversations/{id}
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		conv, err := s.app.GetConversation(r.Context(), user.ID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
	case http.MethodPatch:
		var req updateConversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		conv, err := s.app.RenameConversation(r.Context(), user.ID, id, req.Title)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
	case http.MethodDelete:
		if err := s.app.DeleteConversation(r.Context(), user.ID, id); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "api.conversations.delete", "success", "user_id", user.ID, "conversation_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func ownsScope(requested string, user domain.User) bool {
	requested = strings.TrimSpace(requested)
	return requested == "" || requested == user.ID
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnknownMode):
		writeError(w, http.StatusNotFound, "unknown mode")
	case errors.Is(err, app.ErrModeMismatch),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrEmptyTitle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrModeLocked):
		writeError(w, http.StatusForbidden, lockedMessage(err))
	case errors.Is(err, app.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, app.ErrConversationForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrGeneration):
		writeError(w, http.StatusBadGateway, "generation failed")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// lockedMessage strips the sentinel prefix, leaving "<Label> requires <tier>".
func lockedMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), app.ErrModeLocked.Error()+": ")
	if msg == "" {
		return app.ErrModeLocked.Error()
	}
	return msg
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, key, msg string) bool {
	if limiter.Allow(r.Context(), key) {
		return true
	}
	retry := int(limiter.Window().Seconds())
	if retry <= 0 {
		retry = 60
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
