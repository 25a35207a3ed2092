package server

import (
	"context"
	"net/http"
	"strings"

	"groovie/pkg/access"
	"groovie/pkg/domain"
)

type userContextKey struct{}

func contextWithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// guardExempt lists paths that skip the route guard. API routes do their own
// authentication.
func guardExempt(path string) bool {
	switch {
	case path == "/healthz", path == "/favicon.ico":
		return true
	case strings.HasPrefix(path, "/api/"), path == "/api":
		return true
	case strings.HasPrefix(path, "/static/"):
		return true
	}
	return false
}

// landingMode returns the mode a page path addresses, if any.
func landingMode(path string) (domain.ChatMode, bool) {
	segment := strings.Trim(path, "/")
	if segment == "" || strings.Contains(segment, "/") {
		return "", false
	}
	mode, err := domain.ParseChatMode(segment)
	return mode, err == nil
}

// guard requires a session on page routes and enforces the tier of mode
// landing pages.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if guardExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "api.guard", "fail", "reason", "no_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if mode, ok := landingMode(r.URL.Path); ok {
			cfg, _ := domain.LookupMode(mode)
			if !access.CanAccessMode(user.AccessLevel, cfg.RequiredAccess) {
				s.audit(r, "api.guard", "fail", "user_id", user.ID, "mode", mode, "reason", "mode_locked")
				writeError(w, http.StatusForbidden, cfg.Label+" requires "+string(cfg.RequiredAccess))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r.Context(), user)))
	})
}
