package server

import (
	"net/http"

	"groovie/pkg/access"
	"groovie/pkg/domain"
)

type modeCard struct {
	ID             domain.ChatMode    `json:"id"`
	Label          string             `json:"label"`
	Description    string             `json:"description"`
	RequiredAccess domain.AccessLevel `json:"requiredAccess"`
	Premium        bool               `json:"premium"`
	Href           string             `json:"href"`
}

type homePage struct {
	Title   string     `json:"title"`
	Tagline string     `json:"tagline"`
	Modes   []modeCard `json:"modes"`
	Footer  string     `json:"footer"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	configs := domain.ModeConfigs()
	cards := make([]modeCard, 0, len(configs))
	for _, mode := range domain.Modes() {
		cfg := configs[mode]
		cards = append(cards, modeCard{
			ID:             cfg.ID,
			Label:          cfg.Label,
			Description:    cfg.Description,
			RequiredAccess: cfg.RequiredAccess,
			Premium:        cfg.RequiredAccess == domain.AccessPremium,
			Href:           "/" + string(cfg.ID),
		})
	}
	writeJSON(w, http.StatusOK, homePage{
		Title:   "Groovie",
		Tagline: "Personalized AI-powered learning tools for every student",
		Modes:   cards,
		Footer:  "Get started with any mode above. Premium modes require an active subscription.",
	})
}

func (s *Server) handleModePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	mode, err := domain.ParseChatMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cfg, _ := domain.LookupMode(mode)
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   cfg,
		"status": access.GetAccessStatus(user.AccessLevel, cfg),
		"user":   user,
	})
}
