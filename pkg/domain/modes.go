package domain

import (
	"fmt"
	"strings"
)

// ChatMode identifies one of the product surfaces.
type ChatMode string

const (
	ModeReadingResource   ChatMode = "reading-resource"
	ModeTeachingAssistant ChatMode = "teaching-assistant"
	ModeMagicLibrarian    ChatMode = "magic-librarian"
)

// DefaultMode is the mode a new chat session starts in.
const DefaultMode = ModeReadingResource

// ModeConfig is the static display and gating metadata of a mode.
type ModeConfig struct {
	ID             ChatMode    `json:"id"`
	Label          string      `json:"label"`
	Description    string      `json:"description"`
	Placeholder    string      `json:"placeholder"`
	RequiredAccess AccessLevel `json:"requiredAccess"`
	Icon           string      `json:"icon"`
	Color          string      `json:"color"`
}

var modeOrder = []ChatMode{ModeReadingResource, ModeTeachingAssistant, ModeMagicLibrarian}

var modeRegistry = map[ChatMode]ModeConfig{
	ModeReadingResource: {
		ID:             ModeReadingResource,
		Label:          "Reading Resource",
		Description:    "Find and distill reading materials",
		Placeholder:    "Ask Reading Resource...",
		RequiredAccess: AccessFree,
		Icon:           "BookOpen",
		Color:          "text-blue-600",
	},
	ModeTeachingAssistant: {
		ID:             ModeTeachingAssistant,
		Label:          "Teaching Assistant",
		Description:    "Create lessons and teaching materials",
		Placeholder:    "Ask Teaching Assistant...",
		RequiredAccess: AccessPremium,
		Icon:           "GraduationCap",
		Color:          "text-purple-600",
	},
	ModeMagicLibrarian: {
		ID:             ModeMagicLibrarian,
		Label:          "Magic Librarian",
		Description:    "Generate creative learning materials",
		Placeholder:    "Ask Magic Librarian...",
		RequiredAccess: AccessPremium,
		Icon:           "Wand2",
		Color:          "text-pink-600",
	},
}

// Modes returns every mode in display order.
func Modes() []ChatMode {
	return append([]ChatMode(nil), modeOrder...)
}

// ModeConfigs returns a copy of the registry.
func ModeConfigs() map[ChatMode]ModeConfig {
	out := make(map[ChatMode]ModeConfig, len(modeRegistry))
	for id, cfg := range modeRegistry {
		out[id] = cfg
	}
	return out
}

// LookupMode returns the registry entry for mode.
func LookupMode(mode ChatMode) (ModeConfig, bool) {
	cfg, ok := modeRegistry[mode]
	return cfg, ok
}

// Valid reports whether m is a registry key.
func (m ChatMode) Valid() bool {
	_, ok := modeRegistry[m]
	return ok
}

// ParseChatMode validates a raw mode identifier.
func ParseChatMode(raw string) (ChatMode, error) {
	mode := ChatMode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return "", fmt.Errorf("unknown mode %q", raw)
	}
	return mode, nil
}
