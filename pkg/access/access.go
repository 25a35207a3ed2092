// Package access decides which chat modes an access tier unlocks.
package access

import "groovie/pkg/domain"

type Status string

const (
	StatusAccessible Status = "accessible"
	StatusLocked     Status = "locked"
)

// CanAccessMode reports whether level meets required.
func CanAccessMode(level, required domain.AccessLevel) bool {
	return level.Rank() >= required.Rank()
}

// FilterAccessibleModes keeps the modes level unlocks, preserving input order.
// Modes without a config are dropped.
func FilterAccessibleModes(modes []domain.ChatMode, level domain.AccessLevel, configs map[domain.ChatMode]domain.ModeConfig) []domain.ChatMode {
	out := make([]domain.ChatMode, 0, len(modes))
	for _, mode := range modes {
		cfg, ok := configs[mode]
		if !ok {
			continue
		}
		if CanAccessMode(level, cfg.RequiredAccess) {
			out = append(out, mode)
		}
	}
	return out
}

func GetAccessStatus(level domain.AccessLevel, cfg domain.ModeConfig) Status {
	if CanAccessMode(level, cfg.RequiredAccess) {
		return StatusAccessible
	}
	return StatusLocked
}

// Badge is the short display label of a tier.
func Badge(level domain.AccessLevel) string {
	switch level {
	case domain.AccessPremium:
		return "Premium"
	case domain.AccessEducator:
		return "Educator"
	default:
		return "Free"
	}
}
