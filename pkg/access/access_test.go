package access

import (
	"testing"

	"groovie/pkg/domain"
)

func TestCanAccessModeGrid(t *testing.T) {
	levels := []domain.AccessLevel{domain.AccessFree, domain.AccessPremium, domain.AccessEducator}
	for _, user := range levels {
		for _, required := range levels {
			want := user.Rank() >= required.Rank()
			if got := CanAccessMode(user, required); got != want {
				t.Fatalf("CanAccessMode(%s, %s) = %v, want %v", user, required, got, want)
			}
		}
	}

	if CanAccessMode(domain.AccessFree, domain.AccessPremium) {
		t.Fatalf("free must not unlock premium")
	}
	if !CanAccessMode(domain.AccessEducator, domain.AccessPremium) {
		t.Fatalf("educator must unlock premium")
	}
	if !CanAccessMode(domain.AccessPremium, domain.AccessPremium) {
		t.Fatalf("premium must unlock premium")
	}
}

func TestFilterAccessibleModes(t *testing.T) {
	configs := domain.ModeConfigs()
	all := domain.Modes()

	free := FilterAccessibleModes(all, domain.AccessFree, configs)
	if len(free) != 1 || free[0] != domain.ModeReadingResource {
		t.Fatalf("free modes = %v, want [reading-resource]", free)
	}

	premium := FilterAccessibleModes(all, domain.AccessPremium, configs)
	if len(premium) != 3 {
		t.Fatalf("premium modes = %v, want all three", premium)
	}
	for i := range all {
		if premium[i] != all[i] {
			t.Fatalf("order not preserved: %v", premium)
		}
	}

	reversed := []domain.ChatMode{domain.ModeMagicLibrarian, domain.ModeReadingResource}
	got := FilterAccessibleModes(reversed, domain.AccessEducator, configs)
	if len(got) != 2 || got[0] != domain.ModeMagicLibrarian || got[1] != domain.ModeReadingResource {
		t.Fatalf("filter reordered input: %v", got)
	}
}

func TestFilterAccessibleModesDropsUnknownModes(t *testing.T) {
	configs := domain.ModeConfigs()
	got := FilterAccessibleModes([]domain.ChatMode{"unknown", domain.ModeReadingResource}, domain.AccessEducator, configs)
	if len(got) != 1 || got[0] != domain.ModeReadingResource {
		t.Fatalf("got %v, want only reading-resource", got)
	}
}

func TestGetAccessStatus(t *testing.T) {
	cfg, _ := domain.LookupMode(domain.ModeTeachingAssistant)
	if got := GetAccessStatus(domain.AccessFree, cfg); got != StatusLocked {
		t.Fatalf("free status = %s, want locked", got)
	}
	if got := GetAccessStatus(domain.AccessPremium, cfg); got != StatusAccessible {
		t.Fatalf("premium status = %s, want accessible", got)
	}
}

func TestBadge(t *testing.T) {
	tests := map[domain.AccessLevel]string{
		domain.AccessFree:     "Free",
		domain.AccessPremium:  "Premium",
		domain.AccessEducator: "Educator",
		"":                    "Free",
	}
	for level, want := range tests {
		if got := Badge(level); got != want {
			t.Fatalf("Badge(%q) = %q, want %q", level, got, want)
		}
	}
}
