package app

import (
	"strings"
	"time"

	"groovie/internal/util"
	"groovie/pkg/domain"
)

type artifactRule struct {
	kind     domain.ArtifactType
	label    string
	keywords []string
}

// Rules are per mode. A request may produce several artifacts, one per type.
var artifactRules = map[domain.ChatMode][]artifactRule{
	domain.ModeTeachingAssistant: {
		{kind: domain.ArtifactLessonPlan, label: "Lesson Plan", keywords: []string{"lesson plan", "lesson"}},
		{kind: domain.ArtifactActivity, label: "Activity", keywords: []string{"activity", "activities", "worksheet", "exercise"}},
		{kind: domain.ArtifactAssessment, label: "Assessment", keywords: []string{"assessment", "quiz", "quizzes", "test", "tests", "rubric", "exam"}},
	},
	domain.ModeMagicLibrarian: {
		{kind: domain.ArtifactDecodable, label: "Decodable", keywords: []string{"decodable", "story", "stories", "reader"}},
		{kind: domain.ArtifactPhonicsGame, label: "Phonics Game", keywords: []string{"phonics game", "game", "games"}},
	},
}

// detectArtifacts returns the artifacts a request asked for, each carrying
// the reply as content.
func detectArtifacts(mode domain.ChatMode, message, reply string, now time.Time) []domain.Artifact {
	rules := artifactRules[mode]
	if len(rules) == 0 || strings.TrimSpace(reply) == "" {
		return nil
	}
	lower := strings.ToLower(message)
	var out []domain.Artifact
	for _, rule := range rules {
		if !containsWord(lower, rule.keywords) {
			continue
		}
		out = append(out, domain.Artifact{
			ID:        util.NewID(),
			Type:      rule.kind,
			Title:     rule.label + ": " + conversationTitle(message),
			Content:   reply,
			CreatedAt: now,
		})
	}
	return out
}

// containsWord matches keywords on word boundaries so "contest" is not a "test".
func containsWord(text string, keywords []string) bool {
	for _, kw := range keywords {
		for start := 0; ; {
			idx := strings.Index(text[start:], kw)
			if idx < 0 {
				break
			}
			idx += start
			end := idx + len(kw)
			if boundary(text, idx-1) && boundary(text, end) {
				return true
			}
			start = idx + 1
		}
	}
	return false
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
