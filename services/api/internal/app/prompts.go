package app

import (
	"fmt"
	"strings"
	"unicode"

	"groovie/pkg/ai"
	"groovie/pkg/domain"
	"groovie/services/api/internal/sources"
)

const (
	defaultConversationTitle = "New conversation"
	maxTitleRunes            = 48
)

var systemPrompts = map[domain.ChatMode]string{
	domain.ModeReadingResource: `You are Reading Resource, a friendly reading guide for students.
Find and distill reading materials: recommend age-appropriate texts, summarize passages in plain language and suggest questions to check understanding.
When source material is provided, ground your answer in it and say which source you used.`,
	domain.ModeTeachingAssistant: `You are Teaching Assistant, an experienced classroom teacher helping educators.
Create lessons and teaching materials: lesson plans with objectives, materials, steps and timing; classroom activities; assessments with answer keys.
Use clear headings and numbered steps.`,
	domain.ModeMagicLibrarian: `You are Magic Librarian, a playful storyteller who makes literacy practice fun.
Generate creative learning materials: decodable stories that stick to the requested phonics patterns, phonics games with simple rules, and rhymes.
Keep language simple and encouraging.`,
}

func systemPrompt(mode domain.ChatMode) string {
	if p, ok := systemPrompts[mode]; ok {
		return p
	}
	return systemPrompts[domain.DefaultMode]
}

func buildPrompt(mode domain.ChatMode, history []domain.Message, message string, docs []sources.Document) ai.Prompt {
	turns := make([]ai.Turn, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		turns = append(turns, ai.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return ai.Prompt{
		System:  systemPrompt(mode),
		History: turns,
		User:    withSources(message, docs),
	}
}

func withSources(message string, docs []sources.Document) string {
	var usable []sources.Document
	for _, doc := range docs {
		if doc.Err == nil && doc.Text != "" {
			usable = append(usable, doc)
		}
	}
	if len(usable) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString(message)
	sb.WriteString("\n\nSource material:\n")
	for i, doc := range usable {
		fmt.Fprintf(&sb, "\n[%d] %s", i+1, doc.URL)
		if doc.Title != "" {
			fmt.Fprintf(&sb, " (%s)", doc.Title)
		}
		sb.WriteString("\n")
		sb.WriteString(doc.Text)
		if doc.Truncated {
			sb.WriteString(" [truncated]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// conversationTitle derives a sidebar title from the first message.
func conversationTitle(message string) string {
	text := strings.Join(strings.Fields(message), " ")
	for _, prefix := range []string{"can you please ", "could you please ", "can you ", "could you ", "please ", "help me "} {
		if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
			text = text[len(prefix):]
			break
		}
	}
	text = strings.TrimSpace(strings.TrimRight(text, "?!. "))
	if text == "" {
		return defaultConversationTitle
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	if len(runes) > maxTitleRunes {
		return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
	}
	return string(runes)
}
