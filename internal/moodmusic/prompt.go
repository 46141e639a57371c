package moodmusic

import (
	"fmt"
	"strings"
)

// dedupePrefix is how much of a message identifies a repeat.
const dedupePrefix = 100

const promptTemplate = `Based on the following conversation, suggest a single song that matches the current mood and atmosphere. Please respond in this exact format:

Song: [Artist Name] - [Song Title]

Recent conversation:
%s

Choose a song that captures the emotional tone, energy level, and overall vibe of this conversation. Focus on the most recent messages to understand the current mood.`

// processHistory keeps the last n turns, dropping empty messages and
// repeats of the same speaker and opening text.
func processHistory(turns []Turn, n int) []Turn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	seen := make(map[string]bool, len(turns))
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		key := speakerLabel(t) + ":" + prefix(t.Text, dedupePrefix)
		if seen[key] {
			continue
		}
		seen[key] = true
		t.Text = text
		out = append(out, t)
	}
	return out
}

// renderSnippet formats turns as "User: ..." and "Character: ..." blocks.
func renderSnippet(turns []Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = speakerLabel(t) + ": " + t.Text
	}
	return strings.Join(parts, "\n\n")
}

func buildPrompt(snippet string) string {
	return fmt.Sprintf(promptTemplate, snippet)
}

func speakerLabel(t Turn) string {
	if t.IsUser {
		return "User"
	}
	return "Character"
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}
