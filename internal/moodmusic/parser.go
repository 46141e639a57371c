package moodmusic

import (
	"regexp"
	"strings"
)

// UnknownArtist is used when a suggestion names no artist.
const UnknownArtist = "Unknown Artist"

// Suggestion is a song to search for. Title is never empty.
type Suggestion struct {
	Title  string
	Artist string
}

var (
	titlePattern  = regexp.MustCompile(`(?i)Title:\s*(.*?)(?:\n|$)`)
	artistPattern = regexp.MustCompile(`(?i)Artist:\s*(.*?)(?:\n|$)`)
	byPattern     = regexp.MustCompile(`(?i)by\s+(.*?)(?:\n|$)`)

	// Tried in order when there is no Title: line. The last one is the
	// quoted form, the only one whose artist may come from byPattern.
	altTitlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Song:\s*(.*?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Track:\s*(.*?)(?:\n|$)`),
		regexp.MustCompile(`(?i)"([^"]+)"\s*by\s*`),
	}
)

// quotedPattern indexes the quoted form in altTitlePatterns.
const quotedPattern = 2

// ParseSuggestion extracts a song from free-form model output.
// It reports false when no title can be found.
func ParseSuggestion(text string) (Suggestion, bool) {
	title, titleOK := firstGroup(titlePattern, text)
	labelled, quoted := false, false
	if !titleOK {
		for i, re := range altTitlePatterns {
			if title, titleOK = firstGroup(re, text); titleOK {
				quoted = i == quotedPattern
				labelled = !quoted
				break
			}
		}
	}

	artist, artistOK := firstGroup(artistPattern, text)

	// "Song: Artist - Title" is the format the prompt asks for.
	if !artistOK && labelled {
		if a, t, ok := strings.Cut(title, " - "); ok {
			if a, t = clean(a), clean(t); a != "" && t != "" {
				artist, title, artistOK = a, t, true
			}
		}
	}

	if !artistOK && quoted {
		artist, artistOK = firstGroup(byPattern, text)
	}

	title = clean(title)
	artist = clean(artist)
	if title == "" {
		return Suggestion{}, false
	}
	if artist == "" {
		artist = UnknownArtist
	}
	return Suggestion{Title: title, Artist: artist}, true
}

func firstGroup(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var quoteReplacer = strings.NewReplacer(`"`, "", "“", "", "”", "")

func clean(s string) string {
	return strings.TrimSpace(quoteReplacer.Replace(strings.TrimSpace(s)))
}
