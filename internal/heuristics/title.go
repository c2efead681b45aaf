package heuristics

import (
	"regexp"
	"strings"
)

const (
	DefaultTitle            = "Support request"
	PreferredTitleMaxLength = 60
	HardTitleMaxLength      = 120
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SuggestTitle derives a short title from the first sentence of a
// description.
func SuggestTitle(description string) string {
	compact := strings.Join(strings.Fields(description), " ")
	if compact == "" {
		return DefaultTitle
	}
	first := compact
	if loc := sentenceEnd.FindStringIndex(compact); loc != nil {
		first = compact[:loc[0]+1]
	}
	candidate := trimTitle(first)
	if candidate == "" {
		return DefaultTitle
	}
	candidate = truncateRunes(candidate, PreferredTitleMaxLength)
	if candidate == "" {
		return DefaultTitle
	}
	return candidate
}

// NormalizeTitle cleans a remotely suggested title. It returns "" when
// nothing usable remains.
func NormalizeTitle(raw string) string {
	title := trimTitle(strings.Join(strings.Fields(raw), " "))
	if title == "" {
		return ""
	}
	return truncateRunes(title, HardTitleMaxLength)
}

func trimTitle(s string) string {
	s = strings.Trim(s, " \"'`")
	return strings.TrimRight(s, " .!?;:")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimRight(string(runes[:max]), " ")
}
