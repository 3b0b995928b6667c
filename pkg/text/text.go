package text

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	tagsRe       = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

type ITextService interface {
	Clean(input string) string
	RemoveTags(input string) string
	ReduceToLength(input string, length int) string
}

type TextService struct{}

func NewTextService() *TextService {
	return &TextService{}
}

// Clean trims, collapses runs of whitespace and normalizes to NFC so that the
// same accented name from two payloads compares equal.
func (ts *TextService) Clean(input string) string {
	if input == "" {
		return ""
	}
	cleaned := norm.NFC.String(input)
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// RemoveTags drops markup and decodes entities, then cleans the result.
func (ts *TextService) RemoveTags(input string) string {
	if input == "" {
		return ""
	}
	stripped := tagsRe.ReplaceAllString(input, " ")
	return ts.Clean(html.UnescapeString(stripped))
}

// ReduceToLength cuts input to at most length runes, preferring a word boundary.
func (ts *TextService) ReduceToLength(input string, length int) string {
	if length <= 0 {
		return ""
	}
	if utf8.RuneCountInString(input) <= length {
		return input
	}

	runes := []rune(input)[:length]
	cut := string(runes)
	if idx := strings.LastIndex(cut, " "); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
