// Package validation: profanity filtering.
//
// This file implements a small word-boundary profanity filter backed by
// per-language word lists. Only English ships today; the language.Tag
// parameter keeps the call sites stable when more lists are added.
package validation

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// ProfanityFilter matches text against a language-specific word list using
// word-boundary semantics, so "scrapple" does not trip on "crap".
type ProfanityFilter struct {
	lang language.Tag
	re   *regexp.Regexp
}

// englishProfanity is deliberately compact: the endpoint accepts 50-character
// topics, so a short high-signal list beats an exhaustive one.
var englishProfanity = []string{
	"arse", "ass", "asshole", "bastard", "bitch", "bollocks", "bullshit",
	"crap", "cunt", "damn", "dick", "douche", "fuck", "fucker", "fucking",
	"jackass", "motherfucker", "nigger", "piss", "prick", "pussy", "shit",
	"slut", "twat", "wanker", "whore",
}

// NewProfanityFilter builds a filter for the given language tag. Languages
// without a word list fall back to English.
func NewProfanityFilter(lang language.Tag) *ProfanityFilter {
	words := englishProfanity
	base, _ := lang.Base()
	if base.String() != "en" {
		// No other lists yet; fall back rather than silently matching nothing.
		lang = language.English
	}

	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	return &ProfanityFilter{lang: lang, re: re}
}

// Contains reports whether text contains at least one listed word.
func (f *ProfanityFilter) Contains(text string) bool {
	if f == nil || f.re == nil || text == "" {
		return false
	}
	return f.re.MatchString(text)
}

// Language returns the tag of the active word list.
func (f *ProfanityFilter) Language() language.Tag { return f.lang }
