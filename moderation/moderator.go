// Package moderation censors disallowed terms in message bodies before they
// reach the store. Matching is resistant to spacing, punctuation, and common
// leet-speak substitutions.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// mapping tracks, for every rune kept in the normalized text, its index in
// the original body so matched spans can be censored in place.
type mapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list.
func NewModerator(censoredWords []string, censoredChar rune) (Moderator, error) {
	patterns := make([][]rune, len(censoredWords))
	for i, word := range censoredWords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: machine, censoredChar: censoredChar}, nil
}

// Censor replaces each matched span with the censored character, preserving
// spacing, and returns the list of matched (normalized) words.
func (m *Moderator) Censor(original string) (string, []string) {
	// A zero Moderator (no word list configured) passes everything through.
	if m.matcher == nil {
		return original, nil
	}
	textMapping := m.normalize(original)
	if len(textMapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(textMapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(textMapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := textMapping.origIdx[normStart]
		origEnd := textMapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	return string(origRunes), found
}

// normalize lowercases, strips noise, and undoes leet substitutions while
// recording original rune positions.
func (m *Moderator) normalize(input string) mapping {
	origRunes := []rune(input)
	result := mapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		result.normalized = append(result.normalized, unicode.ToLower(clean))
		result.origIdx = append(result.origIdx, i)
	}
	return result
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet-speak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
