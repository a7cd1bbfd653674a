package grounding

import (
	"strings"
	"unicode"
)

// excerptMaxLen truncates a located excerpt to this many characters.
const excerptMaxLen = 200

// stopWords is subtracted from both sides of a word-overlap comparison
// (the symmetric fix spec.md's Open Questions pins: the original
// scorer only stripped stopwords from one side).
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true, "and": true,
	"or": true, "but": true, "as": true, "if": true, "then": true,
	"than": true, "so": true, "such": true, "not": true, "no": true,
	"can": true, "will": true, "would": true, "could": true, "should": true,
}

// wordSet tokenizes text into its lowercased word set, stripping
// stopwords so overlap scoring measures content words only.
func wordSet(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if w == "" || stopWords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

// wordOverlapScore is the PARAPHRASE strategy's scoring function:
// |sentence_words ∩ chunk_words| / |sentence_words|, both sides
// stopword-stripped.
func wordOverlapScore(sentence, content string) float64 {
	sentenceWords := wordSet(sentence)
	if len(sentenceWords) == 0 {
		return 0
	}
	contentWords := wordSet(content)

	overlap := 0
	for w := range sentenceWords {
		if contentWords[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(sentenceWords))
}

// findMatchingExcerpt splits content into sentences and returns the one
// with the highest raw word overlap against sentence, truncated to
// excerptMaxLen with an ellipsis.
func findMatchingExcerpt(sentence, content string) string {
	sentenceWords := wordSet(sentence)
	if len(sentenceWords) == 0 {
		return ""
	}

	best := ""
	bestScore := 0
	for _, candidate := range SplitSentences(content) {
		words := wordSet(candidate)
		overlap := 0
		for w := range words {
			if sentenceWords[w] {
				overlap++
			}
		}
		if overlap > bestScore {
			bestScore = overlap
			best = candidate
		}
	}

	if best == "" {
		return ""
	}
	if len(best) > excerptMaxLen {
		return best[:excerptMaxLen] + "..."
	}
	return best
}
