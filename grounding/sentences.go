package grounding

import "strings"

// abbreviations are the common title/initial patterns the sentence
// splitter must not break on. Go's regexp (RE2) has no lookbehind, so
// the guard that a Python implementation would express as a negative
// lookbehind is applied procedurally instead: look at what precedes a
// candidate split point and skip it when it looks like an abbreviation.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "co": true,
}

// SplitSentences splits text at '.', '!', or '?' followed by whitespace,
// skipping split points that follow a single letter (an initial, "A.")
// or a known abbreviation ("Mr.", "Dr.").
func SplitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if !isSentenceEnd(runes[i]) {
			continue
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		if endsWithAbbreviation(cur.String()) {
			continue
		}
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}
	if cur.Len() > 0 {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// endsWithAbbreviation reports whether the text up to and including its
// trailing terminator looks like a single-letter initial ("A.") or a
// known abbreviation ("Mr.") rather than an actual sentence end.
func endsWithAbbreviation(withTerminator string) bool {
	body := strings.TrimRight(withTerminator, ".!?")
	if body == withTerminator {
		return false
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]

	runes := []rune(last)
	if len(runes) == 1 && (runes[0] >= 'A' && runes[0] <= 'Z') {
		return true
	}

	return abbreviations[strings.ToLower(last)]
}
