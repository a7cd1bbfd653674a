package grounding

import "testing"

func TestWordOverlapScoreFullMatch(t *testing.T) {
	score := wordOverlapScore("the system validates requests", "requests are validated by the system")
	if score < 0.5 {
		t.Errorf("wordOverlapScore() = %v, want high overlap", score)
	}
}

func TestWordOverlapScoreNoContentWords(t *testing.T) {
	score := wordOverlapScore("the is a", "of for on")
	if score != 0 {
		t.Errorf("wordOverlapScore() with only stopwords = %v, want 0", score)
	}
}

func TestWordOverlapScoreSubtractsStopwordsSymmetrically(t *testing.T) {
	// Stopwords overlapping between sentence and content must not
	// contribute to the score on either side.
	score := wordOverlapScore("the requests are logged", "the responses are cached")
	if score > 0.5 {
		t.Errorf("wordOverlapScore() = %v, stopword overlap should not inflate score", score)
	}
}

func TestFindMatchingExcerptPicksBestSentence(t *testing.T) {
	content := "Unrelated filler text here. The retrieval engine fuses bm25 and dense scores. More filler."
	excerpt := findMatchingExcerpt("How are bm25 and dense scores combined?", content)
	if excerpt != "The retrieval engine fuses bm25 and dense scores." {
		t.Errorf("findMatchingExcerpt() = %q", excerpt)
	}
}

func TestFindMatchingExcerptTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	excerpt := findMatchingExcerpt("word", long+".")
	if len(excerpt) > excerptMaxLen+3 {
		t.Errorf("findMatchingExcerpt() length = %d, want <= %d", len(excerpt), excerptMaxLen+3)
	}
}

func TestFindMatchingExcerptNoOverlap(t *testing.T) {
	excerpt := findMatchingExcerpt("zzz", "completely unrelated content.")
	if excerpt != "" {
		t.Errorf("findMatchingExcerpt() = %q, want empty", excerpt)
	}
}
