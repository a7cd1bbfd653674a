package grounding

import (
	"testing"

	groundctx "github.com/groundrag/groundrag/context"
)

func TestValidateExtractiveVerifiesExactQuote(t *testing.T) {
	chunks := []groundctx.Chunk{
		{ChunkID: 1, Content: "the system shall log every request"},
	}
	answer := `"the system shall log every request" [1]`

	result := ValidateExtractive(answer, chunks)
	if !result.AllVerified {
		t.Fatalf("expected all_verified = true, got %+v", result)
	}
	if len(result.Quotes) != 1 || !result.Quotes[0].Verified {
		t.Errorf("expected quote verified, got %+v", result.Quotes)
	}
}

func TestValidateExtractiveRejectsAlteredQuote(t *testing.T) {
	chunks := []groundctx.Chunk{
		{ChunkID: 1, Content: "the system shall log every request"},
	}
	answer := `"the system must log every request" [1]`

	result := ValidateExtractive(answer, chunks)
	if result.AllVerified {
		t.Fatalf("expected all_verified = false for altered quote")
	}
	if result.Quotes[0].Verified {
		t.Errorf("expected quote flagged unverified")
	}
}

func TestValidateExtractiveNoQuotesVerifiesVacuously(t *testing.T) {
	result := ValidateExtractive("a plain unquoted answer", nil)
	if !result.AllVerified {
		t.Errorf("expected vacuous true for answer with no quotes")
	}
}
