package grounding

import (
	"reflect"
	"testing"
)

func TestCitationNumbers(t *testing.T) {
	got := citationNumbers("The engine fuses scores [2] and reranks structurally [1].")
	want := []int{2, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("citationNumbers() = %v, want %v", got, want)
	}
}

func TestCitationNumbersNone(t *testing.T) {
	if got := citationNumbers("no markers here"); got != nil {
		t.Errorf("citationNumbers() = %v, want nil", got)
	}
}

func TestStripCitationMarkers(t *testing.T) {
	got := stripCitationMarkers("Scores are fused [1] using a weighted sum [2].")
	want := "Scores are fused  using a weighted sum ."
	if got != want {
		t.Errorf("stripCitationMarkers() = %q, want %q", got, want)
	}
}
