package grounding

import (
	"regexp"
	"strconv"
	"strings"
)

// citationMarker matches an inline reference marker like "[3]".
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// citationNumbers returns the reference numbers cited in a sentence, in
// order of appearance, e.g. "X [2] and Y [1]" -> [2, 1].
func citationNumbers(sentence string) []int {
	matches := citationMarker.FindAllStringSubmatch(sentence, -1)
	if len(matches) == 0 {
		return nil
	}
	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

// stripCitationMarkers removes "[k]" markers from a sentence so the
// residual text can be matched against chunk content.
func stripCitationMarkers(sentence string) string {
	return strings.TrimSpace(citationMarker.ReplaceAllString(sentence, ""))
}
