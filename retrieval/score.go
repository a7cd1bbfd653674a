package retrieval

// Precision computes retrieved ∩ relevant / |retrieved| over chunk ids,
// for offline evaluation of retrieval quality.
func Precision(retrieved, relevant []int64) float64 {
	if len(retrieved) == 0 {
		return 0.0
	}
	relSet := toSet(relevant)
	hits := 0
	for _, id := range toSet(retrieved) {
		if relSet[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(toSet(retrieved)))
}

// Recall computes retrieved ∩ relevant / |relevant|.
func Recall(retrieved, relevant []int64) float64 {
	if len(relevant) == 0 {
		return 0.0
	}
	retSet := toSet(retrieved)
	hits := 0
	for _, id := range toSet(relevant) {
		if retSet[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(toSet(relevant)))
}

// F1 is the harmonic mean of Precision and Recall.
func F1(retrieved, relevant []int64) float64 {
	p := Precision(retrieved, relevant)
	r := Recall(retrieved, relevant)
	if p+r == 0 {
		return 0.0
	}
	return 2 * (p * r) / (p + r)
}

// MRR computes the Mean Reciprocal Rank across a set of rankings given a
// set of relevant chunk ids: for each ranking, the reciprocal of the
// 1-based position of its first relevant hit, averaged over all rankings.
func MRR(rankings [][]int64, relevant []int64) float64 {
	if len(rankings) == 0 {
		return 0.0
	}
	relSet := toSet(relevant)

	var sum float64
	for _, ranking := range rankings {
		for i, id := range ranking {
			if relSet[id] {
				sum += 1.0 / float64(i+1)
				break
			}
		}
	}
	return sum / float64(len(rankings))
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
