package usecase

import "unicode/utf8"

// levenshtein returns the edit distance between a and b in runes
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// fuzzyScore is the normalized edit distance, 0 for identical strings and 1 for nothing in common
func fuzzyScore(typed, candidate string) float64 {
	longest := max(utf8.RuneCountInString(typed), utf8.RuneCountInString(candidate))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(typed, candidate)) / float64(longest)
}

// overlapSimilarity is the Dice coefficient over the two strings' character multisets.
// Order is ignored, so transposed letters still count as shared.
func overlapSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	counts := make(map[rune]int, len(ra))
	for _, r := range ra {
		counts[r]++
	}
	shared := 0
	for _, r := range rb {
		if counts[r] > 0 {
			counts[r]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)+len(rb))
}

// acceptFuzzy applies the length-aware acceptance rules for a candidate
func acceptFuzzy(typed, candidate string, score, threshold float64) bool {
	switch utf8.RuneCountInString(candidate) {
	case 0:
		return false
	case 1:
		return score <= 0.2
	case 2:
		return score <= 0.4 && utf8.RuneCountInString(typed) <= 3
	default:
		return score <= threshold && overlapSimilarity(typed, candidate) >= 0.6
	}
}
