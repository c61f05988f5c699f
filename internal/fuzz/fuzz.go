// Package fuzz implements rapidfuzz-compatible string similarity scorers.
// All scores are in the range [0, 100] and lengths are counted in runes.
package fuzz

import (
	"sort"
	"strings"
)

const unbaseScale = 0.95

// Ratio returns the normalized InDel similarity of s1 and s2.
func Ratio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return ratio([]rune(s1), []rune(s2))
}

// PartialRatio scores the best matching substring of the longer string
// against the shorter one.
func PartialRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return partialRatio([]rune(s1), []rune(s2))
}

// TokenSortRatio compares both strings after sorting their words.
func TokenSortRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return tokenSortRatio(s1, s2)
}

// TokenSetRatio compares the shared and the differing words of both strings.
func TokenSetRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return tokenSetRatio(s1, s2)
}

// TokenRatio is the larger of TokenSortRatio and TokenSetRatio.
func TokenRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return tokenRatio(s1, s2)
}

// PartialTokenRatio applies PartialRatio to the sorted word lists.
func PartialTokenRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	return partialTokenRatio(s1, s2)
}

// WRatio picks between the plain, token and partial scorers depending on
// how different the string lengths are, the same way rapidfuzz.fuzz.WRatio
// does. Empty input on either side scores 0.
func WRatio(s1, s2 string, opts ...Option) float64 {
	s1, s2 = prepare(s1, s2, opts)
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0
	}

	len1, len2 := float64(len(r1)), float64(len(r2))
	lenRatio := len2 / len1
	if len1 > len2 {
		lenRatio = len1 / len2
	}

	endRatio := ratio(r1, r2)
	if lenRatio < 1.5 {
		return max(endRatio, tokenRatio(s1, s2)*unbaseScale)
	}

	partialScale := 0.9
	if lenRatio >= 8.0 {
		partialScale = 0.6
	}
	endRatio = max(endRatio, partialRatio(r1, r2)*partialScale)
	return max(endRatio, partialTokenRatio(s1, s2)*unbaseScale*partialScale)
}

func ratio(s1, s2 []rune) float64 {
	return normDistance(indelDistance(s1, s2), len(s1)+len(s2))
}

// normDistance turns an InDel distance into a 0-100 similarity.
func normDistance(dist, lensum int) float64 {
	if lensum == 0 {
		return 100
	}
	return 100 * (1 - float64(dist)/float64(lensum))
}

func indelDistance(s1, s2 []rune) int {
	return len(s1) + len(s2) - 2*lcsLength(s1, s2)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range a {
		for j := range b {
			if a[i] == b[j] {
				cur[j+1] = prev[j] + 1
			} else {
				cur[j+1] = max(prev[j+1], cur[j])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func partialRatio(s1, s2 []rune) float64 {
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	if len(s1) == 0 {
		if len(s2) == 0 {
			return 100
		}
		return 0
	}
	score := partialRatioAligned(s1, s2)
	if score != 100 && len(s1) == len(s2) {
		score = max(score, partialRatioAligned(s2, s1))
	}
	return score
}

// partialRatioAligned slides needle over haystack, including the windows
// that hang off either end. len(needle) <= len(haystack).
func partialRatioAligned(needle, haystack []rune) float64 {
	len1, len2 := len(needle), len(haystack)
	chars := make(map[rune]struct{}, len1)
	for _, r := range needle {
		chars[r] = struct{}{}
	}
	seen := func(r rune) bool {
		_, ok := chars[r]
		return ok
	}

	best := 0.0
	try := func(window []rune) bool {
		if s := ratio(needle, window); s > best {
			best = s
		}
		return best == 100
	}

	for i := 1; i < len1; i++ {
		if seen(haystack[i-1]) && try(haystack[:i]) {
			return 100
		}
	}
	for i := 0; i < len2-len1; i++ {
		if seen(haystack[i+len1-1]) && try(haystack[i:i+len1]) {
			return 100
		}
	}
	for i := len2 - len1; i < len2; i++ {
		if seen(haystack[i]) && try(haystack[i:]) {
			return 100
		}
	}
	return best
}

func tokenSortRatio(s1, s2 string) float64 {
	return ratio([]rune(sortedJoin(strings.Fields(s1))), []rune(sortedJoin(strings.Fields(s2))))
}

func tokenSetRatio(s1, s2 string) float64 {
	a := toSet(strings.Fields(s1))
	b := toSet(strings.Fields(s2))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersect, diffAB := split(a, b)
	_, diffBA := split(b, a)
	if len(intersect) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	ab := []rune(sortedJoin(diffAB))
	ba := []rune(sortedJoin(diffBA))
	sectLen := len([]rune(sortedJoin(intersect)))

	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + len(ab)
	sectBALen := sectLen + sep + len(ba)

	result := normDistance(indelDistance(ab, ba), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	// sect+ab and sect+ba only differ from sect by their suffix, so the
	// distance is the suffix length.
	sectABRatio := normDistance(sep+len(ab), sectLen+sectABLen)
	sectBARatio := normDistance(sep+len(ba), sectLen+sectBALen)
	return max(result, sectABRatio, sectBARatio)
}

func tokenRatio(s1, s2 string) float64 {
	return max(tokenSortRatio(s1, s2), tokenSetRatio(s1, s2))
}

func partialTokenRatio(s1, s2 string) float64 {
	tokensA := strings.Fields(s1)
	tokensB := strings.Fields(s2)
	a := toSet(tokensA)
	b := toSet(tokensB)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersect, diffAB := split(a, b)
	if len(intersect) > 0 {
		return 100
	}
	_, diffBA := split(b, a)

	result := partialRatio([]rune(sortedJoin(tokensA)), []rune(sortedJoin(tokensB)))
	if len(tokensA) == len(diffAB) && len(tokensB) == len(diffBA) {
		return result
	}
	return max(result, partialRatio([]rune(sortedJoin(diffAB)), []rune(sortedJoin(diffBA))))
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// split returns the tokens of a that are also in b, and those that are not.
func split(a, b map[string]struct{}) (common, only []string) {
	for t := range a {
		if _, ok := b[t]; ok {
			common = append(common, t)
		} else {
			only = append(only, t)
		}
	}
	return common, only
}

func sortedJoin(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
