package matching

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// tokenSetThreshold is the minimum token-set similarity for a fuzzy match.
const tokenSetThreshold = 65

// suffixWords are corporate suffixes ignored by the acronym and fuzzy
// comparisons; they carry no identity ("TCS" vs "Tata Consultancy Services
// Ltd" must match regardless of the Ltd).
var suffixWords = map[string]bool{
	"LTD":         true,
	"LIMITED":     true,
	"INC":         true,
	"PVT":         true,
	"CORPORATION": true,
	"LLC":         true,
	"PLC":         true,
}

// ScriptMatch reports whether two instrument names refer to the same
// instrument. The comparison is symmetric: substring containment, acronym
// agreement, normalized-alphabetic equality, then token-set similarity.
func ScriptMatch(a, b string) bool {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if acronymMatch(a, b) || acronymMatch(b, a) {
		return true
	}
	if alphaOnly(a) != "" && alphaOnly(a) == alphaOnly(b) {
		return true
	}
	if fuzzy.TokenSetRatio(a, b) >= tokenSetThreshold {
		return true
	}
	// Retry with corporate suffixes stripped from both sides; a low raw
	// score is often just the suffix words diluting the token sets.
	sa, sb := stripSuffixes(a), stripSuffixes(b)
	if sa == "" || sb == "" || (sa == a && sb == b) {
		return false
	}
	return fuzzy.TokenSetRatio(sa, sb) >= tokenSetThreshold
}

// acronymMatch reports whether short is the acronym of the multi-word name
// long (suffix words excluded).
func acronymMatch(short, long string) bool {
	words := significantWords(long)
	if len(words) < 2 {
		return false
	}
	var initials strings.Builder
	for _, w := range words {
		initials.WriteByte(w[0])
	}
	return short == initials.String()
}

func significantWords(name string) []string {
	var words []string
	for _, w := range strings.Fields(name) {
		w = alphaOnly(w)
		if w == "" || suffixWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

func stripSuffixes(name string) string {
	return strings.Join(significantWords(name), " ")
}

func alphaOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
