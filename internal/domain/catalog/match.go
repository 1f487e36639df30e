package catalog

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Trigrams returns the trigram set of s using the same rules as the
// PostgreSQL pg_trgm extension: lowercase, split on non-alphanumerics, pad
// each word with two leading blanks and one trailing blank.
func Trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

// TrigramSimilarity is |A∩B| / |A∪B| over the trigram sets of a and b.
func TrigramSimilarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// HasWordPrefix reports whether query is a case-insensitive prefix of text
// or of any word in text.  "hyp" matches "Essential hypertension".
func HasWordPrefix(text, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	t := strings.ToLower(text)
	if strings.HasPrefix(t, q) {
		return true
	}
	prev := rune(-1)
	for i, r := range t {
		if prev != -1 && !isWordRune(prev) && isWordRune(r) && strings.HasPrefix(t[i:], q) {
			return true
		}
		prev = r
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Default lexical predicate weights.  Backends order their over-recall pool
// with these so entries the engine scores highest survive the recall limit.
const (
	WeightCodePrefix            = 0.8
	WeightTitlePrefix           = 0.7
	WeightNormalizedTitlePrefix = 0.5
	WeightSynonymPrefix         = 0.4
	// WeightTrigram is multiplied by the trigram similarity.
	WeightTrigram = 0.5
)

// RecallScore is the default-weighted lexical score of e for the lowercase
// query text.  Trigram similarity below threshold contributes nothing.
func RecallScore(e CodeEntry, text string, threshold float64) float64 {
	score := 0.0
	if HasWordPrefix(e.Title, text) {
		score += WeightTitlePrefix
	}
	if e.NormalizedTitle != "" && HasWordPrefix(e.NormalizedTitle, text) {
		score += WeightNormalizedTitlePrefix
	}
	if sim := TitleSimilarity(e, text); sim >= threshold {
		score += WeightTrigram * sim
	}
	if CodeHasPrefix(e.Code, text) {
		score += WeightCodePrefix
	}
	for _, syn := range e.Synonyms {
		if HasWordPrefix(syn, text) {
			score += WeightSynonymPrefix
			break
		}
	}
	return score
}

// TitleSimilarity is the greater trigram similarity of text to e's title and
// normalized title.
func TitleSimilarity(e CodeEntry, text string) float64 {
	sim := TrigramSimilarity(text, e.Title)
	if e.NormalizedTitle != "" {
		if ns := TrigramSimilarity(text, e.NormalizedTitle); ns > sim {
			sim = ns
		}
	}
	return sim
}

// TitleLess orders entries by case-folded title, then raw title, then code.
func TitleLess(a, b CodeEntry) bool {
	if la, lb := strings.ToLower(a.Title), strings.ToLower(b.Title); la != lb {
		return la < lb
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.Code < b.Code
}

// NormalizeCode uppercases code and strips dots and blanks, so "s52.501a"
// and "S52501A" compare equal.
func NormalizeCode(code string) string {
	var sb strings.Builder
	sb.Grow(len(code))
	for _, r := range code {
		if r == '.' || unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// CodeHasPrefix reports whether query is a code prefix of code, ignoring
// dots and case.  Multi-word queries never match.
func CodeHasPrefix(code, query string) bool {
	if strings.ContainsAny(strings.TrimSpace(query), " \t") {
		return false
	}
	q := NormalizeCode(query)
	return q != "" && strings.HasPrefix(NormalizeCode(code), q)
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NumericCode parses a five-digit numeric procedure code.  Category III
// style codes ("0001T") and diagnosis codes return false.
func NumericCode(code string) (int, bool) {
	c := strings.TrimSpace(code)
	if len(c) != 5 {
		return 0, false
	}
	n := 0
	for _, r := range c {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// ShortTermLen is the longest keyword that must match a whole word.
const ShortTermLen = 4

// ContainsTerm reports whether term occurs in lowercase text starting at a
// word boundary.  Terms of ShortTermLen characters or fewer must also end at
// one, so "hip" does not match "hippocampal" while "femor" matches "femoral".
func ContainsTerm(text, term string) bool {
	term = strings.ToLower(term)
	if term == "" {
		return false
	}
	whole := len(term) <= ShortTermLen
	for from := 0; from <= len(text)-len(term); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(term)
		if boundaryBefore(text, i) && (!whole || boundaryAfter(text, end)) {
			return true
		}
		from = i + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
