// Package retrieval implements free-text search over the code catalogs:
// query normalization, lexical and vector matching, and the hybrid ranker
// that merges them.
package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultAbbreviations maps common clinical shorthand to its expansion.
// Keys are matched as whole lowercase words.
func DefaultAbbreviations() map[string]string {
	return map[string]string{
		"fx":   "fracture",
		"fxs":  "fractures",
		"htn":  "hypertension",
		"dm":   "diabetes mellitus",
		"t1dm": "type 1 diabetes mellitus",
		"t2dm": "type 2 diabetes mellitus",
		"mi":   "myocardial infarction",
		"chf":  "congestive heart failure",
		"cad":  "coronary artery disease",
		"copd": "chronic obstructive pulmonary disease",
		"uti":  "urinary tract infection",
		"ckd":  "chronic kidney disease",
		"afib": "atrial fibrillation",
		"dvt":  "deep vein thrombosis",
		"gerd": "gastroesophageal reflux disease",
		"cva":  "cerebrovascular accident",
		"tia":  "transient ischemic attack",
		"hx":   "history",
		"lt":   "left",
		"rt":   "right",
		"bil":  "bilateral",
		"oa":   "osteoarthritis",
		"ra":   "rheumatoid arthritis",
		"tb":   "tuberculosis",
		"orif": "open reduction internal fixation",
		"tka":  "total knee arthroplasty",
		"tha":  "total hip arthroplasty",
		"xr":   "x-ray",
		"abx":  "antibiotics",
		"sob":  "shortness of breath",
		"uri":  "upper respiratory infection",
		"hld":  "hyperlipidemia",
	}
}

// Normalizer canonicalizes free text before matching.  It is pure and safe
// for concurrent use.
type Normalizer struct {
	abbreviations map[string]string
}

// NewNormalizer returns a Normalizer using abbrev, or DefaultAbbreviations
// when abbrev is nil.  Keys are lowercased.
func NewNormalizer(abbrev map[string]string) *Normalizer {
	if abbrev == nil {
		abbrev = DefaultAbbreviations()
	}
	m := make(map[string]string, len(abbrev))
	for k, v := range abbrev {
		m[strings.ToLower(k)] = v
	}
	return &Normalizer{abbreviations: m}
}

// Normalize applies NFKC folding, lowercasing, punctuation stripping (dots
// and hyphens survive, for codes and compounds), whitespace collapsing and
// whole-word abbreviation expansion.
func (n *Normalizer) Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-':
			return r
		default:
			return ' '
		}
	}, s)

	words := strings.Fields(s)
	for i, w := range words {
		key := strings.Trim(w, ".-")
		if exp, ok := n.abbreviations[key]; ok {
			words[i] = exp
		}
	}
	return strings.Join(words, " ")
}
