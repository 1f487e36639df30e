package anatomy

import (
	"sort"
	"strings"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
)

// Extractor infers site tags from entry text and codes.
type Extractor struct {
	keywords map[Tag][]string
	anti     map[Tag][]string
	prefixes []PrefixRule
	bands    []Band
	related  map[Pair]struct{}
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithKeywords replaces the keyword table.
func WithKeywords(kw map[Tag][]string) Option {
	return func(x *Extractor) { x.keywords = kw }
}

// WithAntiTerms replaces the anti-term table.
func WithAntiTerms(anti map[Tag][]string) Option {
	return func(x *Extractor) { x.anti = anti }
}

// WithDiagnosisPrefixes replaces the diagnosis code-range table.
func WithDiagnosisPrefixes(rules []PrefixRule) Option {
	return func(x *Extractor) { x.prefixes = rules }
}

// WithProcedureBands replaces the procedure code-range table.
func WithProcedureBands(bands []Band) Option {
	return func(x *Extractor) { x.bands = bands }
}

// WithRelated replaces the related-pair table.
func WithRelated(pairs []Pair) Option {
	return func(x *Extractor) { x.related = pairSet(pairs) }
}

// NewExtractor returns an Extractor over the default tables.
func NewExtractor(opts ...Option) *Extractor {
	x := &Extractor{
		keywords: DefaultKeywords(),
		anti:     DefaultAntiTerms(),
		prefixes: DefaultDiagnosisPrefixes(),
		bands:    DefaultProcedureBands(),
		related:  pairSet(DefaultRelated()),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.prefixes = sortPrefixes(x.prefixes)
	return x
}

func pairSet(pairs []Pair) map[Pair]struct{} {
	out := make(map[Pair]struct{}, len(pairs)*2)
	for _, p := range pairs {
		out[p] = struct{}{}
		out[Pair{A: p.B, B: p.A}] = struct{}{}
	}
	return out
}

func sortPrefixes(in []PrefixRule) []PrefixRule {
	out := make([]PrefixRule, len(in))
	for i, r := range in {
		out[i] = PrefixRule{Prefix: catalog.NormalizeCode(r.Prefix), Tag: r.Tag}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return out
}

// Extract returns the site tags of e from its title, synonyms and code.
// Keyword tags come first; a code-range tag is added only when no keyword tag
// already covers its region.  Chapter headings are ignored since they name
// whole body areas.
func (x *Extractor) Extract(e catalog.CodeEntry) Tags {
	kw := x.FromText(e.Title + " | " + strings.Join(e.Synonyms, " | "))
	merged := append(Tags(nil), kw...)
	for _, t := range x.FromCode(e.Vocabulary, e.Code) {
		if !kw.HasRegion(t.Region()) {
			merged = append(merged, t)
		}
	}
	return NewTags(merged...)
}

// FromText returns the keyword-derived tags of text.  Keywords that occur
// only inside one of the tag's anti-terms are ignored.
func (x *Extractor) FromText(text string) Tags {
	lower := strings.ToLower(text)
	var out []Tag
	for tag, terms := range x.keywords {
		t := maskTerms(lower, x.anti[tag])
		for _, term := range terms {
			if catalog.ContainsTerm(t, term) {
				out = append(out, tag)
				break
			}
		}
	}
	return NewTags(out...)
}

// maskTerms blanks every occurrence of the given phrases in text.
func maskTerms(text string, phrases []string) string {
	for _, p := range phrases {
		p = strings.ToLower(p)
		if p == "" || !strings.Contains(text, p) {
			continue
		}
		text = strings.ReplaceAll(text, p, strings.Repeat(" ", len(p)))
	}
	return text
}

// FromCode returns the code-range tags for code in vocab.
func (x *Extractor) FromCode(vocab catalog.Vocabulary, code string) Tags {
	switch vocab {
	case catalog.VocabularyDiagnosis:
		norm := catalog.NormalizeCode(code)
		for _, r := range x.prefixes {
			if strings.HasPrefix(norm, r.Prefix) {
				return NewTags(r.Tag)
			}
		}
	case catalog.VocabularyProcedure:
		n, ok := catalog.NumericCode(code)
		if !ok {
			return nil
		}
		for _, b := range x.bands {
			if n >= b.Low && n <= b.High {
				return NewTags(b.Tags...)
			}
		}
	}
	return nil
}

// Related reports whether a and b are interchangeable sites.
func (x *Extractor) Related(a, b Tag) bool {
	_, ok := x.related[Pair{A: a, B: b}]
	return ok
}

// Agree reports whether two tag sets are compatible: either side unknown, a
// shared tag, or any related pair across the sets.
func (x *Extractor) Agree(a, b Tags) bool {
	if a.Unknown() || b.Unknown() || a.Overlaps(b) {
		return true
	}
	return x.AnyRelated(a, b)
}

// AnyRelated reports whether some tag in a is related to some tag in b.
func (x *Extractor) AnyRelated(a, b Tags) bool {
	for _, ta := range a {
		for _, tb := range b {
			if x.Related(ta, tb) {
				return true
			}
		}
	}
	return false
}
