package catalog

// SourceKind records which retrieval path produced a candidate.  A lexical
// kind on every result means the vector path was unavailable.
type SourceKind string

const (
	SourceLexical SourceKind = "lexical"
	SourceVector  SourceKind = "vector"
	SourceHybrid  SourceKind = "hybrid"
)

// Candidate is a transient, per-query ranking record.
type Candidate struct {
	Entry CodeEntry `json:"entry"`
	// LexicalScore is the unbounded weighted sum of lexical sub-matches.
	LexicalScore float64 `json:"lexical_score"`
	// VectorSimilarity is nil when the vector path did not return the entry.
	VectorSimilarity *float64 `json:"vector_similarity,omitempty"`
	// CombinedScore is always within [0, 1].
	CombinedScore float64    `json:"combined_score"`
	SourceKind    SourceKind `json:"source_kind"`
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
