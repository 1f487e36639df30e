package retrieval

import "github.com/turtacn/CodeLink-Engine/internal/domain/catalog"

// Query is one matcher invocation.  Text must already be normalized.
type Query struct {
	Vocabulary catalog.Vocabulary
	Text       string
	Limit      int
	ActiveOnly bool
	// Threshold is the minimum cosine similarity; vector path only.
	Threshold float64
}

// rankBefore orders by key descending, ties by catalog.TitleLess.
func rankBefore(a, b catalog.Candidate, ka, kb float64) bool {
	if ka != kb {
		return ka > kb
	}
	return catalog.TitleLess(a.Entry, b.Entry)
}
