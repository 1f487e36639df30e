package retrieval

import (
	"context"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockLexicalSource struct {
	lexicalQueryFn func(ctx context.Context, q catalog.LexicalQuery) ([]catalog.CodeEntry, error)
	entries        []catalog.CodeEntry
	lastQuery      catalog.LexicalQuery
}

func (m *mockLexicalSource) LexicalQuery(ctx context.Context, q catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
	m.lastQuery = q
	if m.lexicalQueryFn != nil {
		return m.lexicalQueryFn(ctx, q)
	}
	return m.entries, nil
}

type mockVectorSource struct {
	vectorQueryFn func(ctx context.Context, q catalog.VectorQuery) ([]catalog.ScoredEntry, error)
	rows          []catalog.ScoredEntry
	lastQuery     catalog.VectorQuery
}

func (m *mockVectorSource) VectorQuery(ctx context.Context, q catalog.VectorQuery) ([]catalog.ScoredEntry, error) {
	m.lastQuery = q
	if m.vectorQueryFn != nil {
		return m.vectorQueryFn(ctx, q)
	}
	return m.rows, nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// blockUntilDone waits for ctx and returns its error.
func blockUntilDone[T any](ctx context.Context) (T, error) {
	var zero T
	<-ctx.Done()
	return zero, ctx.Err()
}

func blockingEmbed(ctx context.Context, _ string) ([]float32, error) {
	return blockUntilDone[[]float32](ctx)
}

func blockingLexicalQuery(ctx context.Context, _ catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
	return blockUntilDone[[]catalog.CodeEntry](ctx)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func entry(code, title string, synonyms ...string) catalog.CodeEntry {
	return catalog.CodeEntry{
		Code:       code,
		Title:      title,
		Synonyms:   synonyms,
		Active:     true,
		Vocabulary: catalog.VocabularyDiagnosis,
	}
}

var (
	essentialHTN = entry("I10", "Essential hypertension", "High blood pressure")
	hypCrisis    = entry("I16.9", "Hypertensive crisis")
	radiusFx     = entry("S52.501A", "Unspecified fracture of the lower end of right radius", "Broken wrist")
	type2DM      = entry("E11.9", "Type 2 diabetes mellitus without complications")
)
