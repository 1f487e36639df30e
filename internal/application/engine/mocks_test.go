package engine

import (
	"context"
	"sync"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockStorage struct {
	mu             sync.Mutex
	lexicalQueryFn func(ctx context.Context, q catalog.LexicalQuery) ([]catalog.CodeEntry, error)
	vectorQueryFn  func(ctx context.Context, q catalog.VectorQuery) ([]catalog.ScoredEntry, error)
	getByCodeFn    func(ctx context.Context, vocab catalog.Vocabulary, code string) (*catalog.CodeEntry, error)

	entries        map[string]catalog.CodeEntry
	lexicalQueries []catalog.LexicalQuery
	vectorQueries  []catalog.VectorQuery
}

func newMockStorage(entries ...catalog.CodeEntry) *mockStorage {
	m := &mockStorage{entries: make(map[string]catalog.CodeEntry)}
	for _, e := range entries {
		m.entries[e.Code] = e
	}
	return m
}

func (m *mockStorage) LexicalQuery(ctx context.Context, q catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
	m.mu.Lock()
	m.lexicalQueries = append(m.lexicalQueries, q)
	m.mu.Unlock()
	if m.lexicalQueryFn != nil {
		return m.lexicalQueryFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStorage) VectorQuery(ctx context.Context, q catalog.VectorQuery) ([]catalog.ScoredEntry, error) {
	m.mu.Lock()
	m.vectorQueries = append(m.vectorQueries, q)
	m.mu.Unlock()
	if m.vectorQueryFn != nil {
		return m.vectorQueryFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStorage) GetByCode(ctx context.Context, vocab catalog.Vocabulary, code string) (*catalog.CodeEntry, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, vocab, code)
	}
	e, ok := m.entries[code]
	if !ok {
		return nil, errors.New(errors.CodeCodeNotFound, "code not found").WithDetail(code)
	}
	return &e, nil
}

func (m *mockStorage) GetByCodes(ctx context.Context, vocab catalog.Vocabulary, codes []string) ([]catalog.CodeEntry, error) {
	out := make([]catalog.CodeEntry, 0, len(codes))
	for _, c := range codes {
		if e, ok := m.entries[c]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStorage) lexicalTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lexicalQueries))
	for i, q := range m.lexicalQueries {
		out[i] = q.Text
	}
	return out
}

type mockEmbedder struct {
	mu      sync.Mutex
	calls   int
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockRecorder struct {
	recordFn  func(ctx context.Context, dx catalog.CodeEntry, links []catalog.LinkCandidate) error
	diagnosis catalog.CodeEntry
	links     []catalog.LinkCandidate
}

func (m *mockRecorder) RecordLinks(ctx context.Context, dx catalog.CodeEntry, links []catalog.LinkCandidate) error {
	m.diagnosis, m.links = dx, links
	if m.recordFn != nil {
		return m.recordFn(ctx, dx, links)
	}
	return nil
}

type mockRuleSource struct {
	loadFn func(ctx context.Context) (*linkage.Table, error)
}

func (m *mockRuleSource) LoadRules(ctx context.Context) (*linkage.Table, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return linkage.DefaultTable(), nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func diag(code, title string) catalog.CodeEntry {
	return catalog.CodeEntry{Code: code, Title: title, Active: true, Vocabulary: catalog.VocabularyDiagnosis}
}

func proc(code, title string) catalog.CodeEntry {
	return catalog.CodeEntry{Code: code, Title: title, Active: true, Vocabulary: catalog.VocabularyProcedure}
}

var (
	dxRadiusFx    = diag("S52.501A", "Unspecified fracture of the lower end of right radius")
	dxHypertens   = diag("I10", "Essential (primary) hypertension")
	pxRadiusORIF  = proc("25607", "Open treatment of distal radial extra-articular fracture or epiphyseal separation, with internal fixation")
	pxForearmXray = proc("73090", "Radiologic examination; forearm, 2 views")
	pxKneeTKA     = proc("27447", "Arthroplasty, knee, condyle and plateau; medial and lateral compartments")
	pxCABG        = proc("33533", "Coronary artery bypass, using arterial graft(s); single arterial graft")
)

func withEmbedding(e catalog.CodeEntry, v ...float32) catalog.CodeEntry {
	e.Embedding = v
	return e
}

func testConfig() config.EngineConfig {
	var cfg config.EngineConfig
	config.ApplyEngineDefaults(&cfg)
	return cfg
}

func codesOf(links []catalog.LinkCandidate) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.Procedure.Code
	}
	return out
}
