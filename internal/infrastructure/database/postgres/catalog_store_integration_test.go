//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/postgres"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// startPostgres launches a pgvector-enabled PostgreSQL 16 container, applies
// the migrations and returns an open connection.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "codelink_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     p,
		User:     "test",
		Password: "test",
		DBName:   "codelink_test",
		MaxConns: 4,
	}
	conn, err := postgres.NewConnection(ctx, cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	m, err := postgres.NewMigrator(conn.DSN(), logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, m.Close())

	return conn
}

func seed(t *testing.T, store *postgres.CatalogStore) {
	t.Helper()
	entries := []catalog.CodeEntry{
		{Vocabulary: catalog.VocabularyDiagnosis, Code: "S52.501A", Title: "Unspecified fracture of the lower end of right radius, initial encounter",
			NormalizedTitle: "unspecified fracture of the lower end of right radius initial encounter", Active: true,
			Synonyms: []string{"Colles fracture"}, Embedding: []float32{1, 0, 0}},
		{Vocabulary: catalog.VocabularyDiagnosis, Code: "I10", Title: "Essential (primary) hypertension",
			NormalizedTitle: "essential primary hypertension", Active: true, Embedding: []float32{0, 1, 0}},
		{Vocabulary: catalog.VocabularyProcedure, Code: "25607", Title: "Open treatment of distal radial extra-articular fracture",
			NormalizedTitle: "open treatment of distal radial extra articular fracture", Active: true, Embedding: []float32{0.9, 0.1, 0}},
		{Vocabulary: catalog.VocabularyProcedure, Code: "27447", Title: "Arthroplasty, knee, condyle and plateau",
			NormalizedTitle: "arthroplasty knee condyle and plateau", Active: true, Embedding: []float32{0, 0, 1}},
		{Vocabulary: catalog.VocabularyProcedure, Code: "25600", Title: "Closed treatment of distal radial fracture",
			NormalizedTitle: "closed treatment of distal radial fracture", Active: false, Embedding: []float32{0.95, 0.05, 0}},
	}
	require.NoError(t, store.UpsertEntries(context.Background(), entries))
}

func TestCatalogStore_Integration(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()

	store := postgres.NewCatalogStore(conn, postgres.StoreOptions{EmbeddingDim: 3})
	require.NoError(t, store.EnsureVectorIndex(ctx))
	seed(t, store)

	t.Run("lexical word prefix", func(t *testing.T) {
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "radius", Limit: 10})
		require.NoError(t, err)
		require.NotEmpty(t, out)
		assert.Equal(t, "S52.501A", out[0].Code)
		assert.Empty(t, out[0].Embedding)
	})

	t.Run("lexical word prefix after punctuation", func(t *testing.T) {
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "primary", Limit: 10})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "I10", out[0].Code)
	})

	t.Run("lexical synonym", func(t *testing.T) {
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "colles", Limit: 10})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []string{"Colles fracture"}, out[0].Synonyms)
	})

	t.Run("lexical code prefix ignores dots", func(t *testing.T) {
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "s52.5", Limit: 10})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "S52.501A", out[0].Code)
	})

	t.Run("lexical active only", func(t *testing.T) {
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyProcedure, Text: "distal", Limit: 10, ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "25607", out[0].Code)
	})

	t.Run("vector nearest first with threshold", func(t *testing.T) {
		out, err := store.VectorQuery(ctx, catalog.VectorQuery{
			Vocabulary: catalog.VocabularyProcedure,
			Embedding:  []float32{1, 0, 0},
			Threshold:  0.4,
			Limit:      10,
		})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "25600", out[0].Entry.Code)
		assert.Equal(t, "25607", out[1].Entry.Code)
		assert.Greater(t, out[0].Similarity, out[1].Similarity)
		assert.InDelta(t, 0.9939, out[1].Similarity, 1e-3)
	})

	t.Run("vector active only", func(t *testing.T) {
		out, err := store.VectorQuery(ctx, catalog.VectorQuery{
			Vocabulary: catalog.VocabularyProcedure,
			Embedding:  []float32{1, 0, 0},
			Threshold:  0.4,
			Limit:      10,
			ActiveOnly: true,
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "25607", out[0].Entry.Code)
	})

	t.Run("get by code with dotless key", func(t *testing.T) {
		e, err := store.GetByCode(ctx, catalog.VocabularyDiagnosis, "s52501a")
		require.NoError(t, err)
		assert.Equal(t, "S52.501A", e.Code)
		assert.Equal(t, []float32{1, 0, 0}, e.Embedding)
	})

	t.Run("get by code missing", func(t *testing.T) {
		_, err := store.GetByCode(ctx, catalog.VocabularyDiagnosis, "Z99.89")
		assert.True(t, errors.IsCode(err, errors.CodeCodeNotFound))
	})

	t.Run("get by codes keeps request order", func(t *testing.T) {
		out, err := store.GetByCodes(ctx, catalog.VocabularyProcedure, []string{"27447", "00000", "25607"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "27447", out[0].Code)
		assert.Equal(t, "25607", out[1].Code)
	})

	t.Run("lexical prefix hit survives the limit", func(t *testing.T) {
		require.NoError(t, store.UpsertEntries(ctx, []catalog.CodeEntry{
			{Vocabulary: catalog.VocabularyDiagnosis, Code: "X1", Title: "Refracture", Active: true},
			{Vocabulary: catalog.VocabularyDiagnosis, Code: "X2", Title: "Refractures", Active: true},
		}))
		out, err := store.LexicalQuery(ctx, catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "fracture", Limit: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "S52.501A", out[0].Code)
	})
}

func TestLinkStore_Integration(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	links := postgres.NewLinkStore(conn, nil, logging.NewNopLogger())

	dx := catalog.CodeEntry{Code: "S52.501A"}
	approved := []catalog.LinkCandidate{{
		Procedure:        catalog.CodeEntry{Code: "25607"},
		Status:           catalog.LinkApproved,
		ValidationScore:  0.95,
		RelationshipType: catalog.RelationshipTherapeutic,
		SourceKind:       catalog.SourceVector,
		AppliedRules:     []catalog.AppliedRule{{RuleID: "site_match", Category: catalog.RuleBoosting, Delta: 0.2}},
	}}
	for i := 0; i < 2; i++ {
		require.NoError(t, links.RecordLinks(ctx, dx, approved), fmt.Sprintf("round %d", i))
	}

	got, err := links.LinksForDiagnosis(ctx, "S52.501A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "25607", got[0].ProcedureCode)
	assert.Equal(t, "therapeutic", got[0].RelationshipType)
	assert.Equal(t, int64(2), got[0].Hits)
}
