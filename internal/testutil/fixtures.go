package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/snapshot"
)

// SnapshotVersion is the version of FixtureSnapshot.
const SnapshotVersion = "2026-10-01"

// FixtureEntries is a small two-vocabulary catalog.  The fracture diagnosis
// and its open-treatment procedure carry 2-dimensional embeddings; the
// closed-treatment procedure is inactive.
func FixtureEntries() []catalog.CodeEntry {
	return []catalog.CodeEntry{
		{Vocabulary: catalog.VocabularyDiagnosis, Code: "I10", Active: true,
			Title: "Essential (primary) hypertension", NormalizedTitle: "essential primary hypertension"},
		{Vocabulary: catalog.VocabularyDiagnosis, Code: "S52.501A", Active: true,
			Title:     "Unspecified fracture of the lower end of right radius, initial encounter",
			Embedding: []float32{1, 0}},
		{Vocabulary: catalog.VocabularyProcedure, Code: "93000", Active: true,
			Title: "Electrocardiogram, routine ECG with at least 12 leads"},
		{Vocabulary: catalog.VocabularyProcedure, Code: "25607", Active: true,
			Title: "Open treatment of distal radial extra-articular fracture", Embedding: []float32{0.9, 0.1}},
		{Vocabulary: catalog.VocabularyProcedure, Code: "25600", Active: false,
			Title: "Closed treatment of distal radial fracture"},
	}
}

// FixtureSnapshot returns a snapshot document holding FixtureEntries.
func FixtureSnapshot() *snapshot.Document {
	return &snapshot.Document{Version: SnapshotVersion, Entries: FixtureEntries()}
}

// WriteSnapshot encodes doc into dir and returns the file path.
func WriteSnapshot(t testing.TB, dir string, doc *snapshot.Document) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, snapshot.Encode(f, doc))
	return path
}
