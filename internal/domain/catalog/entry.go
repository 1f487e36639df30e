// Package catalog holds the code-catalog data model shared by the retrieval
// and linkage engines, plus the collaborator ports they consume.
package catalog

import (
	"fmt"
	"strings"
)

// Vocabulary identifies one of the two coded vocabularies.
type Vocabulary string

const (
	VocabularyDiagnosis Vocabulary = "diagnosis"
	VocabularyProcedure Vocabulary = "procedure"
)

// Valid reports whether v is a known vocabulary.
func (v Vocabulary) Valid() bool {
	return v == VocabularyDiagnosis || v == VocabularyProcedure
}

// ParseVocabulary accepts the canonical names plus the common plural and
// code-system aliases.
func ParseVocabulary(s string) (Vocabulary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diagnosis", "diagnoses", "icd", "icd10", "icd-10-cm":
		return VocabularyDiagnosis, nil
	case "procedure", "procedures", "cpt":
		return VocabularyProcedure, nil
	default:
		return "", fmt.Errorf("catalog: unknown vocabulary %q", s)
	}
}

// CodeEntry is one immutable catalog record.  The ingestion pipeline owns its
// lifecycle; the engine only reads it.
type CodeEntry struct {
	Code            string     `json:"code"`
	Title           string     `json:"title"`
	NormalizedTitle string     `json:"normalized_title"`
	Synonyms        []string   `json:"synonyms,omitempty"`
	Chapter         string     `json:"chapter,omitempty"`
	Subchapter      string     `json:"subchapter,omitempty"`
	Embedding       []float32  `json:"embedding,omitempty"`
	Active          bool       `json:"active"`
	HasModifiers    bool       `json:"has_modifiers,omitempty"`
	Vocabulary      Vocabulary `json:"vocabulary"`
}

// HasEmbedding reports whether a precomputed vector is present.
func (e CodeEntry) HasEmbedding() bool { return len(e.Embedding) > 0 }

// Description is the text used for keyword inference: title, synonyms and
// classification strings joined and lowercased.
func (e CodeEntry) Description() string {
	parts := make([]string, 0, len(e.Synonyms)+3)
	parts = append(parts, e.Title)
	parts = append(parts, e.Synonyms...)
	if e.Chapter != "" {
		parts = append(parts, e.Chapter)
	}
	if e.Subchapter != "" {
		parts = append(parts, e.Subchapter)
	}
	return strings.ToLower(strings.Join(parts, " | "))
}

// WithoutEmbedding returns a copy with the vector dropped, for responses.
func (e CodeEntry) WithoutEmbedding() CodeEntry {
	e.Embedding = nil
	return e
}

// ScoredEntry is one vector-query row.
type ScoredEntry struct {
	Entry      CodeEntry
	Similarity float64
}
