// Package snapshot is the in-memory catalog backend.  A Store serves every
// catalog query from an immutable index built from a JSON Document and swaps
// the whole index atomically on reload.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// Document is the on-disk snapshot format.
type Document struct {
	Version   string              `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	Entries   []catalog.CodeEntry `json:"entries"`
}

// Loader fetches the current snapshot document.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Document, error)
}

// Decode reads and validates a Document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotInvalid, "failed to decode snapshot")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode snapshot")
	}
	return nil
}

// Validate rejects entries without a vocabulary, code or title, duplicate
// codes within a vocabulary, and embeddings whose width differs from the
// first embedding of the same vocabulary.
func (d *Document) Validate() error {
	seen := make(map[catalog.Vocabulary]map[string]struct{}, 2)
	dims := make(map[catalog.Vocabulary]int, 2)
	for i, e := range d.Entries {
		where := fmt.Sprintf("entry %d (%s)", i, e.Code)
		if !e.Vocabulary.Valid() {
			return errors.New(errors.CodeSnapshotInvalid, "unknown vocabulary").WithDetail(where)
		}
		if e.Code == "" || e.Title == "" {
			return errors.New(errors.CodeSnapshotInvalid, "code and title are required").WithDetail(where)
		}
		codes := seen[e.Vocabulary]
		if codes == nil {
			codes = make(map[string]struct{})
			seen[e.Vocabulary] = codes
		}
		key := catalog.NormalizeCode(e.Code)
		if _, dup := codes[key]; dup {
			return errors.New(errors.CodeSnapshotInvalid, "duplicate code").WithDetail(where)
		}
		codes[key] = struct{}{}

		if e.HasEmbedding() {
			if want, ok := dims[e.Vocabulary]; ok && want != len(e.Embedding) {
				return errors.New(errors.CodeSnapshotInvalid, "inconsistent embedding width").
					WithDetail(fmt.Sprintf("%s: got %d, want %d", where, len(e.Embedding), want))
			}
			dims[e.Vocabulary] = len(e.Embedding)
		}
	}
	return nil
}

// FileLoader reads a snapshot from the local filesystem.
type FileLoader struct {
	Path string
}

// LoadSnapshot implements Loader.
func (l FileLoader) LoadSnapshot(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotInvalid, "failed to open snapshot").WithDetail(l.Path)
	}
	defer f.Close()
	return Decode(f)
}
