package cli

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/postgres"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/search/milvus"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/search/opensearch"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/snapshot"
)

// NewCatalogCmd builds the catalog maintenance commands.
func NewCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Import, index and publish code catalog snapshots",
	}
	catalogCmd.AddCommand(newCatalogImportCmd(), newCatalogPublishCmd())
	return catalogCmd
}

func loadSnapshotFile(ctx context.Context, path string) (*snapshot.Document, error) {
	return snapshot.FileLoader{Path: path}.LoadSnapshot(ctx)
}

func newCatalogImportCmd() *cobra.Command {
	var dryRun, index bool
	cmd := &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Load a snapshot into PostgreSQL and, optionally, the search indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			doc, err := loadSnapshotFile(ctx, args[0])
			if err != nil {
				return err
			}
			report := summarize(doc)
			if dryRun {
				return PrintResult(cmd, report)
			}

			if err := importEntries(ctx, cliCtx, doc.Entries); err != nil {
				return err
			}
			report.Stored = len(doc.Entries)
			if index {
				if report.Lexical, err = indexLexical(ctx, cliCtx, doc.Entries); err != nil {
					return err
				}
				if report.Vector, err = indexVectors(ctx, cliCtx, doc.Entries); err != nil {
					return err
				}
			}
			return PrintResult(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the snapshot without writing")
	cmd.Flags().BoolVar(&index, "index", false, "also sync the enabled OpenSearch and Milvus indexes")
	return cmd
}

func importEntries(ctx context.Context, cliCtx *CLIContext, entries []catalog.CodeEntry) error {
	cfg := cliCtx.Config
	conn, err := postgres.NewConnection(ctx, cfg.Database, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Database.AutoMigrate {
		if err := runMigrator(conn.DSN(), cliCtx.Logger, func(m *postgres.Migrator) error { return m.Up() }); err != nil {
			return err
		}
	}
	store := postgres.NewCatalogStore(conn, postgres.StoreOptions{
		EmbeddingDim: cfg.Database.EmbeddingDim,
		Logger:       cliCtx.Logger,
	})
	if err := store.UpsertEntries(ctx, entries); err != nil {
		return err
	}
	return store.EnsureVectorIndex(ctx)
}

func indexLexical(ctx context.Context, cliCtx *CLIContext, entries []catalog.CodeEntry) (map[catalog.Vocabulary]int, error) {
	cfg := cliCtx.Config
	if !cfg.OpenSearch.Enabled {
		return nil, nil
	}
	client, err := opensearch.NewClient(ctx, cfg.OpenSearch, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	idx := opensearch.NewLexicalIndex(client, cfg.OpenSearch.IndexPrefix, nil, cliCtx.Logger)

	out := make(map[catalog.Vocabulary]int, 2)
	for vocab, group := range byVocabulary(entries) {
		if err := idx.EnsureIndex(ctx, vocab); err != nil {
			return nil, err
		}
		n, err := idx.Sync(ctx, vocab, group)
		if err != nil {
			return nil, err
		}
		out[vocab] = n
	}
	return out, nil
}

func indexVectors(ctx context.Context, cliCtx *CLIContext, entries []catalog.CodeEntry) (map[catalog.Vocabulary]int, error) {
	cfg := cliCtx.Config
	if !cfg.Milvus.Enabled {
		return nil, nil
	}
	client, err := milvus.NewClient(ctx, cfg.Milvus, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	manager := milvus.NewCollectionManager(client, cliCtx.Logger)
	idx := milvus.NewVectorIndex(client, nil, milvus.IndexOptions{
		CollectionPrefix: cfg.Milvus.CollectionPrefix,
		Ef:               cfg.Milvus.HNSWEf,
		Logger:           cliCtx.Logger,
	})

	out := make(map[catalog.Vocabulary]int, 2)
	for vocab, group := range byVocabulary(entries) {
		dim := embeddingDim(group)
		if dim == 0 {
			continue
		}
		if err := manager.EnsureCollection(ctx, milvus.CollectionName(cfg.Milvus.CollectionPrefix, vocab), dim); err != nil {
			return nil, err
		}
		n, err := idx.Sync(ctx, vocab, dim, group)
		if err != nil {
			return nil, err
		}
		out[vocab] = n
	}
	return out, nil
}

func byVocabulary(entries []catalog.CodeEntry) map[catalog.Vocabulary][]catalog.CodeEntry {
	out := make(map[catalog.Vocabulary][]catalog.CodeEntry, 2)
	for _, e := range entries {
		out[e.Vocabulary] = append(out[e.Vocabulary], e)
	}
	return out
}

func embeddingDim(entries []catalog.CodeEntry) int {
	for _, e := range entries {
		if e.HasEmbedding() {
			return len(e.Embedding)
		}
	}
	return 0
}

func newCatalogPublishCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "publish <snapshot.json>",
		Short: "Upload a validated snapshot to object storage and announce it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if key == "" {
				key = cliCtx.Config.Storage.SnapshotObject
			}
			doc, err := loadSnapshotFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := snapshot.Encode(&buf, doc); err != nil {
				return err
			}
			evt := kafka.NewRefreshEvent(kafka.EventSnapshotPublished, eventSource)
			evt.Version = doc.Version
			evt.ObjectKey = key
			if err := publishObject(cmd, cliCtx, key, buf.Bytes(), "application/json", evt); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("snapshot %s (%d entries) published to %s", doc.Version, len(doc.Entries), key))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "object key (default: storage.snapshot_object)")
	return cmd
}

// importReport summarizes a snapshot and what was written.
type importReport struct {
	Version    string                     `json:"version"`
	Diagnoses  int                        `json:"diagnoses"`
	Procedures int                        `json:"procedures"`
	Embedded   int                        `json:"embedded"`
	Inactive   int                        `json:"inactive"`
	Stored     int                        `json:"stored"`
	Lexical    map[catalog.Vocabulary]int `json:"lexical_indexed,omitempty"`
	Vector     map[catalog.Vocabulary]int `json:"vector_indexed,omitempty"`
}

func summarize(doc *snapshot.Document) importReport {
	r := importReport{Version: doc.Version}
	for _, e := range doc.Entries {
		switch e.Vocabulary {
		case catalog.VocabularyDiagnosis:
			r.Diagnoses++
		case catalog.VocabularyProcedure:
			r.Procedures++
		}
		if e.HasEmbedding() {
			r.Embedded++
		}
		if !e.Active {
			r.Inactive++
		}
	}
	return r
}

func (r importReport) TableHeaders() []string {
	return []string{"Version", "Diagnoses", "Procedures", "Embedded", "Inactive", "Stored"}
}

func (r importReport) TableRows() [][]string {
	return [][]string{{
		r.Version,
		strconv.Itoa(r.Diagnoses),
		strconv.Itoa(r.Procedures),
		strconv.Itoa(r.Embedded),
		strconv.Itoa(r.Inactive),
		strconv.Itoa(r.Stored),
	}}
}

func (r importReport) String() string {
	return fmt.Sprintf("snapshot %s: %d diagnoses, %d procedures, %d embedded, %d inactive, %d stored",
		r.Version, r.Diagnoses, r.Procedures, r.Embedded, r.Inactive, r.Stored)
}

func runMigrator(dsn string, log logging.Logger, fn func(*postgres.Migrator) error) error {
	m, err := postgres.NewMigrator(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
