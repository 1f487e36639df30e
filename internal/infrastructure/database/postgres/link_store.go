package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const recordLinkSQL = `
INSERT INTO approved_links (
    diagnosis_code, procedure_code, validation_score, raw_similarity,
    relationship_type, source_kind, applied_rules, rationale)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (diagnosis_code, procedure_code) DO UPDATE SET
    validation_score = EXCLUDED.validation_score,
    raw_similarity = EXCLUDED.raw_similarity,
    relationship_type = EXCLUDED.relationship_type,
    source_kind = EXCLUDED.source_kind,
    applied_rules = EXCLUDED.applied_rules,
    rationale = EXCLUDED.rationale,
    hits = approved_links.hits + 1,
    last_seen_at = now()`

const linksForDiagnosisSQL = `
SELECT procedure_code, validation_score, relationship_type, hits
FROM approved_links
WHERE diagnosis_code = $1
ORDER BY validation_score DESC, procedure_code`

// LinkStore records approved links in the approved_links table.  Repeat
// approvals bump a hit counter.
type LinkStore struct {
	db      querier
	metrics *prometheus.EngineMetrics
	logger  logging.Logger
}

var _ catalog.LinkRecorder = (*LinkStore)(nil)

// NewLinkStore builds a LinkStore on conn's pool.
func NewLinkStore(conn *Connection, metrics *prometheus.EngineMetrics, log logging.Logger) *LinkStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LinkStore{db: conn.Pool(), metrics: metrics, logger: log.Named("link_store")}
}

// RecordLinks upserts every approved link in one batch.
func (s *LinkStore) RecordLinks(ctx context.Context, dx catalog.CodeEntry, links []catalog.LinkCandidate) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStorageQuery(backendName, "record_links", time.Since(start), err) }()

	batch := &pgx.Batch{}
	for _, l := range links {
		if l.Status != catalog.LinkApproved {
			continue
		}
		rules := l.AppliedRules
		if rules == nil {
			rules = []catalog.AppliedRule{}
		}
		batch.Queue(recordLinkSQL,
			dx.Code, l.Procedure.Code, l.ValidationScore, l.RawSimilarity,
			string(l.RelationshipType), string(l.SourceKind), rules, l.Rationale,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to record approved links").WithDetail(dx.Code)
		}
	}
	s.logger.Debug("Recorded approved links",
		logging.String("diagnosis", dx.Code),
		logging.Int("count", batch.Len()),
	)
	return nil
}

// RecordedLink is one row of approved_links.
type RecordedLink struct {
	ProcedureCode    string  `json:"procedure_code"`
	ValidationScore  float64 `json:"validation_score"`
	RelationshipType string  `json:"relationship_type"`
	Hits             int64   `json:"hits"`
}

// LinksForDiagnosis returns the recorded links of a diagnosis, best first.
func (s *LinkStore) LinksForDiagnosis(ctx context.Context, diagnosisCode string) ([]RecordedLink, error) {
	rows, err := s.db.Query(ctx, linksForDiagnosisSQL, diagnosisCode)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "failed to read approved links").WithDetail(diagnosisCode)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[RecordedLink])
	if err != nil {
		return nil, errors.StorageUnavailable(err, "failed to scan approved links").WithDetail(diagnosisCode)
	}
	return out, nil
}
