package neo4j

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const backendName = "neo4j"

var constraintCypher = []string{
	`CREATE CONSTRAINT diagnosis_code IF NOT EXISTS FOR (d:Diagnosis) REQUIRE d.code IS UNIQUE`,
	`CREATE CONSTRAINT procedure_code IF NOT EXISTS FOR (p:Procedure) REQUIRE p.code IS UNIQUE`,
}

const recordLinksCypher = `
MERGE (d:Diagnosis {code: $diagnosis.code})
SET d.title = $diagnosis.title, d.vocabulary = $diagnosis.vocabulary
WITH d
UNWIND $links AS link
MERGE (p:Procedure {code: link.code})
SET p.title = link.title, p.vocabulary = link.vocabulary
MERGE (d)-[r:LINKS_TO]->(p)
ON CREATE SET r.hits = 0, r.first_seen = datetime()
SET r.score = link.score,
    r.relationship = link.relationship,
    r.source = link.source,
    r.rules = link.rules,
    r.hits = r.hits + 1,
    r.last_seen = datetime()
RETURN count(r) AS linked`

const linksForDiagnosisCypher = `
MATCH (:Diagnosis {code: $code})-[r:LINKS_TO]->(p:Procedure)
RETURN p.code AS code, p.title AS title, r.score AS score,
       r.relationship AS relationship, r.hits AS hits
ORDER BY score DESC, code
LIMIT $limit`

const coLinkedCypher = `
MATCH (:Diagnosis {code: $code})-[:LINKS_TO]->(:Procedure)<-[:LINKS_TO]-(other:Diagnosis)
WHERE other.code <> $code
RETURN other.code AS code, count(*) AS shared
ORDER BY shared DESC, code
LIMIT $limit`

// GraphLink is one recorded diagnosis to procedure edge.
type GraphLink struct {
	ProcedureCode    string  `json:"procedure_code"`
	ProcedureTitle   string  `json:"procedure_title"`
	ValidationScore  float64 `json:"validation_score"`
	RelationshipType string  `json:"relationship_type"`
	Hits             int64   `json:"hits"`
}

// CoLinkedDiagnosis is a diagnosis sharing approved procedures with another.
type CoLinkedDiagnosis struct {
	Code   string `json:"code"`
	Shared int64  `json:"shared"`
}

type executor interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
}

// LinkGraph records approved links as (:Diagnosis)-[:LINKS_TO]->(:Procedure)
// edges.  Repeat approvals bump the edge's hit counter.
type LinkGraph struct {
	db      executor
	metrics *prometheus.EngineMetrics
	logger  logging.Logger
}

var _ catalog.LinkRecorder = (*LinkGraph)(nil)

// NewLinkGraph builds a LinkGraph on d.
func NewLinkGraph(d *Driver, metrics *prometheus.EngineMetrics, log logging.Logger) *LinkGraph {
	return newLinkGraph(d, metrics, log)
}

func newLinkGraph(db executor, metrics *prometheus.EngineMetrics, log logging.Logger) *LinkGraph {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LinkGraph{db: db, metrics: metrics, logger: log.Named("link_graph")}
}

// EnsureConstraints creates the uniqueness constraints MERGE relies on.
func (g *LinkGraph) EnsureConstraints(ctx context.Context) error {
	_, err := g.db.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, stmt := range constraintCypher {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// RecordLinks merges every approved link of dx in one transaction.
func (g *LinkGraph) RecordLinks(ctx context.Context, dx catalog.CodeEntry, links []catalog.LinkCandidate) (err error) {
	params := linkParams(links)
	if len(params) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { g.metrics.RecordStorageQuery(backendName, "record_links", time.Since(start), err) }()

	_, err = g.db.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, recordLinksCypher, map[string]any{
			"diagnosis": map[string]any{
				"code":       dx.Code,
				"title":      dx.Title,
				"vocabulary": string(dx.Vocabulary),
			},
			"links": params,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to record link graph").WithDetail(dx.Code)
	}
	g.logger.Debug("Recorded link graph edges",
		logging.String("diagnosis", dx.Code),
		logging.Int("count", len(params)),
	)
	return nil
}

func linkParams(links []catalog.LinkCandidate) []map[string]any {
	var out []map[string]any
	for _, l := range links {
		if l.Status != catalog.LinkApproved {
			continue
		}
		rules := make([]string, 0, len(l.AppliedRules))
		for _, r := range l.AppliedRules {
			rules = append(rules, r.RuleID)
		}
		out = append(out, map[string]any{
			"code":         l.Procedure.Code,
			"title":        l.Procedure.Title,
			"vocabulary":   string(l.Procedure.Vocabulary),
			"score":        l.ValidationScore,
			"relationship": string(l.RelationshipType),
			"source":       string(l.SourceKind),
			"rules":        rules,
		})
	}
	return out
}

// LinksForDiagnosis returns the recorded edges of a diagnosis, best first.
func (g *LinkGraph) LinksForDiagnosis(ctx context.Context, code string, limit int) ([]GraphLink, error) {
	out, err := g.db.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, linksForDiagnosisCypher, map[string]any{"code": code, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, toGraphLink)
	})
	if err != nil {
		return nil, errors.StorageUnavailable(err, "failed to read link graph").WithDetail(code)
	}
	links, _ := out.([]GraphLink)
	return links, nil
}

// CoLinked returns diagnoses that share approved procedures with code, most
// overlap first.
func (g *LinkGraph) CoLinked(ctx context.Context, code string, limit int) ([]CoLinkedDiagnosis, error) {
	out, err := g.db.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, coLinkedCypher, map[string]any{"code": code, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, func(rec *neo4j.Record) (CoLinkedDiagnosis, error) {
			c, _, err := neo4j.GetRecordValue[string](rec, "code")
			if err != nil {
				return CoLinkedDiagnosis{}, err
			}
			n, _, err := neo4j.GetRecordValue[int64](rec, "shared")
			if err != nil {
				return CoLinkedDiagnosis{}, err
			}
			return CoLinkedDiagnosis{Code: c, Shared: n}, nil
		})
	})
	if err != nil {
		return nil, errors.StorageUnavailable(err, "failed to read co-linked diagnoses").WithDetail(code)
	}
	diags, _ := out.([]CoLinkedDiagnosis)
	return diags, nil
}

func toGraphLink(rec *neo4j.Record) (GraphLink, error) {
	var l GraphLink
	var err error
	if l.ProcedureCode, _, err = neo4j.GetRecordValue[string](rec, "code"); err != nil {
		return l, err
	}
	if l.ProcedureTitle, _, err = neo4j.GetRecordValue[string](rec, "title"); err != nil {
		return l, err
	}
	if l.ValidationScore, _, err = neo4j.GetRecordValue[float64](rec, "score"); err != nil {
		return l, err
	}
	if l.RelationshipType, _, err = neo4j.GetRecordValue[string](rec, "relationship"); err != nil {
		return l, err
	}
	if l.Hits, _, err = neo4j.GetRecordValue[int64](rec, "hits"); err != nil {
		return l, err
	}
	return l, nil
}
