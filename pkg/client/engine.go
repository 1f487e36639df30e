package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// CodeEntry is a diagnosis or procedure code.
type CodeEntry struct {
	Code            string   `json:"code"`
	Title           string   `json:"title"`
	NormalizedTitle string   `json:"normalized_title"`
	Synonyms        []string `json:"synonyms,omitempty"`
	Chapter         string   `json:"chapter,omitempty"`
	Subchapter      string   `json:"subchapter,omitempty"`
	Active          bool     `json:"active"`
	HasModifiers    bool     `json:"has_modifiers,omitempty"`
	Vocabulary      string   `json:"vocabulary"`
}

// Candidate is a ranked search hit.
type Candidate struct {
	Entry            CodeEntry `json:"entry"`
	LexicalScore     float64   `json:"lexical_score"`
	VectorSimilarity *float64  `json:"vector_similarity,omitempty"`
	CombinedScore    float64   `json:"combined_score"`
	SourceKind       string    `json:"source_kind"`
}

// SearchResult is the response of a diagnosis or procedure search.
type SearchResult struct {
	Candidates      []Candidate `json:"candidates"`
	Degraded        bool        `json:"degraded"`
	DegradedReason  string      `json:"degraded_reason,omitempty"`
	NormalizedQuery string      `json:"normalized_query"`
}

// AppliedRule is a clinical rule that fired for a link.
type AppliedRule struct {
	RuleID    string  `json:"rule_id"`
	Category  string  `json:"category"`
	Delta     float64 `json:"delta"`
	Rationale string  `json:"rationale"`
}

// Link is an approved diagnosis to procedure link.
type Link struct {
	Diagnosis        CodeEntry     `json:"diagnosis"`
	Procedure        CodeEntry     `json:"procedure"`
	RawSimilarity    *float64      `json:"raw_similarity,omitempty"`
	ValidationScore  float64       `json:"validation_score"`
	AppliedRules     []AppliedRule `json:"applied_rules"`
	Status           string        `json:"status"`
	RelationshipType string        `json:"relationship_type,omitempty"`
	Rationale        string        `json:"rationale,omitempty"`
	SourceKind       string        `json:"source_kind"`
}

// LinkResult is the response of a procedure linkage request.
type LinkResult struct {
	Diagnosis       CodeEntry `json:"diagnosis"`
	Links           []Link    `json:"links"`
	CandidateSource string    `json:"candidate_source"`
	Degraded        bool      `json:"degraded"`
	DegradedReason  string    `json:"degraded_reason,omitempty"`
	RuleTable       string    `json:"rule_table"`
	Evaluated       int       `json:"evaluated"`
}

// Rule is one entry of the active rule table.
type Rule struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Delta     float64           `json:"delta"`
	Rationale string            `json:"rationale"`
	Kind      string            `json:"kind"`
	Params    map[string]string `json:"params,omitempty"`
}

// RuleTable is the active clinical rule table.
type RuleTable struct {
	Version string `json:"version"`
	Rules   []Rule `json:"rules"`
}

// ReloadResult reports the table active after a reload.
type ReloadResult struct {
	Version string `json:"version"`
	Rules   int    `json:"rules"`
}

// HistoryLink is a recorded link with its approval count.
type HistoryLink struct {
	ProcedureCode    string  `json:"procedure_code"`
	ProcedureTitle   string  `json:"procedure_title"`
	ValidationScore  float64 `json:"validation_score"`
	RelationshipType string  `json:"relationship_type"`
	Hits             int64   `json:"hits"`
}

// CoLinked is a diagnosis sharing approved procedures with another.
type CoLinked struct {
	Code   string `json:"code"`
	Shared int64  `json:"shared"`
}

// History is the link history of a diagnosis.
type History struct {
	Diagnosis string        `json:"diagnosis"`
	Links     []HistoryLink `json:"links"`
	CoLinked  []CoLinked    `json:"co_linked"`
}

// SearchDiagnoses ranks diagnosis codes against text.  A zero limit uses the
// server default.
func (c *Client) SearchDiagnoses(ctx context.Context, text string, limit int) (*SearchResult, error) {
	return c.search(ctx, "/api/v1/diagnoses/search", text, limit)
}

// SearchProcedures ranks procedure codes against text.
func (c *Client) SearchProcedures(ctx context.Context, text string, limit int) (*SearchResult, error) {
	return c.search(ctx, "/api/v1/procedures/search", text, limit)
}

func (c *Client) search(ctx context.Context, path, text string, limit int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("q", text)
	setLimit(q, limit)
	var res SearchResult
	if err := c.get(ctx, path+"?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LinkProcedures returns the approved procedures for a diagnosis code.
func (c *Client) LinkProcedures(ctx context.Context, diagnosisCode string, limit int) (*LinkResult, error) {
	path, err := diagnosisPath(diagnosisCode, "procedures", limit)
	if err != nil {
		return nil, err
	}
	var res LinkResult
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns recorded links for a diagnosis.  Servers without a link
// graph answer 404.
func (c *Client) History(ctx context.Context, diagnosisCode string, limit int) (*History, error) {
	path, err := diagnosisPath(diagnosisCode, "history", limit)
	if err != nil {
		return nil, err
	}
	var res History
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RuleTable fetches the active rule table.
func (c *Client) RuleTable(ctx context.Context) (*RuleTable, error) {
	var res RuleTable
	if err := c.get(ctx, "/api/v1/rules", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReloadRules asks the server to reload its rule table from the configured
// source.
func (c *Client) ReloadRules(ctx context.Context) (*ReloadResult, error) {
	var res ReloadResult
	if err := c.post(ctx, "/api/v1/rules/reload", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func diagnosisPath(code, leaf string, limit int) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.InvalidParam("diagnosis code is required")
	}
	path := "/api/v1/diagnoses/" + url.PathEscape(code) + "/" + leaf
	q := url.Values{}
	setLimit(q, limit)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path, nil
}

func setLimit(q url.Values, limit int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}
