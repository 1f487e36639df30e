package linkage

import (
	"sort"
	"strings"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
)

// Rationale fallbacks when no rule fired.
const (
	RationaleSimilarityOnly = "semantic similarity only"
	RationaleLexicalOnly    = "lexical match only"
)

// RelationshipRule assigns a relationship type when the procedure carries one
// of Classes or its description contains one of Keywords.
type RelationshipRule struct {
	Type     catalog.RelationshipType
	Classes  []Class
	Keywords []string
}

// DefaultRelationshipRules lists the classifier in priority order.
func DefaultRelationshipRules() []RelationshipRule {
	return []RelationshipRule{
		{
			Type:     catalog.RelationshipDiagnostic,
			Classes:  []Class{ClassLaboratory, ClassCulture, ClassHormonePanel},
			Keywords: []string{"biopsy", "diagnostic", "pathogen", "antigen", "antibody", "screening", "smear", "susceptibility", "assay", "test"},
		},
		{
			Type:     catalog.RelationshipTherapeutic,
			Classes:  []Class{ClassSurgicalRepair},
			Keywords: []string{"treatment", "repair", "fixation", "reduction", "arthroplasty", "excision", "removal", "therapy", "therapeutic", "injection", "replacement"},
		},
		{
			Type:     catalog.RelationshipMonitoring,
			Classes:  []Class{ClassMonitoringPanel},
			Keywords: []string{"monitoring", "management", "follow-up", "panel"},
		},
		{
			Type:     catalog.RelationshipImaging,
			Classes:  []Class{ClassImaging},
			Keywords: []string{"radiologic", "x-ray", "imaging", "ct", "mri", "ultrasound", "echocardiograph"},
		},
	}
}

// Ranker filters, orders and annotates validated links.
type Ranker struct {
	profiler *Profiler
	rules    []RelationshipRule
}

// NewRanker builds a Ranker.  Nil rules use DefaultRelationshipRules.
func NewRanker(profiler *Profiler, rules []RelationshipRule) *Ranker {
	if profiler == nil {
		profiler = NewDefaultProfiler(nil)
	}
	if rules == nil {
		rules = DefaultRelationshipRules()
	}
	return &Ranker{profiler: profiler, rules: rules}
}

// Rank keeps approved candidates, sorts them by validation score descending
// (ties by case-folded procedure title, then code), truncates to limit when
// limit > 0, and fills in the relationship type and rationale.
func (r *Ranker) Rank(cands []catalog.LinkCandidate, limit int) []catalog.LinkCandidate {
	out := make([]catalog.LinkCandidate, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if c.Status != catalog.LinkApproved {
			continue
		}
		if _, dup := seen[c.Procedure.Code]; dup {
			continue
		}
		seen[c.Procedure.Code] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ValidationScore != b.ValidationScore {
			return a.ValidationScore > b.ValidationScore
		}
		return catalog.TitleLess(a.Procedure, b.Procedure)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].RelationshipType = r.Classify(out[i].Procedure)
		out[i].Rationale = Rationale(out[i])
	}
	return out
}

// Classify returns the first matching relationship type, or related.
func (r *Ranker) Classify(px catalog.CodeEntry) catalog.RelationshipType {
	prof := r.profiler.Procedure(px)
	text := px.Description()
	for _, rule := range r.rules {
		for _, c := range rule.Classes {
			if prof.HasClass(c) {
				return rule.Type
			}
		}
		if anyTerm(text, rule.Keywords) {
			return rule.Type
		}
	}
	return catalog.RelationshipRelated
}

// Rationale joins the rationales of the fired rules.
func Rationale(c catalog.LinkCandidate) string {
	parts := make([]string, 0, len(c.AppliedRules))
	for _, a := range c.AppliedRules {
		if a.Rationale != "" {
			parts = append(parts, a.Rationale)
		}
	}
	if len(parts) == 0 {
		if c.RawSimilarity == nil {
			return RationaleLexicalOnly
		}
		return RationaleSimilarityOnly
	}
	return strings.Join(parts, "; ")
}
