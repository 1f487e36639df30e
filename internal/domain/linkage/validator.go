package linkage

import (
	"sync/atomic"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
)

// Thresholds are the scoring constants of the validator.
type Thresholds struct {
	// Approval is the minimum validation score for an approved link.
	Approval float64
	// Ceiling caps every validation score.
	Ceiling float64
	// Baseline is the starting score for candidates without a similarity.
	Baseline float64
}

// DefaultThresholds returns 0.65 / 0.95 / 0.5.
func DefaultThresholds() Thresholds {
	return Thresholds{Approval: 0.65, Ceiling: 0.95, Baseline: 0.5}
}

// RawCandidate is an unvalidated procedure candidate.
type RawCandidate struct {
	Procedure catalog.CodeEntry
	// Similarity is nil for candidates found without a vector.
	Similarity *float64
	SourceKind catalog.SourceKind
}

// Validator scores diagnosis/procedure pairs against the active rule table.
// The table and thresholds can be swapped at runtime; each call reads them
// once, so a single validation never mixes two tables.
type Validator struct {
	profiler   *Profiler
	table      atomic.Pointer[Table]
	thresholds atomic.Pointer[Thresholds]
}

// NewValidator builds a Validator.  Nil arguments fall back to the defaults.
func NewValidator(profiler *Profiler, table *Table, th Thresholds) *Validator {
	if profiler == nil {
		profiler = NewDefaultProfiler(nil)
	}
	if table == nil {
		table = DefaultTable()
	}
	v := &Validator{profiler: profiler}
	v.table.Store(table)
	v.SetThresholds(th)
	return v
}

// Profiler returns the profiler used for both sides.
func (v *Validator) Profiler() *Profiler { return v.profiler }

// Table returns the active rule table.
func (v *Validator) Table() *Table { return v.table.Load() }

// SetTable swaps the active rule table.  Nil is ignored.
func (v *Validator) SetTable(t *Table) {
	if t != nil {
		v.table.Store(t)
	}
}

// Thresholds returns the active thresholds.
func (v *Validator) Thresholds() Thresholds { return *v.thresholds.Load() }

// SetThresholds swaps the thresholds; zero fields take their defaults.
func (v *Validator) SetThresholds(th Thresholds) {
	def := DefaultThresholds()
	if th.Approval == 0 {
		th.Approval = def.Approval
	}
	if th.Ceiling == 0 {
		th.Ceiling = def.Ceiling
	}
	if th.Baseline == 0 {
		th.Baseline = def.Baseline
	}
	v.thresholds.Store(&th)
}

// Validate scores every candidate against dx.  Rejected candidates are
// returned too; the ranker drops them.
func (v *Validator) Validate(dx catalog.CodeEntry, cands []RawCandidate) []catalog.LinkCandidate {
	table, th := v.table.Load(), *v.thresholds.Load()
	dxProfile := v.profiler.Diagnosis(dx)
	out := make([]catalog.LinkCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, v.validate(table, th, dxProfile, c))
	}
	return out
}

// ValidateOne scores a single pair.
func (v *Validator) ValidateOne(dx catalog.CodeEntry, c RawCandidate) catalog.LinkCandidate {
	return v.validate(v.table.Load(), *v.thresholds.Load(), v.profiler.Diagnosis(dx), c)
}

func (v *Validator) validate(table *Table, th Thresholds, dx Profile, c RawCandidate) catalog.LinkCandidate {
	px := v.profiler.Procedure(c.Procedure)
	subject := NewSubject(dx, px, v.profiler.Extractor())
	score, applied := Evaluate(table, th, subject, c.Similarity)

	status := catalog.LinkRejected
	if score >= th.Approval {
		status = catalog.LinkApproved
	}
	source := c.SourceKind
	if source == "" {
		source = catalog.SourceVector
		if c.Similarity == nil {
			source = catalog.SourceLexical
		}
	}
	return catalog.LinkCandidate{
		Diagnosis:       dx.Entry,
		Procedure:       c.Procedure,
		RawSimilarity:   c.Similarity,
		ValidationScore: score,
		AppliedRules:    applied,
		Status:          status,
		SourceKind:      source,
	}
}

// Evaluate runs every rule of table against subject in order.  The start
// score is the clamped similarity, or the baseline when absent; fired deltas
// are summed and the total clamped to [0, ceiling].
func Evaluate(table *Table, th Thresholds, subject Subject, similarity *float64) (float64, []catalog.AppliedRule) {
	score := th.Baseline
	if similarity != nil {
		score = catalog.Clamp01(*similarity)
	}
	applied := []catalog.AppliedRule{}
	for _, r := range table.Rules() {
		if !r.Predicate(subject) {
			continue
		}
		score += r.Delta
		applied = append(applied, catalog.AppliedRule{
			RuleID:    r.ID,
			Category:  r.Category,
			Delta:     r.Delta,
			Rationale: r.Rationale,
		})
	}
	return catalog.Clamp(score, 0, th.Ceiling), applied
}
