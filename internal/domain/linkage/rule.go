package linkage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/CodeLink-Engine/internal/domain/anatomy"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// Subject is everything a rule predicate may inspect about one pair.  It is
// computed once per pair and never mutated.
type Subject struct {
	Diagnosis Profile
	Procedure Profile

	// SitesAgree is true when either side is unknown, the sites overlap, or a
	// related pair links them.
	SitesAgree bool
	// SitesMatch is true when both sides are known and agree.
	SitesMatch bool
	// SitesOverlap is true when both sides share at least one tag.
	SitesOverlap bool
}

// NewSubject derives the site relations for a pair of profiles.
func NewSubject(dx, px Profile, x *anatomy.Extractor) Subject {
	s := Subject{Diagnosis: dx, Procedure: px}
	s.SitesOverlap = dx.Sites.Overlaps(px.Sites)
	s.SitesAgree = x.Agree(dx.Sites, px.Sites)
	s.SitesMatch = !dx.Sites.Unknown() && !px.Sites.Unknown() && s.SitesAgree
	return s
}

// Predicate decides whether a rule fires for a subject.
type Predicate func(Subject) bool

// Rule is one compiled entry of the rule table.
type Rule struct {
	ID        string
	Category  catalog.RuleCategory
	Delta     float64
	Rationale string
	Predicate Predicate
}

// RuleSpec is the data form of a Rule, as stored in YAML.
type RuleSpec struct {
	ID        string               `yaml:"id" json:"id"`
	Category  catalog.RuleCategory `yaml:"category" json:"category"`
	Delta     float64              `yaml:"delta" json:"delta"`
	Rationale string               `yaml:"rationale" json:"rationale"`
	Kind      string               `yaml:"kind" json:"kind"`
	Params    map[string]string    `yaml:"params,omitempty" json:"params,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Predicate kinds
// ─────────────────────────────────────────────────────────────────────────────

// Predicate kinds understood by Compile.
const (
	KindDomainMismatch         = "domain_mismatch"
	KindExtremityMismatch      = "extremity_mismatch"
	KindAnatomicalDisagreement = "anatomical_disagreement"
	KindClassMatch             = "class_match"
	KindSiteMatch              = "site_match"
)

// PredicateFactory builds a predicate from rule parameters.
type PredicateFactory func(params map[string]string) (Predicate, error)

var kindRegistry = map[string]PredicateFactory{
	KindDomainMismatch:         domainMismatch,
	KindExtremityMismatch:      extremityMismatch,
	KindAnatomicalDisagreement: anatomicalDisagreement,
	KindClassMatch:             classMatch,
	KindSiteMatch:              siteMatch,
}

// Kinds lists the registered predicate kinds.
func Kinds() []string {
	out := make([]string, 0, len(kindRegistry))
	for k := range kindRegistry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// domainMismatch fires when the procedure belongs to the domain and the
// diagnosis does not.
func domainMismatch(params map[string]string) (Predicate, error) {
	d := Domain(params["domain"])
	if !validDomain(d) {
		return nil, fmt.Errorf("unknown domain %q", params["domain"])
	}
	return func(s Subject) bool {
		return s.Procedure.HasDomain(d) && !s.Diagnosis.HasDomain(d)
	}, nil
}

// extremityMismatch fires when one side is purely upper extremity and the
// other purely lower extremity.
func extremityMismatch(map[string]string) (Predicate, error) {
	return func(s Subject) bool {
		dx, px := s.Diagnosis.Sites, s.Procedure.Sites
		upper, lower := anatomy.RegionUpperExtremity, anatomy.RegionLowerExtremity
		return (dx.HasRegion(upper) && !dx.HasRegion(lower) && px.HasRegion(lower) && !px.HasRegion(upper)) ||
			(dx.HasRegion(lower) && !dx.HasRegion(upper) && px.HasRegion(upper) && !px.HasRegion(lower))
	}, nil
}

// anatomicalDisagreement fires when both sites are known and neither overlap
// nor a related pair connects them.  The optional diagnosis_class parameter
// limits it to one class of diagnosis.
func anatomicalDisagreement(params map[string]string) (Predicate, error) {
	cls := Class(params["diagnosis_class"])
	if cls != "" && !validClass(cls) {
		return nil, fmt.Errorf("unknown diagnosis_class %q", cls)
	}
	return func(s Subject) bool {
		if cls != "" && !s.Diagnosis.HasClass(cls) {
			return false
		}
		return !s.SitesAgree
	}, nil
}

// classMatch fires when the diagnosis and procedure carry the given classes,
// optionally requiring a known and agreeing site.
func classMatch(params map[string]string) (Predicate, error) {
	dc, pc := Class(params["diagnosis_class"]), Class(params["procedure_class"])
	if !validClass(dc) {
		return nil, fmt.Errorf("unknown diagnosis_class %q", dc)
	}
	if !validClass(pc) {
		return nil, fmt.Errorf("unknown procedure_class %q", pc)
	}
	requireSite := false
	if raw, ok := params["require_site"]; ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("require_site: %w", err)
		}
		requireSite = v
	}
	return func(s Subject) bool {
		if !s.Diagnosis.HasClass(dc) || !s.Procedure.HasClass(pc) {
			return false
		}
		return !requireSite || s.SitesMatch
	}, nil
}

// siteMatch fires when both sides share an anatomical tag.
func siteMatch(map[string]string) (Predicate, error) {
	return func(s Subject) bool { return s.SitesOverlap }, nil
}

func validDomain(d Domain) bool {
	for _, x := range allDomains {
		if x == d {
			return true
		}
	}
	return false
}

func validClass(c Class) bool {
	for _, x := range diagnosisClasses {
		if x == c {
			return true
		}
	}
	for _, x := range procedureClasses {
		if x == c {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Compilation
// ─────────────────────────────────────────────────────────────────────────────

// Compile validates specs and builds the ordered rule list.  Blocking rules
// must have negative deltas, boosting rules positive ones, and IDs must be
// unique.
func Compile(specs []RuleSpec) ([]Rule, error) {
	if len(specs) == 0 {
		return nil, errors.New(errors.CodeRuleTableInvalid, "rule table is empty")
	}
	seen := make(map[string]struct{}, len(specs))
	rules := make([]Rule, 0, len(specs))
	var problems []string
	for i, spec := range specs {
		r, err := compileOne(spec)
		if err != nil {
			problems = append(problems, fmt.Sprintf("rule %d (%s): %v", i, spec.ID, err))
			continue
		}
		if _, dup := seen[spec.ID]; dup {
			problems = append(problems, fmt.Sprintf("rule %d (%s): duplicate id", i, spec.ID))
			continue
		}
		seen[spec.ID] = struct{}{}
		rules = append(rules, r)
	}
	if len(problems) > 0 {
		return nil, errors.New(errors.CodeRuleTableInvalid, "invalid rule table").
			WithDetail(strings.Join(problems, "; "))
	}
	return rules, nil
}

func compileOne(spec RuleSpec) (Rule, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return Rule{}, fmt.Errorf("missing id")
	}
	switch spec.Category {
	case catalog.RuleBlocking:
		if spec.Delta >= 0 {
			return Rule{}, fmt.Errorf("blocking delta must be negative, got %v", spec.Delta)
		}
	case catalog.RuleBoosting:
		if spec.Delta <= 0 {
			return Rule{}, fmt.Errorf("boosting delta must be positive, got %v", spec.Delta)
		}
	default:
		return Rule{}, fmt.Errorf("unknown category %q", spec.Category)
	}
	factory, ok := kindRegistry[spec.Kind]
	if !ok {
		return Rule{}, fmt.Errorf("unknown kind %q", spec.Kind)
	}
	pred, err := factory(spec.Params)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		ID:        spec.ID,
		Category:  spec.Category,
		Delta:     spec.Delta,
		Rationale: spec.Rationale,
		Predicate: pred,
	}, nil
}
