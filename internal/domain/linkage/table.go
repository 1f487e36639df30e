package linkage

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// DefaultTableVersion labels the built-in rule table.
const DefaultTableVersion = "builtin-1"

// RuleTableSpec is the serialized rule table.
type RuleTableSpec struct {
	Version string     `yaml:"version" json:"version"`
	Rules   []RuleSpec `yaml:"rules" json:"rules"`
}

// Table is a compiled, immutable rule table.
type Table struct {
	version string
	rules   []Rule
	specs   []RuleSpec
}

// NewTable compiles spec.
func NewTable(spec RuleTableSpec) (*Table, error) {
	rules, err := Compile(spec.Rules)
	if err != nil {
		return nil, err
	}
	specs := make([]RuleSpec, len(spec.Rules))
	copy(specs, spec.Rules)
	return &Table{version: spec.Version, rules: rules, specs: specs}, nil
}

// DefaultTable compiles DefaultRuleTableSpec.  The built-in data is known
// good, so a failure here is a programming error.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRuleTableSpec())
	if err != nil {
		panic(fmt.Sprintf("linkage: default rule table: %v", err))
	}
	return t
}

// Version returns the table label.
func (t *Table) Version() string { return t.version }

// Rules returns the compiled rules in evaluation order.
func (t *Table) Rules() []Rule { return t.rules }

// Spec returns the data form of the table.
func (t *Table) Spec() RuleTableSpec {
	specs := make([]RuleSpec, len(t.specs))
	copy(specs, t.specs)
	return RuleTableSpec{Version: t.version, Rules: specs}
}

// ParseRuleTable decodes and compiles a YAML rule table.  Unknown fields are
// rejected.
func ParseRuleTable(data []byte) (*Table, error) {
	return DecodeRuleTable(bytes.NewReader(data))
}

// DecodeRuleTable reads a YAML rule table from r.
func DecodeRuleTable(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var spec RuleTableSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, errors.CodeRuleTableInvalid, "failed to decode rule table")
	}
	return NewTable(spec)
}

// LoadRuleFile reads and compiles the YAML rule table at path.
func LoadRuleFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRuleTableInvalid, "failed to open rule table").WithDetail(path)
	}
	defer f.Close()
	return DecodeRuleTable(f)
}

// MarshalYAML renders the table back to YAML.
func (t *Table) MarshalYAML() (interface{}, error) {
	return t.Spec(), nil
}

func blocking(id string, delta float64, kind, rationale string, params map[string]string) RuleSpec {
	return RuleSpec{ID: id, Category: catalog.RuleBlocking, Delta: delta, Kind: kind, Rationale: rationale, Params: params}
}

func boosting(id string, delta float64, kind, rationale string, params map[string]string) RuleSpec {
	return RuleSpec{ID: id, Category: catalog.RuleBoosting, Delta: delta, Kind: kind, Rationale: rationale, Params: params}
}

// DefaultRuleTableSpec is the built-in rule table.  Magnitudes are tuned
// heuristics, not clinical guidance.
func DefaultRuleTableSpec() RuleTableSpec {
	return RuleTableSpec{
		Version: DefaultTableVersion,
		Rules: []RuleSpec{
			blocking("block_cardiovascular", -0.8, KindDomainMismatch,
				"cardiovascular procedure for a non-cardiovascular diagnosis",
				map[string]string{"domain": string(DomainCardiovascular)}),
			blocking("block_obstetric", -0.9, KindDomainMismatch,
				"obstetric procedure for a non-obstetric diagnosis",
				map[string]string{"domain": string(DomainObstetric)}),
			blocking("block_neurological", -0.7, KindDomainMismatch,
				"neurological procedure for a non-neurological diagnosis",
				map[string]string{"domain": string(DomainNeurological)}),
			blocking("block_congenital", -0.8, KindDomainMismatch,
				"congenital repair for a non-congenital diagnosis",
				map[string]string{"domain": string(DomainCongenital)}),
			blocking("block_abdominal", -0.7, KindDomainMismatch,
				"abdominal organ procedure for a non-abdominal diagnosis",
				map[string]string{"domain": string(DomainAbdominal)}),
			blocking("block_extremity_mismatch", -0.8, KindExtremityMismatch,
				"upper and lower extremity mismatch", nil),
			blocking("block_anatomical_disagreement", -0.7, KindAnatomicalDisagreement,
				"procedure site does not match fracture site",
				map[string]string{"diagnosis_class": string(ClassFracture)}),
			boosting("boost_fracture_surgical_repair", 0.35, KindClassMatch,
				"surgical repair at the fracture site",
				map[string]string{"diagnosis_class": string(ClassFracture), "procedure_class": string(ClassSurgicalRepair), "require_site": "true"}),
			boosting("boost_fracture_imaging", 0.25, KindClassMatch,
				"imaging of the fracture site",
				map[string]string{"diagnosis_class": string(ClassFracture), "procedure_class": string(ClassImaging), "require_site": "true"}),
			boosting("boost_endocrine_hormone_panel", 0.3, KindClassMatch,
				"hormone panel for an endocrine condition",
				map[string]string{"diagnosis_class": string(ClassEndocrine), "procedure_class": string(ClassHormonePanel)}),
			boosting("boost_infectious_culture", 0.3, KindClassMatch,
				"culture or pathogen test for an infection",
				map[string]string{"diagnosis_class": string(ClassInfectious), "procedure_class": string(ClassCulture)}),
			boosting("boost_chronic_monitoring", 0.2, KindClassMatch,
				"monitoring panel for a chronic condition",
				map[string]string{"diagnosis_class": string(ClassChronic), "procedure_class": string(ClassMonitoringPanel)}),
			boosting("boost_sequela_followup", 0.25, KindClassMatch,
				"follow-up or rehabilitation for a sequela encounter",
				map[string]string{"diagnosis_class": string(ClassSequela), "procedure_class": string(ClassFollowupRehab)}),
			boosting("boost_site_match", 0.1, KindSiteMatch,
				"anatomical site match", nil),
		},
	}
}
