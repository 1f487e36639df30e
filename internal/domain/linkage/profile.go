// Package linkage validates and ranks diagnosis-to-procedure links.  The
// clinical knowledge lives in data: keyword and code-band tables build a
// Profile of each side, and an ordered rule table scores each pair.
package linkage

import (
	"strings"

	"github.com/turtacn/CodeLink-Engine/internal/domain/anatomy"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
)

// Domain is a clinical specialty area used by the blocking rules.
type Domain string

const (
	DomainCardiovascular Domain = "cardiovascular"
	DomainObstetric      Domain = "obstetric"
	DomainNeurological   Domain = "neurological"
	DomainCongenital     Domain = "congenital"
	DomainAbdominal      Domain = "abdominal"
)

// Class is a clinical category used by the boosting rules.  Diagnosis and
// procedure classes are disjoint.
type Class string

const (
	ClassFracture   Class = "fracture"
	ClassEndocrine  Class = "endocrine"
	ClassInfectious Class = "infectious"
	ClassChronic    Class = "chronic"
	ClassSequela    Class = "sequela"

	ClassSurgicalRepair  Class = "surgical_repair"
	ClassImaging         Class = "imaging"
	ClassLaboratory      Class = "laboratory"
	ClassHormonePanel    Class = "hormone_panel"
	ClassCulture         Class = "culture"
	ClassMonitoringPanel Class = "monitoring_panel"
	ClassFollowupRehab   Class = "followup_rehab"
)

// Profile is the clinical reading of one catalog entry.
type Profile struct {
	Entry   catalog.CodeEntry
	Domains []Domain
	Classes []Class
	Sites   anatomy.Tags
}

// HasDomain reports whether d is among the profile's domains.
func (p Profile) HasDomain(d Domain) bool {
	for _, x := range p.Domains {
		if x == d {
			return true
		}
	}
	return false
}

// HasClass reports whether c is among the profile's classes.
func (p Profile) HasClass(c Class) bool {
	for _, x := range p.Classes {
		if x == c {
			return true
		}
	}
	return false
}

// CodeBand is an inclusive numeric procedure range.
type CodeBand struct {
	Low, High int
}

func (b CodeBand) contains(n int) bool { return n >= b.Low && n <= b.High }

// ProfileTables holds the inference data for both vocabularies.  Diagnosis
// prefixes are matched against the dot-free uppercase code.
type ProfileTables struct {
	DiagnosisDomainKeywords map[Domain][]string
	DiagnosisDomainPrefixes map[Domain][]string
	ProcedureDomainKeywords map[Domain][]string
	ProcedureDomainBands    map[Domain][]CodeBand

	DiagnosisClassKeywords map[Class][]string
	DiagnosisClassPrefixes map[Class][]string
	ProcedureClassKeywords map[Class][]string
	ProcedureClassBands    map[Class][]CodeBand
}

// Profiler builds Profiles.  It is immutable after construction.
type Profiler struct {
	tables    ProfileTables
	extractor *anatomy.Extractor
}

// NewProfiler returns a Profiler over tables.  A nil extractor uses the
// default anatomy tables.
func NewProfiler(tables ProfileTables, extractor *anatomy.Extractor) *Profiler {
	if extractor == nil {
		extractor = anatomy.NewExtractor()
	}
	return &Profiler{tables: tables, extractor: extractor}
}

// NewDefaultProfiler uses DefaultProfileTables.
func NewDefaultProfiler(extractor *anatomy.Extractor) *Profiler {
	return NewProfiler(DefaultProfileTables(), extractor)
}

// Extractor exposes the anatomy extractor shared with the rules.
func (p *Profiler) Extractor() *anatomy.Extractor { return p.extractor }

// Profile dispatches on the entry's vocabulary.
func (p *Profiler) Profile(e catalog.CodeEntry) Profile {
	if e.Vocabulary == catalog.VocabularyProcedure {
		return p.Procedure(e)
	}
	return p.Diagnosis(e)
}

// Diagnosis profiles a diagnosis entry.
func (p *Profiler) Diagnosis(e catalog.CodeEntry) Profile {
	text := e.Description() + " | " + strings.ToLower(e.NormalizedTitle)
	code := catalog.NormalizeCode(e.Code)

	prof := Profile{Entry: e, Sites: p.extractor.Extract(e)}
	for _, d := range allDomains {
		if anyTerm(text, p.tables.DiagnosisDomainKeywords[d]) || anyPrefix(code, p.tables.DiagnosisDomainPrefixes[d]) {
			prof.Domains = append(prof.Domains, d)
		}
	}
	for _, c := range diagnosisClasses {
		if anyTerm(text, p.tables.DiagnosisClassKeywords[c]) || anyPrefix(code, p.tables.DiagnosisClassPrefixes[c]) {
			prof.Classes = append(prof.Classes, c)
		}
	}
	if isSequelaCode(code) && !prof.HasClass(ClassSequela) {
		prof.Classes = append(prof.Classes, ClassSequela)
	}
	return prof
}

// Procedure profiles a procedure entry.
func (p *Profiler) Procedure(e catalog.CodeEntry) Profile {
	text := e.Description() + " | " + strings.ToLower(e.NormalizedTitle)
	n, numeric := catalog.NumericCode(e.Code)

	prof := Profile{Entry: e, Sites: p.extractor.Extract(e)}
	for _, d := range allDomains {
		if anyTerm(text, p.tables.ProcedureDomainKeywords[d]) || (numeric && anyBand(n, p.tables.ProcedureDomainBands[d])) {
			prof.Domains = append(prof.Domains, d)
		}
	}
	for _, c := range procedureClasses {
		if anyTerm(text, p.tables.ProcedureClassKeywords[c]) || (numeric && anyBand(n, p.tables.ProcedureClassBands[c])) {
			prof.Classes = append(prof.Classes, c)
		}
	}
	return prof
}

var (
	allDomains       = []Domain{DomainCardiovascular, DomainObstetric, DomainNeurological, DomainCongenital, DomainAbdominal}
	diagnosisClasses = []Class{ClassFracture, ClassEndocrine, ClassInfectious, ClassChronic, ClassSequela}
	procedureClasses = []Class{
		ClassSurgicalRepair, ClassImaging, ClassLaboratory, ClassHormonePanel,
		ClassCulture, ClassMonitoringPanel, ClassFollowupRehab,
	}
)

// isSequelaCode matches injury codes carrying the "S" encounter character.
func isSequelaCode(code string) bool {
	if len(code) < 7 || (code[0] != 'S' && code[0] != 'T') {
		return false
	}
	return code[len(code)-1] == 'S'
}

func anyTerm(text string, terms []string) bool {
	for _, t := range terms {
		if catalog.ContainsTerm(text, t) {
			return true
		}
	}
	return false
}

func anyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func anyBand(n int, bands []CodeBand) bool {
	for _, b := range bands {
		if b.contains(n) {
			return true
		}
	}
	return false
}
