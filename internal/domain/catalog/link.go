package catalog

// RuleCategory distinguishes subtractive from additive validator rules.
type RuleCategory string

const (
	RuleBlocking RuleCategory = "blocking"
	RuleBoosting RuleCategory = "boosting"
)

// AppliedRule is one fired rule in evaluation order.
type AppliedRule struct {
	RuleID    string       `json:"rule_id"`
	Category  RuleCategory `json:"category"`
	Delta     float64      `json:"delta"`
	Rationale string       `json:"rationale"`
}

// LinkStatus is the validator decision.
type LinkStatus string

const (
	LinkApproved LinkStatus = "approved"
	LinkRejected LinkStatus = "rejected"
)

// RelationshipType classifies what a procedure does for a diagnosis.
type RelationshipType string

const (
	RelationshipDiagnostic  RelationshipType = "diagnostic"
	RelationshipTherapeutic RelationshipType = "therapeutic"
	RelationshipMonitoring  RelationshipType = "monitoring"
	RelationshipImaging     RelationshipType = "imaging"
	RelationshipRelated     RelationshipType = "related"
)

// LinkCandidate pairs a diagnosis with a candidate procedure.  Rejected
// candidates never leave the engine.
type LinkCandidate struct {
	Diagnosis CodeEntry `json:"diagnosis"`
	Procedure CodeEntry `json:"procedure"`
	// RawSimilarity is nil for candidates found by the lexical fallback.
	RawSimilarity    *float64         `json:"raw_similarity,omitempty"`
	ValidationScore  float64          `json:"validation_score"`
	AppliedRules     []AppliedRule    `json:"applied_rules"`
	Status           LinkStatus       `json:"status"`
	RelationshipType RelationshipType `json:"relationship_type,omitempty"`
	Rationale        string           `json:"rationale,omitempty"`
	SourceKind       SourceKind       `json:"source_kind"`
}
