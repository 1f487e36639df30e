package neo4j

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func sampleLinks() (catalog.CodeEntry, []catalog.LinkCandidate) {
	dx := catalog.CodeEntry{Code: "S52.501A", Title: "Fracture of radius", Vocabulary: catalog.VocabularyDiagnosis}
	approved := catalog.LinkCandidate{
		Procedure:        catalog.CodeEntry{Code: "73090", Title: "X-ray forearm", Vocabulary: catalog.VocabularyProcedure},
		ValidationScore:  0.82,
		Status:           catalog.LinkApproved,
		RelationshipType: catalog.RelationshipImaging,
		SourceKind:       catalog.SourceVector,
		AppliedRules: []catalog.AppliedRule{
			{RuleID: "imaging_boost", Category: catalog.RuleBoosting, Delta: 0.1},
		},
	}
	rejected := catalog.LinkCandidate{
		Procedure: catalog.CodeEntry{Code: "99999"},
		Status:    catalog.LinkRejected,
	}
	return dx, []catalog.LinkCandidate{approved, rejected}
}

func TestLinkGraph_RecordLinks_OnlyApproved(t *testing.T) {
	tx := new(MockTransaction)
	var captured map[string]any
	tx.On("Run", mock.Anything, recordLinksCypher, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).(map[string]any) }).
		Return(&recordResult{}, nil)
	d, _ := newTestDriver(t, tx)

	dx, links := sampleLinks()
	require.NoError(t, NewLinkGraph(d, nil, nil).RecordLinks(context.Background(), dx, links))

	params := captured["links"].([]map[string]any)
	require.Len(t, params, 1)
	assert.Equal(t, "73090", params[0]["code"])
	assert.Equal(t, "imaging", params[0]["relationship"])
	assert.Equal(t, []string{"imaging_boost"}, params[0]["rules"])
	assert.Equal(t, "S52.501A", captured["diagnosis"].(map[string]any)["code"])
}

func TestLinkGraph_RecordLinks_NothingApproved(t *testing.T) {
	tx := new(MockTransaction)
	d, _ := newTestDriver(t, tx)

	dx, links := sampleLinks()
	require.NoError(t, NewLinkGraph(d, nil, nil).RecordLinks(context.Background(), dx, links[1:]))
	tx.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestLinkGraph_RecordLinks_Failure(t *testing.T) {
	tx := new(MockTransaction)
	tx.On("Run", mock.Anything, recordLinksCypher, mock.Anything).Return(nil, stderrors.New("deadlock"))
	d, _ := newTestDriver(t, tx)

	dx, links := sampleLinks()
	err := NewLinkGraph(d, nil, nil).RecordLinks(context.Background(), dx, links)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
}

func TestLinkGraph_LinksForDiagnosis(t *testing.T) {
	keys := []string{"code", "title", "score", "relationship", "hits"}
	tx := new(MockTransaction)
	tx.On("Run", mock.Anything, linksForDiagnosisCypher, map[string]any{"code": "S52.501A", "limit": int64(5)}).
		Return(&recordResult{records: []*neo4j.Record{
			record(keys, "73090", "X-ray forearm", 0.82, "imaging", int64(3)),
			record(keys, "25600", "Closed treatment radius", 0.7, "therapeutic", int64(1)),
		}}, nil)
	d, _ := newTestDriver(t, tx)

	got, err := NewLinkGraph(d, nil, nil).LinksForDiagnosis(context.Background(), "S52.501A", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, GraphLink{
		ProcedureCode:    "73090",
		ProcedureTitle:   "X-ray forearm",
		ValidationScore:  0.82,
		RelationshipType: "imaging",
		Hits:             3,
	}, got[0])
}

func TestLinkGraph_LinksForDiagnosis_BadRecord(t *testing.T) {
	tx := new(MockTransaction)
	tx.On("Run", mock.Anything, linksForDiagnosisCypher, mock.Anything).
		Return(&recordResult{records: []*neo4j.Record{record([]string{"code"}, int64(7))}}, nil)
	d, _ := newTestDriver(t, tx)

	_, err := NewLinkGraph(d, nil, nil).LinksForDiagnosis(context.Background(), "S52.501A", 5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))
}

func TestLinkGraph_CoLinked(t *testing.T) {
	keys := []string{"code", "shared"}
	tx := new(MockTransaction)
	tx.On("Run", mock.Anything, coLinkedCypher, mock.Anything).
		Return(&recordResult{records: []*neo4j.Record{record(keys, "S52.502A", int64(4))}}, nil)
	d, _ := newTestDriver(t, tx)

	got, err := NewLinkGraph(d, nil, nil).CoLinked(context.Background(), "S52.501A", 10)
	require.NoError(t, err)
	assert.Equal(t, []CoLinkedDiagnosis{{Code: "S52.502A", Shared: 4}}, got)
}

func TestLinkGraph_EnsureConstraints(t *testing.T) {
	tx := new(MockTransaction)
	for _, stmt := range constraintCypher {
		tx.On("Run", mock.Anything, stmt, mock.Anything).Return(&recordResult{}, nil).Once()
	}
	d, _ := newTestDriver(t, tx)

	require.NoError(t, NewLinkGraph(d, nil, nil).EnsureConstraints(context.Background()))
	tx.AssertExpectations(t)
}
