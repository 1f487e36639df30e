package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/neo4j"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func TestGraphHandler_History(t *testing.T) {
	var gotCode string
	var gotLimit int
	g := &mockGraph{
		linksFn: func(_ context.Context, code string, limit int) ([]neo4j.GraphLink, error) {
			gotCode, gotLimit = code, limit
			return []neo4j.GraphLink{{ProcedureCode: "73090", ValidationScore: 0.8, Hits: 2}}, nil
		},
	}
	w := serve(t, NewGraphHandler(g, nil), http.MethodGet, "/api/v1/diagnoses/s52.501a/history")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S52.501A", gotCode)
	assert.Equal(t, defaultGraphLimit, gotLimit)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Links, 1)
	assert.Equal(t, "73090", resp.Links[0].ProcedureCode)
	assert.NotNil(t, resp.CoLinked)
}

func TestGraphHandler_History_StorageError(t *testing.T) {
	g := &mockGraph{
		linksFn: func(context.Context, string, int) ([]neo4j.GraphLink, error) {
			return nil, errors.StorageUnavailable(assert.AnError, "failed to read link graph")
		},
	}
	w := serve(t, NewGraphHandler(g, nil), http.MethodGet, "/api/v1/diagnoses/E11.9/history?limit=3")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
