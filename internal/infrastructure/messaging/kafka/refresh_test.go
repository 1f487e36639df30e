package kafka

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func eventMessage(t *testing.T, evt *RefreshEvent) kafka.Message {
	t.Helper()
	b, err := evt.Encode()
	require.NoError(t, err)
	return kafka.Message{Topic: "refresh", Value: b}
}

func TestDecodeRefreshEvent(t *testing.T) {
	_, err := DecodeRefreshEvent([]byte("{"))
	assert.True(t, errors.IsCode(err, errors.CodeSerialization))

	_, err = DecodeRefreshEvent([]byte(`{"event_id":"1"}`))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	evt := NewRefreshEvent(EventSnapshotPublished, "ingest")
	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, "v1", evt.SchemaVersion)
}

func TestRefreshHandler_Dispatch(t *testing.T) {
	var rules, snapshots, embeddings []string
	h := RefreshHandler(RefreshHandlers{
		OnRules: func(ctx context.Context, evt *RefreshEvent) error {
			rules = append(rules, evt.Version)
			return nil
		},
		OnSnapshot: func(ctx context.Context, evt *RefreshEvent) error {
			snapshots = append(snapshots, evt.ObjectKey)
			return nil
		},
		OnEmbeddings: func(ctx context.Context, evt *RefreshEvent) error {
			embeddings = append(embeddings, evt.Model)
			return nil
		},
	}, nil)

	r := NewRefreshEvent(EventRulesPublished, "cli")
	r.Version = "v2"
	s := NewRefreshEvent(EventSnapshotPublished, "ingest")
	s.ObjectKey = "snapshots/latest.json"
	e := NewRefreshEvent(EventEmbeddingsRotated, "ingest")
	e.Model = "text-embedding-3-large"

	ctx := context.Background()
	require.NoError(t, h(ctx, eventMessage(t, r)))
	require.NoError(t, h(ctx, eventMessage(t, s)))
	require.NoError(t, h(ctx, eventMessage(t, e)))
	require.NoError(t, h(ctx, eventMessage(t, NewRefreshEvent("something_else", "x"))))

	assert.Equal(t, []string{"v2"}, rules)
	assert.Equal(t, []string{"snapshots/latest.json"}, snapshots)
	assert.Equal(t, []string{"text-embedding-3-large"}, embeddings)
}

func TestRefreshHandler_Errors(t *testing.T) {
	boom := stderrors.New("reload failed")
	h := RefreshHandler(RefreshHandlers{
		OnRules: func(ctx context.Context, evt *RefreshEvent) error { return boom },
	}, nil)

	err := h(context.Background(), eventMessage(t, NewRefreshEvent(EventRulesPublished, "cli")))
	assert.ErrorIs(t, err, boom)
	assert.False(t, isPermanent(err))

	err = h(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.True(t, isPermanent(err))

	assert.NoError(t, h(context.Background(), eventMessage(t, NewRefreshEvent(EventSnapshotPublished, "x"))))
}
