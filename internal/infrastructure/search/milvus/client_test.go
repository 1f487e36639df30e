package milvus

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// fakeMilvus embeds the SDK interface; only the methods under test are set.
type fakeMilvus struct {
	client.Client

	checkHealthFn func(ctx context.Context) (*entity.MilvusState, error)
	searchFn      func(coll, expr string, vectors []entity.Vector, topK int) ([]client.SearchResult, error)
	upsertFn      func(coll string, columns ...entity.Column) (entity.Column, error)

	hasCollection bool
	created       []*entity.Schema
	indexed       []string
	loaded        []string
	dropped       []string
	closed        bool
}

func (f *fakeMilvus) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	if f.checkHealthFn != nil {
		return f.checkHealthFn(ctx)
	}
	return &entity.MilvusState{IsHealthy: true}, nil
}

func (f *fakeMilvus) Search(ctx context.Context, coll string, partitions []string, expr string, outputFields []string,
	vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
	opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	return f.searchFn(coll, expr, vectors, topK)
}

func (f *fakeMilvus) Upsert(ctx context.Context, coll string, partition string, columns ...entity.Column) (entity.Column, error) {
	return f.upsertFn(coll, columns...)
}

func (f *fakeMilvus) HasCollection(ctx context.Context, coll string) (bool, error) {
	return f.hasCollection, nil
}

func (f *fakeMilvus) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32, opts ...client.CreateCollectionOption) error {
	f.created = append(f.created, schema)
	return nil
}

func (f *fakeMilvus) CreateIndex(ctx context.Context, coll string, field string, idx entity.Index, async bool, opts ...client.IndexOption) error {
	f.indexed = append(f.indexed, coll+"."+field)
	return nil
}

func (f *fakeMilvus) LoadCollection(ctx context.Context, coll string, async bool, opts ...client.LoadCollectionOption) error {
	f.loaded = append(f.loaded, coll)
	return nil
}

func (f *fakeMilvus) DropCollection(ctx context.Context, coll string, opts ...client.DropCollectionOption) error {
	f.dropped = append(f.dropped, coll)
	return nil
}

func (f *fakeMilvus) Close() error {
	f.closed = true
	return nil
}

func withFactory(t *testing.T, fn ClientFactory) {
	t.Helper()
	orig := milvusNewClient
	milvusNewClient = fn
	t.Cleanup(func() { milvusNewClient = orig })
}

func TestNewClient_Success(t *testing.T) {
	fake := &fakeMilvus{}
	var gotConf client.Config
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		gotConf = conf
		return fake, nil
	})

	c, err := NewClient(context.Background(), config.MilvusConfig{Addr: "localhost:19530"}, nil)
	require.NoError(t, err)
	assert.True(t, c.IsHealthy())
	assert.Equal(t, "default", gotConf.DBName)
	assert.NotEmpty(t, gotConf.DialOptions)

	require.NoError(t, c.Close())
	assert.True(t, fake.closed)
	assert.Nil(t, c.SDK())
	require.NoError(t, c.Close())
}

func TestNewClient_Failures(t *testing.T) {
	_, err := NewClient(context.Background(), config.MilvusConfig{}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) {
		return nil, stderrors.New("dial failed")
	})
	_, err = NewClient(context.Background(), config.MilvusConfig{Addr: "localhost:19530"}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))
}

func TestNewClient_Unhealthy(t *testing.T) {
	fake := &fakeMilvus{checkHealthFn: func(ctx context.Context) (*entity.MilvusState, error) {
		return &entity.MilvusState{IsHealthy: false, Reasons: []string{"querynode down"}}, nil
	}}
	withFactory(t, func(ctx context.Context, conf client.Config) (client.Client, error) { return fake, nil })

	_, err := NewClient(context.Background(), config.MilvusConfig{Addr: "localhost:19530"}, nil)
	require.Error(t, err)
	assert.True(t, fake.closed)
}

func TestCollectionManager_EnsureCollection(t *testing.T) {
	fake := &fakeMilvus{}
	m := NewCollectionManager(NewClientWithSDK(fake, config.MilvusConfig{}, nil), nil)
	name := CollectionName("codelink", catalog.VocabularyProcedure)
	assert.Equal(t, "codelink_procedure", name)

	require.NoError(t, m.EnsureCollection(context.Background(), name, 8))
	require.Len(t, fake.created, 1)
	assert.Equal(t, name, fake.created[0].CollectionName)
	assert.Equal(t, "8", fake.created[0].Fields[2].TypeParams["dim"])
	assert.Equal(t, []string{name + "." + FieldEmbedding}, fake.indexed)
	assert.Equal(t, []string{name}, fake.loaded)

	fake.hasCollection = true
	require.NoError(t, m.EnsureCollection(context.Background(), name, 8))
	assert.Len(t, fake.created, 1)
	assert.Len(t, fake.loaded, 2)

	err := m.EnsureCollection(context.Background(), name, 0)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestCollectionManager_DropCollection(t *testing.T) {
	fake := &fakeMilvus{}
	m := NewCollectionManager(NewClientWithSDK(fake, config.MilvusConfig{}, nil), nil)

	require.NoError(t, m.DropCollection(context.Background(), "x"))
	assert.Empty(t, fake.dropped)

	fake.hasCollection = true
	require.NoError(t, m.DropCollection(context.Background(), "x"))
	assert.Equal(t, []string{"x"}, fake.dropped)
}
