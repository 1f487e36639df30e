package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// Field names of a catalog collection.
const (
	FieldCode      = "code"
	FieldActive    = "active"
	FieldEmbedding = "embedding"
)

const (
	codeMaxLength  = 32
	shardsNum      = 1
	hnswM          = 16
	hnswEfConstrct = 200
)

// CollectionName is the collection holding vocab's vectors.
func CollectionName(prefix string, vocab catalog.Vocabulary) string {
	return prefix + "_" + string(vocab)
}

// CatalogSchema is the schema of one vocabulary's collection.  The code is
// the primary key; titles stay in the primary store.
func CatalogSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "catalog entry embeddings",
		Fields: []*entity.Field{
			{Name: FieldCode, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{"max_length": strconv.Itoa(codeMaxLength)}},
			{Name: FieldActive, DataType: entity.FieldTypeBool},
			{Name: FieldEmbedding, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(dim)}},
		},
	}
}

// CollectionManager creates and loads catalog collections.
type CollectionManager struct {
	client *Client
	logger logging.Logger
}

// NewCollectionManager creates a CollectionManager.
func NewCollectionManager(c *Client, log logging.Logger) *CollectionManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &CollectionManager{client: c, logger: log.Named("milvus_collections")}
}

// EnsureCollection creates the collection with a cosine HNSW index if it is
// missing, then loads it.
func (m *CollectionManager) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return errors.InvalidParam("milvus collection needs a positive dimension").WithDetail(name)
	}
	mc := m.client.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to check milvus collection").WithDetail(name)
	}
	if !has {
		if err := mc.CreateCollection(ctx, CatalogSchema(name, dim), shardsNum); err != nil {
			return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to create milvus collection").WithDetail(name)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstrct)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to build hnsw index params")
		}
		if err := mc.CreateIndex(ctx, name, FieldEmbedding, idx, false); err != nil {
			return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to create milvus index").WithDetail(name)
		}
		m.logger.Info("Collection created", logging.String("name", name), logging.Int("dim", dim))
	}

	if err := mc.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to load milvus collection").WithDetail(name)
	}
	return nil
}

// DropCollection removes a collection if present.
func (m *CollectionManager) DropCollection(ctx context.Context, name string) error {
	mc := m.client.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}
	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to check milvus collection").WithDetail(name)
	}
	if !has {
		return nil
	}
	if err := mc.DropCollection(ctx, name); err != nil {
		return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to drop milvus collection").WithDetail(name)
	}
	m.logger.Warn("Collection dropped", logging.String("name", name))
	return nil
}
