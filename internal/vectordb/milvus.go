package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/sirupsen/logrus"
)

// Milvus 集合字段
const (
	milvusFieldID       = "id"
	milvusFieldVector   = "embedding"
	milvusFieldText     = "text"
	milvusFieldMetadata = "metadata"

	milvusMaxTextLength     = 65535
	milvusMaxMetadataLength = 8192
)

// MilvusStore 基于 Milvus 的向量数据库
// 每个命名集合对应一个 Milvus collection，主键为条目ID
type MilvusStore struct {
	client    *milvusclient.Client
	dimension int
	metric    entity.MetricType
	logger    *logrus.Logger
}

// milvusCollection Milvus 集合句柄
type milvusCollection struct {
	store *MilvusStore
	name  string
}

// NewMilvusStore 连接 Milvus 服务
func NewMilvusStore(config Config) (Store, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	if config.Milvus.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  config.Milvus.Address,
		Username: config.Milvus.Username,
		Password: config.Milvus.Password,
		DBName:   config.Milvus.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MilvusStore{
		client:    c,
		dimension: config.Dimension,
		metric:    milvusMetric(config.DistanceType),
		logger:    logger,
	}, nil
}

// milvusMetric 将距离类型映射为 Milvus 度量
func milvusMetric(distType DistanceType) entity.MetricType {
	switch distType {
	case Euclidean:
		return entity.L2
	case DotProduct:
		return entity.IP
	default:
		return entity.COSINE
	}
}

// CreateOrGet 获取集合，不存在时创建 schema、索引并加载
func (s *MilvusStore) CreateOrGet(ctx context.Context, name string) (Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return s.load(ctx, name)
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription("regulatory document entries").
		WithAutoID(false)
	schema.WithField(
		entity.NewField().
			WithName(milvusFieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).
			WithMaxLength(64),
	)
	schema.WithField(
		entity.NewField().
			WithName(milvusFieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.dimension)),
	)
	schema.WithField(
		entity.NewField().
			WithName(milvusFieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(milvusMaxTextLength),
	)
	schema.WithField(
		entity.NewField().
			WithName(milvusFieldMetadata).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(milvusMaxMetadataLength),
	)

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(s.metric, 128)
	createIdxTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusFieldVector, idx))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for index creation: %w", err)
	}

	return s.load(ctx, name)
}

// load 加载集合到内存
func (s *MilvusStore) load(ctx context.Context, name string) (Collection, error) {
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return &milvusCollection{store: s, name: name}, nil
}

// Get 获取已有集合
func (s *MilvusStore) Get(ctx context.Context, name string) (Collection, error) {
	if ValidateCollectionName(name) != nil {
		return nil, ErrCollectionNotFound
	}
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}
	return s.load(ctx, name)
}

// Delete 删除集合
func (s *MilvusStore) Delete(ctx context.Context, name string) error {
	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// List 列出全部集合
func (s *MilvusStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Close 关闭连接
func (s *MilvusStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func (c *milvusCollection) Name() string {
	return c.name
}

// Add 按列写入条目并刷盘
func (c *milvusCollection) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries, c.store.dimension); err != nil {
		return err
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	texts := make([]string, len(entries))
	metas := make([]string, len(entries))
	for i, e := range entries {
		meta, err := encodeMilvusMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("invalid metadata for entry %s: %w", e.ID, err)
		}
		ids[i] = e.ID
		vectors[i] = e.Vector
		texts[i] = c.store.clipText(c.name, e.ID, e.Text)
		metas[i] = meta
	}

	_, err := c.store.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(c.name,
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnFloatVector(milvusFieldVector, c.store.dimension, vectors),
		column.NewColumnVarChar(milvusFieldText, texts),
		column.NewColumnVarChar(milvusFieldMetadata, metas),
	))
	if err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}

	flushTask, err := c.store.client.Flush(ctx, milvusclient.NewFlushOption(c.name))
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Query 向量检索
func (c *milvusCollection) Query(ctx context.Context, vector []float32, n int) ([]Match, error) {
	if err := ValidateVector(vector, c.store.dimension); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []Match{}, nil
	}

	results, err := c.store.client.Search(ctx, milvusclient.NewSearchOption(
		c.name,
		n,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(milvusFieldVector).
		WithSearchParam("nprobe", "16").
		WithOutputFields(milvusFieldText, milvusFieldMetadata))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []Match{}, nil
	}

	rs := results[0]
	matches := make([]Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		m := Match{Score: rs.Scores[i], Distance: rs.Scores[i], Metadata: map[string]interface{}{}}
		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			m.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case milvusFieldText:
				m.Text = col.Data()[i]
			case milvusFieldMetadata:
				meta, err := decodeMilvusMetadata(col.Data()[i])
				if err != nil {
					return nil, fmt.Errorf("invalid metadata for entry %s: %w", m.ID, err)
				}
				m.Metadata = meta
			}
		}
		if c.store.metric == entity.L2 {
			m.Score = DistanceToScore(m.Distance, Euclidean)
		}
		matches = append(matches, m)
	}
	SortMatches(matches)
	return matches, nil
}

// Count 返回集合行数
func (c *milvusCollection) Count(ctx context.Context) (int, error) {
	stats, err := c.store.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(c.name))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	val, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid row count %q: %w", val, err)
	}
	return count, nil
}

// DeleteEntries 按主键删除
func (c *milvusCollection) DeleteEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.store.client.Delete(ctx, milvusclient.NewDeleteOption(c.name).WithStringIDs(milvusFieldID, ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return nil
}

// encodeMilvusMetadata 元数据以JSON字符串保存
func encodeMilvusMetadata(meta map[string]interface{}) (string, error) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if len(data) > milvusMaxMetadataLength {
		return "", fmt.Errorf("metadata exceeds %d bytes", milvusMaxMetadataLength)
	}
	return string(data), nil
}

func decodeMilvusMetadata(s string) (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	if s == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// clipText 截断超过 VarChar 上限的文本并记录警告
func (s *MilvusStore) clipText(collection, id, text string) string {
	clipped := truncateRunes(text, milvusMaxTextLength)
	if len(clipped) < len(text) {
		s.logger.WithFields(logrus.Fields{
			"collection": collection,
			"entry_id":   id,
			"bytes":      len(text),
			"kept":       len(clipped),
		}).Warn("Entry text exceeds milvus limit, truncated")
	}
	return clipped
}

// truncateRunes 按字节上限截断文本，不拆分多字节字符
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}

func init() {
	RegisterStore("milvus", NewMilvusStore)
}
