package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/regdoc-rag/internal/cache"
	"github.com/fyerfyer/regdoc-rag/internal/embedding"
	"github.com/fyerfyer/regdoc-rag/internal/llm"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/repository"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
)

// NoContextAnswer 没有检索到任何条目时的固定回答
const NoContextAnswer = "No relevant context found for your query."

// 查询默认参数
const (
	DefaultTopK        = 20
	DefaultMaxTokens   = 700
	DefaultTemperature = 0.3
)

// QueryRequest 查询请求
type QueryRequest struct {
	Collection string
	Query      string
	TopK       int
}

// SourceRef 回答引用的检索条目
type SourceRef struct {
	Rank   int     `json:"rank"`
	Page   string  `json:"page"`
	Clause string  `json:"clause"`
	Title  string  `json:"title,omitempty"`
	Score  float32 `json:"score"`
	Text   string  `json:"text"`
}

// QueryResult 查询结果
type QueryResult struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
	Context string      `json:"context"`
	Cached  bool        `json:"-"`
}

// QueryPipeline 检索增强问答流水线
// 向量化问题、检索集合、拼接上下文并调用大模型生成回答
type QueryPipeline struct {
	store       vectordb.Store
	embedder    embedding.Client
	llm         llm.Client
	prompt      *llm.PromptBuilder
	cache       cache.Cache
	cacheTTL    time.Duration
	history     repository.QueryRepository
	maxTokens   int
	temperature float32
	logger      *logrus.Logger
}

// QueryOption 查询流水线配置选项
type QueryOption func(*QueryPipeline)

// WithAnswerCache 启用回答缓存
func WithAnswerCache(c cache.Cache, ttl time.Duration) QueryOption {
	return func(p *QueryPipeline) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

// WithQueryHistory 记录每次问答
func WithQueryHistory(repo repository.QueryRepository) QueryOption {
	return func(p *QueryPipeline) {
		p.history = repo
	}
}

// WithPromptBuilder 设置提示词构建器
func WithPromptBuilder(b *llm.PromptBuilder) QueryOption {
	return func(p *QueryPipeline) {
		if b != nil {
			p.prompt = b
		}
	}
}

// WithCompletionParams 设置生成长度和温度
func WithCompletionParams(maxTokens int, temperature float32) QueryOption {
	return func(p *QueryPipeline) {
		if maxTokens > 0 {
			p.maxTokens = maxTokens
		}
		p.temperature = temperature
	}
}

// WithQueryLogger 设置日志记录器
func WithQueryLogger(logger *logrus.Logger) QueryOption {
	return func(p *QueryPipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewQueryPipeline 创建查询流水线
func NewQueryPipeline(store vectordb.Store, embedder embedding.Client, llmClient llm.Client, opts ...QueryOption) *QueryPipeline {
	p := &QueryPipeline{
		store:       store,
		embedder:    embedder,
		llm:         llmClient,
		prompt:      llm.MustPromptBuilder(llm.RegulatoryTemplate),
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer 回答问题
// 集合不存在返回 ErrCollectionNotFound；检索失败返回 RetrievalError；生成失败返回 CompletionError
func (p *QueryPipeline) Answer(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	question := strings.TrimSpace(req.Query)
	if question == "" {
		return nil, ErrEmptyQuery
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	start := time.Now()
	logger := p.logger.WithFields(logrus.Fields{
		"collection": req.Collection,
		"top_k":      req.TopK,
	})

	// 先确认集合存在，已删除集合的缓存回答不再返回
	coll, err := p.store.Get(ctx, req.Collection)
	if err != nil {
		if errors.Is(err, vectordb.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, req.Collection)
		}
		return nil, &RetrievalError{Collection: req.Collection, Err: err}
	}

	cacheKey := cache.AnswerKey(req.Collection, req.TopK, question)
	if cached, ok := p.fromCache(cacheKey); ok {
		logger.Debug("Answer served from cache")
		return cached, nil
	}

	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &RetrievalError{Collection: req.Collection, Err: fmt.Errorf("failed to embed query: %w", err)}
	}

	matches, err := coll.Query(ctx, vector, req.TopK)
	if err != nil {
		return nil, &RetrievalError{Collection: req.Collection, Err: err}
	}

	result := &QueryResult{Sources: BuildSources(matches)}
	if len(matches) == 0 {
		result.Answer = NoContextAnswer
	} else {
		result.Context = FormatContext(matches)
		prompt, err := p.prompt.Build(result.Context, question)
		if err != nil {
			return nil, &CompletionError{Err: err}
		}
		resp, err := p.llm.Generate(ctx, prompt,
			llm.CallMaxTokens(p.maxTokens),
			llm.CallTemperature(p.temperature),
		)
		if err != nil {
			logger.WithError(err).Error("Completion failed")
			return nil, &CompletionError{Err: err}
		}
		result.Answer = strings.TrimSpace(resp.Text)
	}

	latency := time.Since(start)
	logger.WithFields(logrus.Fields{
		"matches": len(matches),
		"latency": latency.String(),
	}).Info("Query answered")

	p.toCache(cacheKey, result)
	p.record(req, question, result, latency)
	return result, nil
}

// InvalidateCollection 清除集合相关的缓存回答
func (p *QueryPipeline) InvalidateCollection(collection string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.DeletePrefix(cache.AnswerKeyPrefix(collection))
}

// History 返回最近的问答记录
func (p *QueryPipeline) History(collection string, limit int) ([]*models.QueryRecord, error) {
	if p.history == nil {
		return []*models.QueryRecord{}, nil
	}
	return p.history.Recent(collection, limit)
}

func (p *QueryPipeline) fromCache(key string) (*QueryResult, bool) {
	if p.cache == nil {
		return nil, false
	}
	value, found, err := p.cache.Get(key)
	if err != nil || !found {
		return nil, false
	}
	var result QueryResult
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		p.logger.WithError(err).Warn("Discarding malformed cached answer")
		return nil, false
	}
	result.Cached = true
	return &result, true
}

func (p *QueryPipeline) toCache(key string, result *QueryResult) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := p.cache.Set(key, string(data), p.cacheTTL); err != nil {
		p.logger.WithError(err).Warn("Failed to cache answer")
	}
}

// record 保存问答记录，失败只记录日志
func (p *QueryPipeline) record(req QueryRequest, question string, result *QueryResult, latency time.Duration) {
	if p.history == nil {
		return
	}
	sources := make([]models.Source, len(result.Sources))
	for i, s := range result.Sources {
		sources[i] = models.Source{Rank: s.Rank, Page: s.Page, Clause: s.Clause, Title: s.Title, Score: s.Score}
	}
	data, _ := json.Marshal(sources)
	err := p.history.Save(&models.QueryRecord{
		Collection: req.Collection,
		Question:   question,
		Answer:     result.Answer,
		TopK:       req.TopK,
		Sources:    datatypes.JSON(data),
		LatencyMs:  latency.Milliseconds(),
	})
	if err != nil {
		p.logger.WithError(err).Warn("Failed to save query record")
	}
}

// FormatContext 将检索结果渲染为编号的上下文块
// 每条为 "[序号] Page <页码> | Clause <条款>:\n<文本>\n\n"
func FormatContext(matches []vectordb.Match) string {
	var sb strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&sb, "[%d] Page %s | Clause %s:\n%s\n\n",
			i+1, pageLabel(m.Metadata), clauseLabel(m.Metadata), strings.TrimSpace(m.Text))
	}
	return sb.String()
}

// BuildSources 将检索结果转换为引用列表
func BuildSources(matches []vectordb.Match) []SourceRef {
	sources := make([]SourceRef, len(matches))
	for i, m := range matches {
		title, _ := m.Metadata[MetaTitle].(string)
		sources[i] = SourceRef{
			Rank:   i + 1,
			Page:   pageLabel(m.Metadata),
			Clause: clauseLabel(m.Metadata),
			Title:  title,
			Score:  m.Score,
			Text:   m.Text,
		}
	}
	return sources
}

func clauseLabel(meta map[string]interface{}) string {
	if s, ok := meta[MetaClause].(string); ok && s != "" {
		return s
	}
	return "N/A"
}

// pageLabel 渲染页码；经 JSON 持久化的元数据中数字为 float64
func pageLabel(meta map[string]interface{}) string {
	switch v := meta[MetaPage].(type) {
	case nil:
		return "Unknown"
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case json.Number:
		return v.String()
	case string:
		if v == "" {
			return "Unknown"
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
