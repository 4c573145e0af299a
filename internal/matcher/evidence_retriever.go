// Package matcher 实现证据检索与 JD 要求到候选人技能的匹配。
package matcher

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"resume-match-go/internal/skill"
	"resume-match-go/internal/types"
)

// Embedder 文本向量化接口
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string) ([][]float64, error)
}

// EvidenceSearcher 向量索引查询接口，由向量库适配器实现
type EvidenceSearcher interface {
	SearchEvidence(ctx context.Context, vector []float64, topK int) ([]types.EvidenceHit, error)
}

// DefaultEvidenceTopK 每条查询取回的候选数
const DefaultEvidenceTopK = 5

// EvidenceRetriever 双查询证据检索器：对每条 JD 要求同时发起
// 语义化描述查询和字面关键词查询，在本简历的向量中取相似度最高的证据。
type EvidenceRetriever struct {
	embedder   Embedder
	searcher   EvidenceSearcher
	normalizer *skill.Normalizer
	topK       int
	logger     zerolog.Logger
}

// RetrieverOption 检索器配置选项
type RetrieverOption func(*EvidenceRetriever)

// WithRetrieverTopK 设置每条查询的取回数量
func WithRetrieverTopK(k int) RetrieverOption {
	return func(r *EvidenceRetriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithRetrieverLogger 设置日志记录器
func WithRetrieverLogger(logger zerolog.Logger) RetrieverOption {
	return func(r *EvidenceRetriever) {
		r.logger = logger
	}
}

// NewEvidenceRetriever 创建证据检索器
func NewEvidenceRetriever(embedder Embedder, searcher EvidenceSearcher, normalizer *skill.Normalizer, options ...RetrieverOption) *EvidenceRetriever {
	if normalizer == nil {
		normalizer = skill.NewNormalizer()
	}
	r := &EvidenceRetriever{
		embedder:   embedder,
		searcher:   searcher,
		normalizer: normalizer,
		topK:       DefaultEvidenceTopK,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// FindBestEvidence 为单条 JD 要求检索该简历中最相关的证据位置。
// 两条查询都失败才返回错误；无命中返回零值位置（相似度 0）。
func (r *EvidenceRetriever) FindBestEvidence(ctx context.Context, resumeID string, req types.JDRequirement) (types.EvidenceLocation, error) {
	if resumeID == "" {
		return types.EvidenceLocation{}, fmt.Errorf("evidence retrieval: empty resume id")
	}

	semanticQuery := fmt.Sprintf("候选人使用 %s 的工作职责、项目经验与实际成果", req.Name)
	literalQuery := strings.Join(r.literalTerms(req), " ")

	vectors, err := r.embedder.EmbedStrings(ctx, []string{semanticQuery, literalQuery})
	if err != nil {
		return types.EvidenceLocation{}, fmt.Errorf("evidence retrieval: embedding failed for %q: %w", req.Name, err)
	}
	if len(vectors) != 2 {
		return types.EvidenceLocation{}, fmt.Errorf("evidence retrieval: expected 2 query vectors, got %d", len(vectors))
	}

	semanticBest, semErr := r.bestHit(ctx, resumeID, vectors[0])
	literalBest, litErr := r.bestHit(ctx, resumeID, vectors[1])
	if semErr != nil && litErr != nil {
		return types.EvidenceLocation{}, fmt.Errorf("evidence retrieval: both queries failed for %q: %w", req.Name, semErr)
	}
	if semErr != nil {
		r.logger.Warn().Err(semErr).Str("skill", req.Name).Msg("语义查询失败，仅使用字面查询结果")
		return literalBest, nil
	}
	if litErr != nil {
		r.logger.Warn().Err(litErr).Str("skill", req.Name).Msg("字面查询失败，仅使用语义查询结果")
		return semanticBest, nil
	}

	// 相似度相同时优先语义查询的结果
	if semanticBest.Similarity >= literalBest.Similarity {
		return semanticBest, nil
	}
	return literalBest, nil
}

// literalTerms 字面查询词：要求名 + JD 给出的变体 + 静态表中的同族变体
func (r *EvidenceRetriever) literalTerms(req types.JDRequirement) []string {
	terms := []string{req.Name}
	seen := map[string]struct{}{strings.ToLower(req.Name): {}}
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		lower := strings.ToLower(t)
		if _, dup := seen[lower]; dup {
			return
		}
		seen[lower] = struct{}{}
		terms = append(terms, t)
	}
	for _, v := range req.Variants {
		add(v)
	}
	for _, v := range r.normalizer.Family(req.Name) {
		add(v)
	}
	return terms
}

// bestHit 单条查询：检索、按简历归属过滤、归一化相似度、取最大值
func (r *EvidenceRetriever) bestHit(ctx context.Context, resumeID string, vector []float64) (types.EvidenceLocation, error) {
	hits, err := r.searcher.SearchEvidence(ctx, vector, r.topK)
	if err != nil {
		return types.EvidenceLocation{}, err
	}
	best := types.EvidenceLocation{}
	for _, hit := range hits {
		// 归属过滤：索引可能返回其他简历的向量，这里必须丢弃
		if hit.OwnerID != resumeID {
			continue
		}
		sim := toSimilarity(hit)
		if best.VectorKey == "" || sim > best.Similarity {
			best = types.EvidenceLocation{Similarity: sim, VectorKey: hit.VectorKey}
		}
	}
	return best, nil
}

// toSimilarity 把引擎原始打分归一化到 [0,1]：
// 相似度分数直接截断；cosine 距离 d 转换为 1-d；l2/euclidean 距离转换为 1/(1+d)；
// NaN 一律视为 0。
func toSimilarity(hit types.EvidenceHit) float64 {
	if hit.Score != nil {
		return clamp01(*hit.Score)
	}
	if hit.Distance == nil {
		return 0
	}
	d := *hit.Distance
	if math.IsNaN(d) {
		return 0
	}
	switch strings.ToLower(hit.Metric) {
	case "l2", "euclid", "euclidean":
		if d < 0 {
			d = 0
		}
		return clamp01(1.0 / (1.0 + d))
	default:
		// cosine 及未声明的度量按 cosine 距离处理
		return clamp01(1.0 - d)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
