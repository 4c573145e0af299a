// Package scorer 实现简历与 JD 的确定性评分。
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"resume-match-go/internal/types"
)

// 评分权重与阈值
const (
	// DefaultCoreWeight 核心技能证据得分权重
	DefaultCoreWeight = 0.60
	// DefaultSemanticWeight 语义相似度权重
	DefaultSemanticWeight = 0.15
	// DefaultExperienceWeight 总年限匹配权重
	DefaultExperienceWeight = 0.25
	// EvidenceThreshold 相似度低于该值时跳过证据评估
	EvidenceThreshold = 0.05
	// UnmetYearsCap 年限要求未满足时的单项得分上限
	UnmetYearsCap = 0.4
	// ExperienceGapPenalty 总年限每差一年扣除的分数
	ExperienceGapPenalty = 0.10
	// DefaultRunTimeout 单次评分运行的默认超时
	DefaultRunTimeout = 90 * time.Second
)

// 输入校验错误
var (
	ErrMissingResume = errors.New("scorer: resume profile is missing or has no id")
	ErrMissingJD     = errors.New("scorer: jd requirements are missing")
)

// EvidenceRetriever 证据检索接口
type EvidenceRetriever interface {
	FindBestEvidence(ctx context.Context, resumeID string, req types.JDRequirement) (types.EvidenceLocation, error)
}

// EvidenceGrader 证据评估接口
type EvidenceGrader interface {
	Grade(ctx context.Context, req types.JDRequirement, excerpt string) (*types.EvidenceGrade, error)
}

// RequirementMatcher 要求匹配接口
type RequirementMatcher interface {
	Match(ctx context.Context, req types.JDRequirement, experience types.SkillExperienceMap) (types.MatchResult, error)
}

// ChunkTextStore 按向量键取回分块原文
type ChunkTextStore interface {
	GetChunkText(ctx context.Context, vectorKey string) (string, error)
}

// Embedder 文本向量化接口，用于整体语义相似度
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string) ([][]float64, error)
}

// Engine 评分引擎：对每项核心技能并发执行"检索->评估"与"要求匹配"，
// 再合成确定性的评分明细。任何单项协作方失败只降级该项，不中断整次评分。
type Engine struct {
	retriever EvidenceRetriever
	grader    EvidenceGrader
	matcher   RequirementMatcher
	chunks    ChunkTextStore
	embedder  Embedder

	coreWeight       float64
	semanticWeight   float64
	experienceWeight float64
	runTimeout       time.Duration
	logger           zerolog.Logger
}

// EngineOption 引擎配置选项
type EngineOption func(*Engine)

// WithWeights 覆盖三路权重
func WithWeights(core, semantic, experience float64) EngineOption {
	return func(e *Engine) {
		if core > 0 {
			e.coreWeight = core
		}
		if semantic > 0 {
			e.semanticWeight = semantic
		}
		if experience > 0 {
			e.experienceWeight = experience
		}
	}
}

// WithRunTimeout 设置单次评分超时
func WithRunTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.runTimeout = d
		}
	}
}

// WithEngineLogger 设置日志记录器
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine 创建评分引擎
func NewEngine(retriever EvidenceRetriever, grader EvidenceGrader, matcher RequirementMatcher, chunks ChunkTextStore, embedder Embedder, options ...EngineOption) *Engine {
	e := &Engine{
		retriever:        retriever,
		grader:           grader,
		matcher:          matcher,
		chunks:           chunks,
		embedder:         embedder,
		coreWeight:       DefaultCoreWeight,
		semanticWeight:   DefaultSemanticWeight,
		experienceWeight: DefaultExperienceWeight,
		runTimeout:       DefaultRunTimeout,
		logger:           zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Score 对单份简历画像和单个 JD 要求集执行一次完整评分
func (e *Engine) Score(ctx context.Context, profile *types.ResumeProfile, jd *types.JDRequirements) (*types.ScoreBreakdown, error) {
	if profile == nil || strings.TrimSpace(profile.ResumeID) == "" {
		return nil, ErrMissingResume
	}
	if jd == nil {
		return nil, ErrMissingJD
	}

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	// 按核心技能下标写入固定槽位，保证输出顺序与 JD 一致
	perSkill := make([]types.SkillScore, len(jd.CoreSkills))
	var wg sync.WaitGroup
	for i := range jd.CoreSkills {
		wg.Add(1)
		go func(idx int, req types.JDRequirement) {
			defer wg.Done()
			perSkill[idx] = e.scoreSkill(runCtx, profile, req)
		}(i, jd.CoreSkills[i])
	}

	semanticScore := e.semanticSimilarity(runCtx, profile, jd)
	wg.Wait()

	var totalPoints float64
	for _, s := range perSkill {
		totalPoints += s.Points
	}
	coreScore := totalPoints / math.Max(float64(len(jd.CoreSkills)), 1.0)
	experienceScore := experienceGapScore(jd.TotalYears, profile.YearsExperience)

	final := e.coreWeight*coreScore + e.semanticWeight*semanticScore + e.experienceWeight*experienceScore
	overall := int(math.Round(final * 100)) // 0.5 向上取整

	return &types.ScoreBreakdown{
		OverallScore:      overall,
		CoreEvidenceScore: coreScore,
		SemanticScore:     semanticScore,
		ExperienceScore:   experienceScore,
		PerSkill:          perSkill,
	}, nil
}

// scoreSkill 单项核心技能：检索->评估 与 要求匹配 并行执行后合成
func (e *Engine) scoreSkill(ctx context.Context, profile *types.ResumeProfile, req types.JDRequirement) types.SkillScore {
	var (
		matchResult types.MatchResult
		matchDone   = make(chan struct{})
	)
	go func() {
		defer close(matchDone)
		result, err := e.matcher.Match(ctx, req, profile.SkillExperience)
		if err != nil {
			e.logger.Warn().Err(err).Str("skill", req.Name).Msg("要求匹配失败，按无匹配降级")
			return
		}
		matchResult = result
	}()

	location, grade := e.retrieveAndGrade(ctx, profile.ResumeID, req)
	<-matchDone

	return composeSkillScore(req, location, grade, matchResult)
}

// retrieveAndGrade 检索最佳证据并在达到阈值时评估
func (e *Engine) retrieveAndGrade(ctx context.Context, resumeID string, req types.JDRequirement) (types.EvidenceLocation, *types.EvidenceGrade) {
	location, err := e.retriever.FindBestEvidence(ctx, resumeID, req)
	if err != nil {
		e.logger.Warn().Err(err).Str("skill", req.Name).Msg("证据检索失败，按无证据降级")
		return types.EvidenceLocation{}, types.NoEvidenceGrade("evidence retrieval failed")
	}

	// 相似度过低或无命中时不调用评估器
	if location.Similarity < EvidenceThreshold || location.VectorKey == "" {
		return location, types.NoEvidenceGrade("similarity below evidence threshold")
	}

	excerpt, err := e.chunks.GetChunkText(ctx, location.VectorKey)
	if err != nil {
		e.logger.Warn().Err(err).Str("vector_key", location.VectorKey).Msg("分块原文读取失败，按无证据降级")
		return location, types.NoEvidenceGrade("chunk text unavailable")
	}

	grade, err := e.grader.Grade(ctx, req, excerpt)
	if err != nil {
		e.logger.Warn().Err(err).Str("skill", req.Name).Msg("证据评估失败，按无证据降级")
		return location, types.NoEvidenceGrade("evidence grading failed")
	}
	return location, grade
}

// composeSkillScore 合成单项得分。
// 聚合年限存在时年限判定以聚合结果为准；聚合年限非零而评估器未找到证据时强度默认 moderate。
func composeSkillScore(req types.JDRequirement, location types.EvidenceLocation, grade *types.EvidenceGrade, match types.MatchResult) types.SkillScore {
	if grade == nil {
		grade = types.NoEvidenceGrade("missing grade")
	}

	strength := grade.Strength
	confidence := grade.Confidence
	if match.TotalYears > 0 && strength == types.StrengthNone {
		strength = types.StrengthModerate
		confidence = 0.8
	}

	// 年限判定：有聚合年限时以聚合结果为准；没有任何聚合记录时
	// 沿用评估器自己的判断，避免把仅有文本证据的技能错误封顶
	meetsYears := grade.MeetsYears
	if match.TotalYears > 0 {
		meetsYears = req.MinYears <= 0 || match.TotalYears >= req.MinYears
	}

	points := strength.Points()
	if req.MinYears > 0 && !meetsYears {
		points = math.Min(points, UnmetYearsCap)
	}

	return types.SkillScore{
		Skill:         req.Name,
		MinYears:      req.MinYears,
		Similarity:    location.Similarity,
		VectorKey:     location.VectorKey,
		Strength:      strength,
		TotalYears:    match.TotalYears,
		MeetsYears:    meetsYears,
		Points:        points,
		MatchedSkills: match.MatchedSkills,
		Why:           grade.Why,
		Quote:         grade.Quote,
		Confidence:    confidence,
	}
}

// semanticSimilarity JD 技能要求与候选人技能列表的整体语义相似度
func (e *Engine) semanticSimilarity(ctx context.Context, profile *types.ResumeProfile, jd *types.JDRequirements) float64 {
	jdSkills := make([]string, 0, len(jd.CoreSkills)+len(jd.SecondarySkills))
	for _, req := range jd.CoreSkills {
		jdSkills = append(jdSkills, req.Name)
	}
	for _, req := range jd.SecondarySkills {
		jdSkills = append(jdSkills, req.Name)
	}
	if len(jdSkills) == 0 || len(profile.Skills) == 0 {
		return 0
	}

	texts := []string{
		fmt.Sprintf("岗位要求技能: %s", strings.Join(jdSkills, ", ")),
		fmt.Sprintf("候选人技能: %s", strings.Join(profile.Skills, ", ")),
	}
	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil || len(vectors) != 2 {
		e.logger.Warn().Err(err).Msg("语义相似度向量化失败，该路得分置0")
		return 0
	}
	return clamp01(cosineSimilarity(vectors[0], vectors[1]))
}

// experienceGapScore 总年限匹配得分：满足为 1.0，每差一年扣 0.10，下限 0
func experienceGapScore(requiredYears, resumeYears int) float64 {
	if requiredYears <= 0 || resumeYears >= requiredYears {
		return 1.0
	}
	score := 1.0 - ExperienceGapPenalty*float64(requiredYears-resumeYears)
	if score < 0 {
		return 0
	}
	return score
}

// cosineSimilarity 余弦相似度；维度不一致或零向量返回 0
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
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
