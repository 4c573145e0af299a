package handler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

var (
	// ErrInvalidMatchRequest 请求缺少必要字段
	ErrInvalidMatchRequest = errors.New("resume_id与jd_text不能为空")
	// ErrResumeNotFound 简历不存在
	ErrResumeNotFound = errors.New("简历不存在")
	// ErrRunNotFound 匹配运行记录不存在
	ErrRunNotFound = errors.New("匹配运行记录不存在")
)

// JDExtractor 从JD文本中提取结构化要求
type JDExtractor interface {
	ExtractRequirements(ctx context.Context, jdText string) (*types.JDRequirements, error)
}

// ScoreEngine 对画像与JD要求执行评分
type ScoreEngine interface {
	Score(ctx context.Context, profile *types.ResumeProfile, jd *types.JDRequirements) (*types.ScoreBreakdown, error)
}

// MatchHandler 匹配评分处理器：JD提取（带缓存）-> 评分 -> 运行记录落库
type MatchHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	jdExtractor  JDExtractor
	engine       ScoreEngine
	modelVersion string
}

// NewMatchHandler 创建匹配评分处理器。
// modelVersion 参与JD缓存键，模型升级后旧缓存自然失效。
func NewMatchHandler(cfg *config.Config, storage *storage.Storage, jdExtractor JDExtractor, engine ScoreEngine, modelVersion string) *MatchHandler {
	return &MatchHandler{
		cfg:          cfg,
		storage:      storage,
		jdExtractor:  jdExtractor,
		engine:       engine,
		modelVersion: modelVersion,
	}
}

// MatchRequest 匹配评分请求
type MatchRequest struct {
	ResumeID string `json:"resume_id"`
	JDText   string `json:"jd_text"`
}

// MatchResponse 匹配评分响应
type MatchResponse struct {
	RunID        string                `json:"run_id"`
	ResumeID     string                `json:"resume_id"`
	JDHash       string                `json:"jd_hash"`
	OverallScore int                   `json:"overall_score"`
	Breakdown    *types.ScoreBreakdown `json:"breakdown"`
}

// HandleMatch 执行一次简历与JD的匹配评分
func (h *MatchHandler) HandleMatch(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	if req == nil || strings.TrimSpace(req.ResumeID) == "" || strings.TrimSpace(req.JDText) == "" {
		return nil, ErrInvalidMatchRequest
	}

	profile, err := h.storage.MySQL.GetResumeProfile(ctx, req.ResumeID)
	if err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			return nil, ErrResumeNotFound
		}
		return nil, fmt.Errorf("查询简历画像失败: %w", err)
	}

	jdHash := hashJD(req.JDText)
	requirements, err := h.resolveJDRequirements(ctx, jdHash, req.JDText)
	if err != nil {
		return nil, err
	}

	breakdown, err := h.engine.Score(ctx, profile, requirements)
	if err != nil {
		return nil, fmt.Errorf("评分失败: %w", err)
	}

	runID, err := h.persistRun(ctx, req, jdHash, requirements, breakdown)
	if err != nil {
		// 评分结果已得出，落库失败不吞掉结果
		logger.Error().Err(err).Str("resume_id", req.ResumeID).Msg("匹配运行记录落库失败")
	}

	return &MatchResponse{
		RunID:        runID,
		ResumeID:     req.ResumeID,
		JDHash:       jdHash,
		OverallScore: breakdown.OverallScore,
		Breakdown:    breakdown,
	}, nil
}

// resolveJDRequirements 先查缓存，未命中时调用LLM提取并回填缓存
func (h *MatchHandler) resolveJDRequirements(ctx context.Context, jdHash, jdText string) (*types.JDRequirements, error) {
	cached, err := h.storage.Redis.GetJDRequirements(ctx, jdHash, h.modelVersion)
	if err == nil && cached != nil {
		logger.Debug().Str("jd_hash", jdHash).Msg("JD要求命中缓存")
		return cached, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Str("jd_hash", jdHash).Msg("查询JD要求缓存失败，回退LLM提取")
	}

	requirements, err := h.jdExtractor.ExtractRequirements(ctx, jdText)
	if err != nil {
		return nil, fmt.Errorf("提取JD要求失败: %w", err)
	}

	if err := h.storage.Redis.SetJDRequirements(ctx, jdHash, h.modelVersion, requirements); err != nil {
		logger.Warn().Err(err).Str("jd_hash", jdHash).Msg("写入JD要求缓存失败")
	}
	return requirements, nil
}

// persistRun 将一次评分运行追加到匹配运行表
func (h *MatchHandler) persistRun(ctx context.Context, req *MatchRequest, jdHash string, requirements *types.JDRequirements, breakdown *types.ScoreBreakdown) (string, error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成运行ID失败: %w", err)
	}
	runID := uuidV7.String()

	requirementsJSON, err := models.ToJSON(requirements)
	if err != nil {
		return runID, fmt.Errorf("序列化JD要求失败: %w", err)
	}
	breakdownJSON, err := models.ToJSON(breakdown)
	if err != nil {
		return runID, fmt.Errorf("序列化评分明细失败: %w", err)
	}

	run := &models.MatchRunRecord{
		RunID:              runID,
		ResumeID:           req.ResumeID,
		JDHash:             jdHash,
		JDText:             req.JDText,
		JDRequirementsJSON: requirementsJSON,
		BreakdownJSON:      breakdownJSON,
		OverallScore:       breakdown.OverallScore,
		ModelVersion:       h.modelVersion,
	}
	if err := h.storage.MySQL.CreateMatchRun(ctx, run); err != nil {
		return runID, err
	}
	return runID, nil
}

// MatchRunResponse 历史匹配运行查询响应
type MatchRunResponse struct {
	RunID        string                `json:"run_id"`
	ResumeID     string                `json:"resume_id"`
	JDHash       string                `json:"jd_hash"`
	OverallScore int                   `json:"overall_score"`
	ModelVersion string                `json:"model_version"`
	CreatedAt    string                `json:"created_at"`
	Breakdown    *types.ScoreBreakdown `json:"breakdown,omitempty"`
}

// HandleGetMatchRun 查询一次历史匹配运行的评分明细
func (h *MatchHandler) HandleGetMatchRun(ctx context.Context, runID string) (*MatchRunResponse, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrRunNotFound
	}

	run, err := h.storage.MySQL.GetMatchRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("查询匹配运行记录失败: %w", err)
	}

	resp := &MatchRunResponse{
		RunID:        run.RunID,
		ResumeID:     run.ResumeID,
		JDHash:       run.JDHash,
		OverallScore: run.OverallScore,
		ModelVersion: run.ModelVersion,
		CreatedAt:    run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if len(run.BreakdownJSON) > 0 {
		var breakdown types.ScoreBreakdown
		if err := json.Unmarshal(run.BreakdownJSON, &breakdown); err != nil {
			logger.Warn().Err(err).Str("run_id", runID).Msg("反序列化评分明细失败")
		} else {
			resp.Breakdown = &breakdown
		}
	}
	return resp, nil
}

// hashJD 计算JD文本的SHA1摘要，首尾空白不参与散列
func hashJD(jdText string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(jdText)))
	return hex.EncodeToString(sum[:])
}
