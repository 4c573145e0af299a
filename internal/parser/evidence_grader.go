package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"resume-match-go/internal/types"
)

// LLMEvidenceGrader 证据评估器：针对单条 JD 要求与单段简历证据文本，
// 调用 LLM 判定证据强度与年限支撑。
type LLMEvidenceGrader struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	logger         zerolog.Logger
}

// EvidenceGraderOption 证据评估器的配置选项
type EvidenceGraderOption func(*LLMEvidenceGrader)

// WithGraderPromptTemplate 设置自定义提示词模板
func WithGraderPromptTemplate(template string) EvidenceGraderOption {
	return func(g *LLMEvidenceGrader) {
		g.promptTemplate = template
	}
}

// WithGraderLogger 设置日志记录器
func WithGraderLogger(logger zerolog.Logger) EvidenceGraderOption {
	return func(g *LLMEvidenceGrader) {
		g.logger = logger
	}
}

// NewLLMEvidenceGrader 创建证据评估器
func NewLLMEvidenceGrader(llmModel model.ToolCallingChatModel, options ...EvidenceGraderOption) *LLMEvidenceGrader {
	grader := &LLMEvidenceGrader{
		llmModel: llmModel,
		logger:   zerolog.Nop(),
	}
	grader.promptTemplate = defaultGraderPrompt
	for _, opt := range options {
		opt(grader)
	}
	return grader
}

const defaultGraderPrompt = `你是一位严谨的技术招聘评估专家。请根据下面的【岗位技能要求】和【简历证据片段】，判断该片段能否证明候选人具备所要求的技能，并严格按指定 JSON 格式输出。

【岗位技能要求】:
技能: %s
最低年限要求: %s

【简历证据片段】:
"""
%s
"""

**输出格式（只输出一个 JSON 对象，禁止任何额外文本）：**
{
  "has_skill": true/false,
  "evidence_strength": "strong" | "moderate" | "weak" | "none",
  "years_supported": 数字（该片段能支撑的使用年限，无法判断填 0）,
  "meets_years": true/false（能否支撑最低年限要求）,
  "why": "一句话说明判定理由",
  "quote": "片段中最关键的原文引用（不超过60字）",
  "confidence": 0.0 到 1.0 之间的数字
}

**判定标准：**
- strong: 候选人明确主导或深度使用该技能完成过实际工作，有职责或成果描述。
- moderate: 有明确使用记录，但深度或职责不清晰。
- weak: 仅在技能列表中罗列，或只是间接提及。
- none: 片段与该技能无关。
- 所有字段名和字符串值必须使用双引号；字符串内部的双引号必须用反斜杠转义。`

// Grade 评估一段证据文本。LLM 调用失败返回 error 由调用方降级处理；
// 响应解析失败不视为错误，直接降级为"无证据"判定（fail-soft）。
func (g *LLMEvidenceGrader) Grade(ctx context.Context, req types.JDRequirement, excerpt string) (*types.EvidenceGrade, error) {
	if g.llmModel == nil {
		return nil, fmt.Errorf("LLMEvidenceGrader: llmModel is not initialized")
	}
	if strings.TrimSpace(excerpt) == "" {
		return types.NoEvidenceGrade("empty evidence excerpt"), nil
	}

	yearsDesc := "无"
	if req.MinYears > 0 {
		yearsDesc = fmt.Sprintf("%.1f 年", req.MinYears)
	}
	userMsg := einoschema.UserMessage(fmt.Sprintf(g.promptTemplate, req.Name, yearsDesc, excerpt))
	systemMsg := einoschema.SystemMessage("你是一位严谨的技术招聘评估专家，只输出合法 JSON。")

	response, err := g.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("LLMEvidenceGrader: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMEvidenceGrader: LLM returned empty response")
	}

	grade := g.parseGrade(response.Content)
	g.normalizeGrade(grade, req)
	return grade, nil
}

// parseGrade 解析LLM响应；解析失败降级为无证据判定
func (g *LLMEvidenceGrader) parseGrade(content string) *types.EvidenceGrade {
	jsonStr := extractJSONObject(cleanLLMContent(content))
	if jsonStr == "" {
		g.logger.Warn().Str("content_prefix", prefixForLog(content, 200)).
			Msg("证据评估响应中未找到JSON对象，降级为无证据")
		return types.NoEvidenceGrade("unparseable grader response")
	}

	var grade types.EvidenceGrade
	if err := json.Unmarshal([]byte(jsonStr), &grade); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &grade); jsonErr != nil {
			g.logger.Warn().Err(err).AnErr("sanitize_err", jsonErr).
				Msg("证据评估JSON解析失败（含修复重试），降级为无证据")
			return types.NoEvidenceGrade("unparseable grader response")
		}
	}
	return &grade
}

// normalizeGrade 约束评估结果：未知强度归为 none，置信度截断到 [0,1]，
// has_skill 为 false 时强度强制为 none。
func (g *LLMEvidenceGrader) normalizeGrade(grade *types.EvidenceGrade, req types.JDRequirement) {
	grade.Strength = types.EvidenceStrength(strings.ToLower(string(grade.Strength)))
	if !grade.Strength.Valid() {
		grade.Strength = types.StrengthNone
	}
	if !grade.HasSkill {
		grade.Strength = types.StrengthNone
	}
	if grade.Confidence < 0 {
		grade.Confidence = 0
	} else if grade.Confidence > 1 {
		grade.Confidence = 1
	}
	if grade.YearsSupported < 0 {
		grade.YearsSupported = 0
	}
	if req.MinYears <= 0 {
		grade.MeetsYears = grade.HasSkill
	}
}

func prefixForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
