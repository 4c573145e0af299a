package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"resume-match-go/internal/skill"
	"resume-match-go/internal/types"
)

// DefaultSkillBatchSize 每次 LLM 调用处理的技能数上限
const DefaultSkillBatchSize = 10

// LLMSkillExperienceExtractor 分批从简历全文中提取"技能 -> 使用该技能的工作经历"。
// 每批失败只记录到报告中并跳过，不影响其余批次。
type LLMSkillExperienceExtractor struct {
	llmModel   model.ToolCallingChatModel
	aggregator *skill.Aggregator
	batchSize  int
	logger     zerolog.Logger
}

// SkillExtractorOption 技能经验提取器的配置选项
type SkillExtractorOption func(*LLMSkillExperienceExtractor)

// WithSkillBatchSize 设置每批技能数量
func WithSkillBatchSize(size int) SkillExtractorOption {
	return func(e *LLMSkillExperienceExtractor) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithSkillExtractorLogger 设置日志记录器
func WithSkillExtractorLogger(logger zerolog.Logger) SkillExtractorOption {
	return func(e *LLMSkillExperienceExtractor) {
		e.logger = logger
	}
}

// NewLLMSkillExperienceExtractor 创建技能经验提取器
func NewLLMSkillExperienceExtractor(llmModel model.ToolCallingChatModel, aggregator *skill.Aggregator, options ...SkillExtractorOption) *LLMSkillExperienceExtractor {
	if aggregator == nil {
		aggregator = skill.NewAggregator(nil)
	}
	extractor := &LLMSkillExperienceExtractor{
		llmModel:   llmModel,
		aggregator: aggregator,
		batchSize:  DefaultSkillBatchSize,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(extractor)
	}
	return extractor
}

const skillExperiencePrompt = `你是一位简历信息抽取专家。请根据【简历全文】，逐一分析【待分析技能列表】中的每项技能在候选人的哪些工作经历中被实际使用过，并严格按指定 JSON 格式输出。

【待分析技能列表】:
%s

【简历全文】:
"""
%s
"""

**输出格式（只输出一个 JSON 对象，禁止任何额外文本或 Markdown 标记）：**
{
  "技能名1": {
    "jobs_using_skill": [
      {
        "employer": "雇主名称（无法判断填空字符串）",
        "start_period": "起始时间，如 2021-03（无法判断填空字符串）",
        "end_period": "结束时间，如 2023-06 或 present",
        "duration_months": 数字或 null（该段经历中使用此技能的月数，无法判断填 null）,
        "evidence": "简历中支持该判断的原文摘录（不超过80字）"
      }
    ]
  },
  "技能名2": { "jobs_using_skill": [] }
}

**要求：**
- 输出对象的键必须与【待分析技能列表】中的技能名完全一致，每项技能都必须出现。
- 只统计简历中有依据的使用记录，不要臆测；该技能未被使用时 jobs_using_skill 为空数组。
- duration_months 按该段工作经历的起止时间估算，跨度不明时填 null。
- 所有字段名和字符串值必须使用双引号。`

// batchSkillEntry 单个技能的提取结果
type batchSkillEntry struct {
	JobsUsingSkill []types.JobEvidence `json:"jobs_using_skill"`
}

// Extract 对技能列表分批提取使用经历并聚合。
// 技能列表为空时不发起任何 LLM 调用，返回空 map 和零值报告。
func (e *LLMSkillExperienceExtractor) Extract(ctx context.Context, resumeText string, skills []string) (types.SkillExperienceMap, *types.BatchReport, error) {
	if e.llmModel == nil {
		return nil, nil, fmt.Errorf("LLMSkillExperienceExtractor: llmModel is not initialized")
	}

	report := &types.BatchReport{}
	result := make(types.SkillExperienceMap)

	cleaned := make([]string, 0, len(skills))
	for _, s := range skills {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return result, report, nil
	}

	for batchIdx, start := 0, 0; start < len(cleaned); batchIdx, start = batchIdx+1, start+e.batchSize {
		end := start + e.batchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}
		batch := cleaned[start:end]

		if err := ctx.Err(); err != nil {
			return result, report, fmt.Errorf("skill extraction canceled at batch %d: %w", batchIdx, err)
		}

		batchMap, err := e.extractBatch(ctx, resumeText, batch)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, types.BatchError{
				BatchIndex: batchIdx,
				Skills:     append([]string(nil), batch...),
				Message:    err.Error(),
			})
			e.logger.Warn().Err(err).Int("batch", batchIdx).Strs("skills", batch).
				Msg("技能经验批次提取失败，跳过该批次")
			continue
		}

		e.aggregator.MergeBatch(result, batchMap)
		report.Succeeded++
	}

	e.aggregator.Finalize(result)
	return result, report, nil
}

// extractBatch 单批提取：一次 LLM 调用覆盖 batch 中的全部技能
func (e *LLMSkillExperienceExtractor) extractBatch(ctx context.Context, resumeText string, batch []string) (map[string][]types.JobEvidence, error) {
	skillList := "- " + strings.Join(batch, "\n- ")
	userMsg := einoschema.UserMessage(fmt.Sprintf(skillExperiencePrompt, skillList, resumeText))
	systemMsg := einoschema.SystemMessage("你是一位简历信息抽取专家，只输出合法 JSON。")

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLM returned empty response")
	}

	// 先截取首个 { 到末个 } 的区间再做拼接修复，避免 "}{" 形式的输出被
	// 括号配对提取截断成半个结果
	content := cleanLLMContent(response.Content)
	if s := strings.Index(content, "{"); s != -1 {
		if last := strings.LastIndex(content, "}"); last > s {
			content = content[s : last+1]
		}
	}
	jsonStr := extractJSONObject(repairConcatenatedObjects(content))
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed map[string]batchSkillEntry
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &parsed); jsonErr != nil {
			return nil, fmt.Errorf("failed to unmarshal batch JSON after sanitization: %w", err)
		}
	}

	batchMap := make(map[string][]types.JobEvidence, len(parsed))
	for name, entry := range parsed {
		batchMap[name] = entry.JobsUsingSkill
	}
	return batchMap, nil
}
