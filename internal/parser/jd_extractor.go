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

// LLMJDExtractor 从 JD 原文中结构化提取技能要求
type LLMJDExtractor struct {
	llmModel model.ToolCallingChatModel
	logger   zerolog.Logger
}

// NewLLMJDExtractor 创建 JD 要求提取器
func NewLLMJDExtractor(llmModel model.ToolCallingChatModel, logger zerolog.Logger) *LLMJDExtractor {
	return &LLMJDExtractor{llmModel: llmModel, logger: logger}
}

const jdExtractionPrompt = `你是一位资深技术招聘专家。请从下面的【岗位描述】中提取结构化的技能要求，严格按指定 JSON 格式输出。

【岗位描述】:
"""
%s
"""

**输出格式（只输出一个 JSON 对象，禁止任何额外文本或 Markdown 标记）：**
{
  "job_title": "岗位名称",
  "core_skills": [
    {"name": "技能名", "min_years": 数字（未声明年限填 0）, "importance": "critical" | "required"}
  ],
  "secondary_skills": [
    {"name": "技能名", "min_years": 0, "importance": "preferred"}
  ],
  "nice_to_have": [
    {"name": "技能名", "min_years": 0, "importance": "preferred"}
  ],
  "keywords": ["岗位原文中的关键技术词"],
  "total_years_required": 数字（岗位要求的总工作年限，未声明填 0）
}

**提取规则：**
- core_skills：岗位明确要求"必须/精通/熟练掌握"的技能，保留原文写法（含版本号）。
- secondary_skills：岗位要求"熟悉/了解"的技能。
- nice_to_have：加分项。
- 技能名保持 JD 原文写法，不要自行归一化或翻译。
- min_years 只在 JD 明确写出年限时填写（如"3年以上 Java"填 3）。
- 所有字段名和字符串值必须使用双引号。`

// ExtractRequirements 提取 JD 的结构化要求
func (e *LLMJDExtractor) ExtractRequirements(ctx context.Context, jdText string) (*types.JDRequirements, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMJDExtractor: llmModel is not initialized")
	}
	if strings.TrimSpace(jdText) == "" {
		return nil, fmt.Errorf("LLMJDExtractor: empty job description")
	}

	userMsg := einoschema.UserMessage(fmt.Sprintf(jdExtractionPrompt, jdText))
	systemMsg := einoschema.SystemMessage("你是一位资深技术招聘专家，只输出合法 JSON。")

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("LLMJDExtractor: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMJDExtractor: LLM returned empty response")
	}

	jsonStr := extractJSONObject(cleanLLMContent(response.Content))
	if jsonStr == "" {
		return nil, fmt.Errorf("LLMJDExtractor: no JSON object found in response")
	}

	var requirements types.JDRequirements
	if err := json.Unmarshal([]byte(jsonStr), &requirements); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &requirements); jsonErr != nil {
			return nil, fmt.Errorf("LLMJDExtractor: failed to unmarshal JSON after sanitization: %w", err)
		}
	}

	normalizeRequirements(&requirements)
	return &requirements, nil
}

// normalizeRequirements 清洗提取结果：去空技能名、补默认重要度、年限下限归零
func normalizeRequirements(r *types.JDRequirements) {
	clean := func(reqs []types.JDRequirement, fallback types.Importance) []types.JDRequirement {
		out := reqs[:0]
		for _, req := range reqs {
			req.Name = strings.TrimSpace(req.Name)
			if req.Name == "" {
				continue
			}
			if req.MinYears < 0 {
				req.MinYears = 0
			}
			if req.Importance == "" {
				req.Importance = fallback
			}
			out = append(out, req)
		}
		return out
	}
	r.CoreSkills = clean(r.CoreSkills, types.ImportanceRequired)
	r.SecondarySkills = clean(r.SecondarySkills, types.ImportancePreferred)
	r.NiceToHave = clean(r.NiceToHave, types.ImportancePreferred)
	if r.TotalYears < 0 {
		r.TotalYears = 0
	}
}
