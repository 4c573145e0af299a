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

// LLMProfileExtractor 从简历全文中提取基础画像：身份信息、职位、
// 总工作年限和扁平技能列表。技能使用经历由 LLMSkillExperienceExtractor 另行分批提取。
type LLMProfileExtractor struct {
	llmModel model.ToolCallingChatModel
	logger   zerolog.Logger
}

// NewLLMProfileExtractor 创建画像提取器
func NewLLMProfileExtractor(llmModel model.ToolCallingChatModel, logger zerolog.Logger) *LLMProfileExtractor {
	return &LLMProfileExtractor{llmModel: llmModel, logger: logger}
}

const profileExtractionPrompt = `你是一位简历信息抽取专家。请从下面的【简历全文】中提取候选人基础信息，严格按指定 JSON 格式输出。

【简历全文】:
"""
%s
"""

**输出格式（只输出一个 JSON 对象，禁止任何额外文本或 Markdown 标记）：**
{
  "name": "姓名（无法判断填空字符串）",
  "email": "邮箱",
  "phone": "电话",
  "title": "当前或最近的职位名称",
  "years_experience": 数字（总工作年限，取整，无法判断填 0）,
  "skills": ["技能1", "技能2"]
}

**要求：**
- skills 应覆盖简历中出现的全部技术技能，保留原文写法（含版本号），去除重复。
- 所有字段名和字符串值必须使用双引号。`

// profilePayload LLM 画像提取的中间结构
type profilePayload struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Title           string   `json:"title"`
	YearsExperience int      `json:"years_experience"`
	Skills          []string `json:"skills"`
}

// ExtractProfile 提取简历基础画像（不含技能使用经历）
func (e *LLMProfileExtractor) ExtractProfile(ctx context.Context, resumeText string) (*types.ResumeProfile, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMProfileExtractor: llmModel is not initialized")
	}
	if strings.TrimSpace(resumeText) == "" {
		return nil, fmt.Errorf("LLMProfileExtractor: empty resume text")
	}

	userMsg := einoschema.UserMessage(fmt.Sprintf(profileExtractionPrompt, resumeText))
	systemMsg := einoschema.SystemMessage("你是一位简历信息抽取专家，只输出合法 JSON。")

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("LLMProfileExtractor: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMProfileExtractor: LLM returned empty response")
	}

	jsonStr := extractJSONObject(cleanLLMContent(response.Content))
	if jsonStr == "" {
		return nil, fmt.Errorf("LLMProfileExtractor: no JSON object found in response")
	}

	var payload profilePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &payload); jsonErr != nil {
			return nil, fmt.Errorf("LLMProfileExtractor: failed to unmarshal JSON after sanitization: %w", err)
		}
	}

	if payload.YearsExperience < 0 {
		payload.YearsExperience = 0
	}
	seen := make(map[string]struct{}, len(payload.Skills))
	skills := make([]string, 0, len(payload.Skills))
	for _, s := range payload.Skills {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		skills = append(skills, trimmed)
	}

	return &types.ResumeProfile{
		Name:            strings.TrimSpace(payload.Name),
		Email:           strings.TrimSpace(payload.Email),
		Phone:           strings.TrimSpace(payload.Phone),
		Title:           strings.TrimSpace(payload.Title),
		YearsExperience: payload.YearsExperience,
		Skills:          skills,
	}, nil
}
