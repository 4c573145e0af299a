package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// LLMVariantClassifier 技能变体分类器：当静态变体表无法判定 JD 要求与
// 候选人技能键的关系时，调用 LLM 做"泛指/特指"判定并给出可匹配的技能键。
type LLMVariantClassifier struct {
	llmModel model.ToolCallingChatModel
	logger   zerolog.Logger
}

// NewLLMVariantClassifier 创建变体分类器
func NewLLMVariantClassifier(llmModel model.ToolCallingChatModel, logger zerolog.Logger) *LLMVariantClassifier {
	return &LLMVariantClassifier{llmModel: llmModel, logger: logger}
}

const variantClassifierPrompt = `你是一位技术栈专家。JD 中要求技能 "%s"，候选人的技能列表如下：

%s

请判断候选人技能列表中哪些项可以满足该 JD 要求，规则如下：
1. 若 JD 要求是**泛指**（不带版本号的技术族名，如 ".NET"、"Java"、"React"），
   则列表中属于该技术族的所有变体（含各版本号、各子框架）都算满足。
2. 若 JD 要求是**特指**（带具体版本号，如 ".NET 6"、"Java 8"），
   则只有完全相同版本的技能才算满足；同族的其他版本或子框架不算。
3. 不属于该技术族的技能一律不算。

只输出一个 JSON 字符串数组，元素必须是候选人技能列表中的原文，没有满足项时输出 []。
禁止输出任何额外文本或 Markdown 标记。`

// MatchVariants 返回 available 中能满足要求 requirementName 的技能键子集。
// 返回结果已与 available 求交集并保持 available 的原始顺序。
func (c *LLMVariantClassifier) MatchVariants(ctx context.Context, requirementName string, available []string) ([]string, error) {
	if c.llmModel == nil {
		return nil, fmt.Errorf("LLMVariantClassifier: llmModel is not initialized")
	}
	if len(available) == 0 {
		return nil, nil
	}

	skillList := "- " + strings.Join(available, "\n- ")
	userMsg := einoschema.UserMessage(fmt.Sprintf(variantClassifierPrompt, requirementName, skillList))
	systemMsg := einoschema.SystemMessage("你是一位技术栈专家，只输出合法 JSON。")

	response, err := c.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("LLMVariantClassifier: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLMVariantClassifier: LLM returned empty response")
	}

	jsonStr := extractJSONArray(cleanLLMContent(response.Content))
	if jsonStr == "" {
		return nil, fmt.Errorf("LLMVariantClassifier: no JSON array found in response")
	}

	var matched []string
	if err := json.Unmarshal([]byte(jsonStr), &matched); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &matched); jsonErr != nil {
			return nil, fmt.Errorf("LLMVariantClassifier: failed to unmarshal JSON array: %w", err)
		}
	}

	// 与候选列表求交集，剔除模型编造的技能名
	wanted := make(map[string]struct{}, len(matched))
	for _, m := range matched {
		wanted[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	var result []string
	for _, key := range available {
		if _, ok := wanted[strings.ToLower(key)]; ok {
			result = append(result, key)
		}
	}
	return result, nil
}
