package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"resume-match-go/internal/skill"
	"resume-match-go/internal/types"
)

// VariantClassifier LLM 变体分类接口，静态表无法判定时兜底
type VariantClassifier interface {
	MatchVariants(ctx context.Context, requirementName string, available []string) ([]string, error)
}

// RequirementMatcher 将 JD 要求映射到候选人技能经验记录。
// 匹配顺序：精确命中 -> 大小写不敏感命中 -> 静态变体表（仅泛指写法）->
// LLM 泛指/特指分类（仅静态表不认识的名字）。静态表判定为特指的版本写法
// 只接受精确命中；分类失败视为无匹配，不上抛错误。
type RequirementMatcher struct {
	normalizer *skill.Normalizer
	classifier VariantClassifier
	logger     zerolog.Logger
}

// NewRequirementMatcher 创建要求匹配器。classifier 可为 nil，
// 此时静态表未命中的要求直接判为无匹配。
func NewRequirementMatcher(normalizer *skill.Normalizer, classifier VariantClassifier, logger zerolog.Logger) *RequirementMatcher {
	if normalizer == nil {
		normalizer = skill.NewNormalizer()
	}
	return &RequirementMatcher{
		normalizer: normalizer,
		classifier: classifier,
		logger:     logger,
	}
}

// Match 返回 JD 要求在候选人技能经验中的命中结果。
// 无命中时返回零值 MatchResult，error 恒为 nil 保留给将来扩展。
func (m *RequirementMatcher) Match(ctx context.Context, req types.JDRequirement, experience types.SkillExperienceMap) (types.MatchResult, error) {
	if len(experience) == 0 || strings.TrimSpace(req.Name) == "" {
		return types.MatchResult{}, nil
	}

	// 1. 精确命中
	if record, ok := experience[req.Name]; ok {
		return skill.MergeRecords([]*types.SkillExperienceRecord{record}), nil
	}

	// 2. 大小写不敏感命中
	for key, record := range experience {
		if strings.EqualFold(key, req.Name) {
			return skill.MergeRecords([]*types.SkillExperienceRecord{record}), nil
		}
	}

	// 3. 静态变体表：仅对泛指写法展开整个技能族
	if m.normalizer.Generic(req.Name) {
		family := m.normalizer.Normalize(req.Name)
		var records []*types.SkillExperienceRecord
		for key, record := range experience {
			if strings.EqualFold(m.normalizer.Normalize(key), family) {
				records = append(records, record)
			}
		}
		if len(records) > 0 {
			return mergeOrdered(records, experience), nil
		}
	}

	// 4. 静态表已判定为特指写法（如 ".NET 6"）：只允许前两步的精确命中，
	// 不再请求 LLM 分类器，防止其把同族的其他版本拉进来
	if m.normalizer.Known(req.Name) && !m.normalizer.Generic(req.Name) {
		return types.MatchResult{}, nil
	}

	// 5. LLM 泛指/特指分类兜底，仅覆盖静态表完全不认识的名字
	if m.classifier == nil {
		return types.MatchResult{}, nil
	}
	available := sortedKeys(experience)
	matched, err := m.classifier.MatchVariants(ctx, req.Name, available)
	if err != nil {
		// 分类失败按无匹配处理，评分侧自然降级
		m.logger.Warn().Err(err).Str("requirement", req.Name).
			Msg("变体分类失败，按无匹配处理")
		return types.MatchResult{}, nil
	}
	if len(matched) == 0 {
		return types.MatchResult{}, nil
	}
	records := make([]*types.SkillExperienceRecord, 0, len(matched))
	for _, key := range matched {
		if record, ok := experience[key]; ok {
			records = append(records, record)
		}
	}
	return skill.MergeRecords(records), nil
}

// mergeOrdered 按键名有序合并，保证同一输入的输出稳定
func mergeOrdered(records []*types.SkillExperienceRecord, experience types.SkillExperienceMap) types.MatchResult {
	ordered := make([]*types.SkillExperienceRecord, 0, len(records))
	for _, key := range sortedKeys(experience) {
		for _, record := range records {
			if record.SkillName == key {
				ordered = append(ordered, record)
				break
			}
		}
	}
	return skill.MergeRecords(ordered)
}

func sortedKeys(m types.SkillExperienceMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
