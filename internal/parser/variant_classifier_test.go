package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMVariantClassifier_MatchVariants(t *testing.T) {
	ctx := context.Background()
	available := []string{".NET 7", "ASP.NET", "Java", "Redis"}

	t.Run("泛指要求命中全部同族变体", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`[".NET 7", "ASP.NET"]`}}
		classifier := NewLLMVariantClassifier(mock, zerolog.Nop())

		matched, err := classifier.MatchVariants(ctx, ".NET", available)
		require.NoError(t, err)
		assert.Equal(t, []string{".NET 7", "ASP.NET"}, matched)
	})

	t.Run("特指版本无精确命中返回空", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`[]`}}
		classifier := NewLLMVariantClassifier(mock, zerolog.Nop())

		matched, err := classifier.MatchVariants(ctx, ".NET 6", available)
		require.NoError(t, err)
		assert.Empty(t, matched)
	})

	t.Run("剔除模型编造的技能名", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`["Java", "Scala"]`}}
		classifier := NewLLMVariantClassifier(mock, zerolog.Nop())

		matched, err := classifier.MatchVariants(ctx, "JVM 语言", available)
		require.NoError(t, err)
		assert.Equal(t, []string{"Java"}, matched, "不在候选列表中的技能应被剔除")
	})

	t.Run("空候选列表不调用LLM", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`[]`}}
		classifier := NewLLMVariantClassifier(mock, zerolog.Nop())

		matched, err := classifier.MatchVariants(ctx, ".NET", nil)
		require.NoError(t, err)
		assert.Empty(t, matched)
		assert.Zero(t, mock.callCount())
	})

	t.Run("调用失败上抛错误由调用方降级", func(t *testing.T) {
		mock := &mockChatModel{err: errors.New("timeout")}
		classifier := NewLLMVariantClassifier(mock, zerolog.Nop())

		_, err := classifier.MatchVariants(ctx, ".NET", available)
		assert.Error(t, err)
	})
}

func TestLLMJDExtractor_ExtractRequirements(t *testing.T) {
	ctx := context.Background()

	t.Run("结构化提取", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{
			"job_title": "高级后端工程师",
			"core_skills": [
				{"name": "Go", "min_years": 3, "importance": "critical"},
				{"name": "MySQL", "min_years": 0}
			],
			"secondary_skills": [{"name": "Kafka", "min_years": 0}],
			"nice_to_have": [{"name": "Kubernetes", "min_years": 0}],
			"keywords": ["Go", "MySQL", "Kafka"],
			"total_years_required": 5
		}`}}
		extractor := NewLLMJDExtractor(mock, zerolog.Nop())

		reqs, err := extractor.ExtractRequirements(ctx, "高级后端工程师，3年以上Go……")
		require.NoError(t, err)
		assert.Equal(t, "高级后端工程师", reqs.JobTitle)
		require.Len(t, reqs.CoreSkills, 2)
		assert.InDelta(t, 3.0, reqs.CoreSkills[0].MinYears, 1e-9)
		assert.Equal(t, "required", string(reqs.CoreSkills[1].Importance), "缺省重要度应补全")
		assert.Equal(t, "preferred", string(reqs.SecondarySkills[0].Importance))
		assert.Equal(t, 5, reqs.TotalYears)
	})

	t.Run("空JD返回错误", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{"{}"}}
		extractor := NewLLMJDExtractor(mock, zerolog.Nop())

		_, err := extractor.ExtractRequirements(ctx, "  ")
		assert.Error(t, err)
		assert.Zero(t, mock.callCount())
	})

	t.Run("空技能名被剔除", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{
			"job_title": "工程师",
			"core_skills": [{"name": "  "}, {"name": "Go"}],
			"total_years_required": -1
		}`}}
		extractor := NewLLMJDExtractor(mock, zerolog.Nop())

		reqs, err := extractor.ExtractRequirements(ctx, "JD文本")
		require.NoError(t, err)
		require.Len(t, reqs.CoreSkills, 1)
		assert.Equal(t, "Go", reqs.CoreSkills[0].Name)
		assert.Zero(t, reqs.TotalYears, "负数年限应归零")
	})
}
