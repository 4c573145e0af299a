package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResume = `张伟，后端工程师。
A公司 2020.01-2022.12：使用 Java 和 Spring Boot 开发订单系统。
B公司 2023.01-至今：使用 Go 开发网关服务。`

func TestLLMSkillExperienceExtractor_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("空技能列表不调用LLM", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{"{}"}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil)

		result, report, err := extractor.Extract(ctx, sampleResume, nil)
		require.NoError(t, err)
		assert.Empty(t, result)
		assert.Zero(t, report.Succeeded)
		assert.Zero(t, mock.callCount(), "空技能列表不应触发LLM调用")
	})

	t.Run("单批提取并聚合", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{
			"Java": {"jobs_using_skill": [
				{"employer": "A公司", "start_period": "2020-01", "end_period": "2022-12", "duration_months": 36, "evidence": "开发订单系统"}
			]},
			"Go": {"jobs_using_skill": [
				{"employer": "B公司", "start_period": "2023-01", "end_period": "present", "duration_months": 20, "evidence": "开发网关服务"}
			]}
		}`}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil)

		result, report, err := extractor.Extract(ctx, sampleResume, []string{"Java", "Go"})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Succeeded)
		require.Contains(t, result, "Java")
		require.Contains(t, result, "Go")
		assert.Equal(t, 36, result["Java"].TotalMonths, "Finalize后应算出累计月数")
		assert.InDelta(t, 3.0, result["Java"].TotalYears(), 1e-9)
	})

	t.Run("按批次大小分批", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{
			`{"Java": {"jobs_using_skill": []}, "Go": {"jobs_using_skill": []}}`,
			`{"Redis": {"jobs_using_skill": []}}`,
		}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil, WithSkillBatchSize(2))

		_, report, err := extractor.Extract(ctx, sampleResume, []string{"Java", "Go", "Redis"})
		require.NoError(t, err)
		assert.Equal(t, 2, mock.callCount(), "3项技能按批次2应调用两次")
		assert.Equal(t, 2, report.Succeeded)
	})

	t.Run("拼接对象修复", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{
			`{"Java": {"jobs_using_skill": [{"employer": "A公司", "duration_months": 12, "evidence": "x"}]}}{"Go": {"jobs_using_skill": []}}`,
		}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil)

		result, report, err := extractor.Extract(ctx, sampleResume, []string{"Java", "Go"})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Succeeded, "}{形式的拼接输出应被修复")
		assert.Contains(t, result, "Java")
	})

	t.Run("单批失败只跳过该批", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{
			"完全不是JSON",
			`{"Redis": {"jobs_using_skill": [{"employer": "C公司", "duration_months": 6, "evidence": "y"}]}}`,
		}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil, WithSkillBatchSize(2))

		result, report, err := extractor.Extract(ctx, sampleResume, []string{"Java", "Go", "Redis"})
		require.NoError(t, err, "批次失败不应上抛错误")
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 1, report.Succeeded)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, []string{"Java", "Go"}, report.Errors[0].Skills)
		assert.Contains(t, result, "Redis")
		assert.NotContains(t, result, "Java")
	})

	t.Run("LLM持续失败产生完整失败报告", func(t *testing.T) {
		mock := &mockChatModel{err: errors.New("connection refused")}
		extractor := NewLLMSkillExperienceExtractor(mock, nil, WithSkillBatchSize(1))

		result, report, err := extractor.Extract(ctx, sampleResume, []string{"Java", "Go"})
		require.NoError(t, err)
		assert.Empty(t, result)
		assert.Equal(t, 2, report.Failed)
	})

	t.Run("同族变体跨批合并", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{
			`{".NET Core": {"jobs_using_skill": [{"employer": "A公司", "duration_months": 12, "evidence": "x"}]}}`,
			`{"asp.net": {"jobs_using_skill": [{"employer": "B公司", "duration_months": 6, "evidence": "y"}]}}`,
		}}
		extractor := NewLLMSkillExperienceExtractor(mock, nil, WithSkillBatchSize(1))

		result, _, err := extractor.Extract(ctx, sampleResume, []string{".NET Core", "asp.net"})
		require.NoError(t, err)
		require.Contains(t, result, ".NET", "同族变体应合并到族名键")
		assert.Len(t, result[".NET"].Jobs, 2)
		assert.Equal(t, 18, result[".NET"].TotalMonths)
	})
}
