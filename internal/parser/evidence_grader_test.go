package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-match-go/internal/types"
)

func TestLLMEvidenceGrader_Grade(t *testing.T) {
	ctx := context.Background()
	req := types.JDRequirement{Name: "Go", MinYears: 3}

	t.Run("正常解析", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{
			"has_skill": true,
			"evidence_strength": "strong",
			"years_supported": 4,
			"meets_years": true,
			"why": "主导了Go微服务重构",
			"quote": "负责订单系统Go微服务重构",
			"confidence": 0.9
		}`}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, req, "负责订单系统Go微服务重构，日均千万请求")
		require.NoError(t, err)
		assert.True(t, grade.HasSkill)
		assert.Equal(t, types.StrengthStrong, grade.Strength)
		assert.True(t, grade.MeetsYears)
		assert.InDelta(t, 0.9, grade.Confidence, 1e-9)
	})

	t.Run("代码围栏包裹的JSON", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{"```json\n{\"has_skill\": true, \"evidence_strength\": \"moderate\", \"years_supported\": 1, \"meets_years\": false, \"why\": \"有使用记录\", \"quote\": \"使用Go开发\", \"confidence\": 0.7}\n```"}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, req, "使用Go开发内部工具")
		require.NoError(t, err)
		assert.Equal(t, types.StrengthModerate, grade.Strength)
	})

	t.Run("无法解析的响应降级为无证据", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{"抱歉，我无法判断。"}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, req, "一段证据")
		require.NoError(t, err, "解析失败不应上抛错误")
		assert.Equal(t, types.StrengthNone, grade.Strength)
		assert.False(t, grade.HasSkill)
		assert.Zero(t, grade.Confidence)
	})

	t.Run("LLM调用失败返回错误", func(t *testing.T) {
		mock := &mockChatModel{err: errors.New("rate limited")}
		grader := NewLLMEvidenceGrader(mock)

		_, err := grader.Grade(ctx, req, "一段证据")
		assert.Error(t, err)
	})

	t.Run("空证据不调用LLM", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{"{}"}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, req, "   ")
		require.NoError(t, err)
		assert.Equal(t, types.StrengthNone, grade.Strength)
		assert.Zero(t, mock.callCount(), "空证据不应触发LLM调用")
	})

	t.Run("未知强度值归为none", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{"has_skill": true, "evidence_strength": "VERY_STRONG", "confidence": 1.5}`}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, req, "证据")
		require.NoError(t, err)
		assert.Equal(t, types.StrengthNone, grade.Strength)
		assert.InDelta(t, 1.0, grade.Confidence, 1e-9, "置信度应截断到1.0")
	})

	t.Run("无年限要求时meets_years跟随has_skill", func(t *testing.T) {
		mock := &mockChatModel{responses: []string{`{"has_skill": true, "evidence_strength": "weak", "meets_years": false, "confidence": 0.6}`}}
		grader := NewLLMEvidenceGrader(mock)

		grade, err := grader.Grade(ctx, types.JDRequirement{Name: "Redis"}, "使用过Redis")
		require.NoError(t, err)
		assert.True(t, grade.MeetsYears)
	})
}
