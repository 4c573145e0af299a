package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-match-go/internal/types"
)

func months(n int) *int { return &n }

func TestAggregator_MergeBatch(t *testing.T) {
	agg := NewAggregator(nil)

	t.Run("新技能整批写入", func(t *testing.T) {
		m := agg.MergeBatch(nil, map[string][]types.JobEvidence{
			"Java": {
				{Employer: "字节", DurationMonths: months(24)},
				{Employer: "阿里", DurationMonths: months(12)},
			},
		})
		require.Contains(t, m, "Java")
		assert.Len(t, m["Java"].Jobs, 2)
	})

	t.Run("同族变体合并到同一记录", func(t *testing.T) {
		m := agg.MergeBatch(nil, map[string][]types.JobEvidence{
			".NET Core": {{Employer: "A公司", DurationMonths: months(12)}},
		})
		m = agg.MergeBatch(m, map[string][]types.JobEvidence{
			"asp.net": {{Employer: "B公司", DurationMonths: months(6)}},
		})
		require.Contains(t, m, ".NET", "变体应归并到族名键")
		assert.Len(t, m, 1)
		assert.Len(t, m[".NET"].Jobs, 2)
		assert.Equal(t, ".NET Core", m[".NET"].Jobs[0].SourceSkill, "应记录来源技能名")
	})

	t.Run("同雇主去重首见保留", func(t *testing.T) {
		m := agg.MergeBatch(nil, map[string][]types.JobEvidence{
			"Go": {{Employer: "腾讯", DurationMonths: months(24), Evidence: "第一条"}},
		})
		m = agg.MergeBatch(m, map[string][]types.JobEvidence{
			"Go": {
				{Employer: " 腾讯 ", DurationMonths: months(36), Evidence: "重复雇主"},
				{Employer: "美团", DurationMonths: months(6)},
			},
		})
		require.Len(t, m["Go"].Jobs, 2)
		assert.Equal(t, "第一条", m["Go"].Jobs[0].Evidence, "首见条目应保留")
		assert.Equal(t, "美团", m["Go"].Jobs[1].Employer)
	})

	t.Run("空雇主不去重", func(t *testing.T) {
		batch := map[string][]types.JobEvidence{
			"Python": {{Employer: "", DurationMonths: months(6)}},
		}
		m := agg.MergeBatch(nil, batch)
		m = agg.MergeBatch(m, batch)
		// 已知的非幂等行为：空雇主条目每次合并都会追加
		assert.Len(t, m["Python"].Jobs, 2)
	})

	t.Run("有雇主的批次重复合并幂等", func(t *testing.T) {
		batch := map[string][]types.JobEvidence{
			"Redis": {{Employer: "京东", DurationMonths: months(18)}},
		}
		m := agg.MergeBatch(nil, batch)
		m = agg.MergeBatch(m, batch)
		assert.Len(t, m["Redis"].Jobs, 1, "同雇主批次重复合并不应产生新条目")
	})
}

func TestAggregator_Finalize(t *testing.T) {
	agg := NewAggregator(nil)
	m := types.SkillExperienceMap{
		"Java": &types.SkillExperienceRecord{
			SkillName: "Java",
			Jobs: []types.JobEvidence{
				{Employer: "A", DurationMonths: months(24)},
				{Employer: "B", DurationMonths: nil}, // 时长未知，跳过
				{Employer: "C", DurationMonths: months(12)},
			},
		},
	}
	agg.Finalize(m)
	assert.Equal(t, 36, m["Java"].TotalMonths)
	assert.InDelta(t, 3.0, m["Java"].TotalYears(), 1e-9)
}

func TestMergeRecords(t *testing.T) {
	t.Run("跨记录雇主去重并求和", func(t *testing.T) {
		result := MergeRecords([]*types.SkillExperienceRecord{
			{
				SkillName: ".NET 7",
				Jobs: []types.JobEvidence{
					{Employer: "A公司", DurationMonths: months(24)},
					{Employer: "B公司", DurationMonths: months(12)},
				},
			},
			{
				SkillName: "ASP.NET",
				Jobs: []types.JobEvidence{
					{Employer: "a公司", DurationMonths: months(36), Evidence: "重复雇主应丢弃"},
					{Employer: "C公司", DurationMonths: nil},
				},
			},
		})
		assert.Equal(t, []string{".NET 7", "ASP.NET"}, result.MatchedSkills)
		assert.Len(t, result.ContributingJobs, 3)
		assert.InDelta(t, 3.0, result.TotalYears, 1e-9, "24+12 个月应折算为 3.0 年")
	})

	t.Run("空输入", func(t *testing.T) {
		result := MergeRecords(nil)
		assert.Empty(t, result.MatchedSkills)
		assert.Zero(t, result.TotalYears)
	})

	t.Run("月数折算保留一位小数", func(t *testing.T) {
		result := MergeRecords([]*types.SkillExperienceRecord{
			{SkillName: "Go", Jobs: []types.JobEvidence{{Employer: "X", DurationMonths: months(38)}}},
		})
		assert.InDelta(t, 3.2, result.TotalYears, 1e-9, "38 个月应折算为 3.2 年")
	})
}
