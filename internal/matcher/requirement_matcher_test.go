package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-match-go/internal/types"
)

type stubClassifier struct {
	matched []string
	err     error
	calls   int
}

func (s *stubClassifier) MatchVariants(ctx context.Context, requirementName string, available []string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.matched, nil
}

func months(n int) *int { return &n }

func experienceFixture() types.SkillExperienceMap {
	return types.SkillExperienceMap{
		".NET 7": {
			SkillName: ".NET 7",
			Jobs:      []types.JobEvidence{{Employer: "A公司", DurationMonths: months(24)}},
		},
		"ASP.NET": {
			SkillName: "ASP.NET",
			Jobs:      []types.JobEvidence{{Employer: "B公司", DurationMonths: months(12)}},
		},
		"Java": {
			SkillName: "Java",
			Jobs:      []types.JobEvidence{{Employer: "C公司", DurationMonths: months(36)}},
		},
	}
}

func TestRequirementMatcher_Match(t *testing.T) {
	ctx := context.Background()

	t.Run("精确命中不调用分类器", func(t *testing.T) {
		classifier := &stubClassifier{}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "Java"}, experienceFixture())
		require.NoError(t, err)
		assert.Equal(t, []string{"Java"}, result.MatchedSkills)
		assert.InDelta(t, 3.0, result.TotalYears, 1e-9)
		assert.Zero(t, classifier.calls)
	})

	t.Run("大小写不敏感命中", func(t *testing.T) {
		m := NewRequirementMatcher(nil, &stubClassifier{}, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "java"}, experienceFixture())
		require.NoError(t, err)
		assert.Equal(t, []string{"Java"}, result.MatchedSkills)
	})

	t.Run("泛指要求通过静态表展开技能族", func(t *testing.T) {
		classifier := &stubClassifier{}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: ".NET"}, experienceFixture())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{".NET 7", "ASP.NET"}, result.MatchedSkills)
		assert.InDelta(t, 3.0, result.TotalYears, 1e-9, "24+12个月应合并为3.0年")
		assert.Zero(t, classifier.calls, "静态表可判定时不应调用LLM")
	})

	t.Run("特指版本只接受精确命中", func(t *testing.T) {
		// 即使分类器声称同族其他版本可以算数，也不应被采纳
		classifier := &stubClassifier{matched: []string{".NET 7"}}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: ".NET 6", MinYears: 2}, experienceFixture())
		require.NoError(t, err)
		assert.Empty(t, result.MatchedSkills, ".NET 6 不应匹配 .NET 7 或 ASP.NET")
		assert.Zero(t, result.TotalYears)
		assert.Zero(t, classifier.calls, "静态表已判定为特指，不应调用LLM")
	})

	t.Run("特指版本精确命中自身", func(t *testing.T) {
		classifier := &stubClassifier{}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: ".NET 7"}, experienceFixture())
		require.NoError(t, err)
		assert.Equal(t, []string{".NET 7"}, result.MatchedSkills)
		assert.Zero(t, classifier.calls)
	})

	t.Run("分类器判定泛指命中多个变体", func(t *testing.T) {
		classifier := &stubClassifier{matched: []string{".NET 7", "ASP.NET"}}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "dotnet 全家桶"}, experienceFixture())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{".NET 7", "ASP.NET"}, result.MatchedSkills)
	})

	t.Run("分类器失败按无匹配处理", func(t *testing.T) {
		classifier := &stubClassifier{err: errors.New("LLM unavailable")}
		m := NewRequirementMatcher(nil, classifier, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "未知框架X"}, experienceFixture())
		require.NoError(t, err, "分类失败不应上抛错误")
		assert.Empty(t, result.MatchedSkills)
	})

	t.Run("无分类器时表外要求无匹配", func(t *testing.T) {
		m := NewRequirementMatcher(nil, nil, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "未知框架X"}, experienceFixture())
		require.NoError(t, err)
		assert.Empty(t, result.MatchedSkills)
	})

	t.Run("空经验图", func(t *testing.T) {
		m := NewRequirementMatcher(nil, &stubClassifier{}, zerolog.Nop())

		result, err := m.Match(ctx, types.JDRequirement{Name: "Go"}, nil)
		require.NoError(t, err)
		assert.Empty(t, result.MatchedSkills)
	})

	t.Run("输出顺序稳定", func(t *testing.T) {
		m := NewRequirementMatcher(nil, nil, zerolog.Nop())
		for i := 0; i < 5; i++ {
			result, err := m.Match(ctx, types.JDRequirement{Name: ".NET"}, experienceFixture())
			require.NoError(t, err)
			assert.Equal(t, []string{".NET 7", "ASP.NET"}, result.MatchedSkills, "多次匹配结果顺序应一致")
		}
	})
}
