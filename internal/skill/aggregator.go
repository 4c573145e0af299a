package skill

import (
	"strings"

	"resume-match-go/internal/types"
)

// Aggregator 将分批提取出的技能经验合并进累计画像。
// 合并键由 Normalizer 计算，保证同族变体落到同一条记录上。
type Aggregator struct {
	normalizer *Normalizer
}

// NewAggregator 创建聚合器
func NewAggregator(n *Normalizer) *Aggregator {
	if n == nil {
		n = NewNormalizer()
	}
	return &Aggregator{normalizer: n}
}

// MergeBatch 将一批提取结果合并进 existing（原地修改并返回）。
// 去重规则：同一技能下，雇主名（去空白、忽略大小写）首次出现者保留，
// 后续同雇主条目丢弃；雇主为空的条目不参与去重，始终追加。
// 新技能整批写入。
func (a *Aggregator) MergeBatch(existing types.SkillExperienceMap, batch map[string][]types.JobEvidence) types.SkillExperienceMap {
	if existing == nil {
		existing = make(types.SkillExperienceMap)
	}
	for rawName, jobs := range batch {
		key := a.normalizer.Normalize(rawName)
		if key == "" {
			continue
		}
		tagged := make([]types.JobEvidence, 0, len(jobs))
		for _, j := range jobs {
			if j.SourceSkill == "" {
				j.SourceSkill = strings.TrimSpace(rawName)
			}
			tagged = append(tagged, j)
		}

		record, ok := existing[key]
		if !ok {
			existing[key] = &types.SkillExperienceRecord{
				SkillName: key,
				Jobs:      tagged,
			}
			continue
		}

		seen := make(map[string]struct{}, len(record.Jobs))
		for _, j := range record.Jobs {
			if emp := employerKey(j.Employer); emp != "" {
				seen[emp] = struct{}{}
			}
		}
		for _, j := range tagged {
			emp := employerKey(j.Employer)
			if emp != "" {
				if _, dup := seen[emp]; dup {
					continue
				}
				seen[emp] = struct{}{}
			}
			record.Jobs = append(record.Jobs, j)
		}
	}
	return existing
}

// Finalize 重算每条记录的累计月数。时长为 nil 的工作段跳过不计。
func (a *Aggregator) Finalize(m types.SkillExperienceMap) {
	for _, record := range m {
		total := 0
		for _, j := range record.Jobs {
			if j.DurationMonths == nil {
				continue
			}
			if *j.DurationMonths > 0 {
				total += *j.DurationMonths
			}
		}
		record.TotalMonths = total
	}
}

// MergeRecords 将多条记录（要求匹配器命中的多个变体）合并为单个结果：
// 跨记录按雇主去重（首见保留，空雇主不去重），月数取合并后工作段之和。
func MergeRecords(records []*types.SkillExperienceRecord) types.MatchResult {
	result := types.MatchResult{}
	seen := make(map[string]struct{})
	totalMonths := 0
	for _, record := range records {
		if record == nil {
			continue
		}
		result.MatchedSkills = append(result.MatchedSkills, record.SkillName)
		for _, j := range record.Jobs {
			emp := employerKey(j.Employer)
			if emp != "" {
				if _, dup := seen[emp]; dup {
					continue
				}
				seen[emp] = struct{}{}
			}
			if j.SourceSkill == "" {
				j.SourceSkill = record.SkillName
			}
			result.ContributingJobs = append(result.ContributingJobs, j)
			if j.DurationMonths != nil && *j.DurationMonths > 0 {
				totalMonths += *j.DurationMonths
			}
		}
	}
	result.TotalYears = types.Round1(float64(totalMonths) / 12.0)
	return result
}

func employerKey(employer string) string {
	return strings.ToLower(strings.TrimSpace(employer))
}
