package types

import "math"

// EvidenceStrength 证据强度等级，由证据评估器给出
type EvidenceStrength string

const (
	// StrengthStrong 强证据：候选人明确主导或深度使用该技能
	StrengthStrong EvidenceStrength = "strong"
	// StrengthModerate 中等证据：有使用记录但深度不明确
	StrengthModerate EvidenceStrength = "moderate"
	// StrengthWeak 弱证据：仅在技能列表中出现或间接提及
	StrengthWeak EvidenceStrength = "weak"
	// StrengthNone 无证据
	StrengthNone EvidenceStrength = "none"
)

// Points 返回该强度对应的单项得分
func (s EvidenceStrength) Points() float64 {
	switch s {
	case StrengthStrong:
		return 1.0
	case StrengthModerate:
		return 0.7
	case StrengthWeak:
		return 0.3
	default:
		return 0.0
	}
}

// Valid 判断强度值是否为已知枚举
func (s EvidenceStrength) Valid() bool {
	switch s {
	case StrengthStrong, StrengthModerate, StrengthWeak, StrengthNone:
		return true
	}
	return false
}

// Importance JD 要求的重要程度
type Importance string

const (
	ImportanceCritical  Importance = "critical"
	ImportanceRequired  Importance = "required"
	ImportancePreferred Importance = "preferred"
)

// JobEvidence 某项技能在一段工作经历中的使用记录
type JobEvidence struct {
	Employer       string `json:"employer"`
	StartPeriod    string `json:"start_period,omitempty"`
	EndPeriod      string `json:"end_period,omitempty"`
	DurationMonths *int   `json:"duration_months"` // nil 表示时长无法判断
	Evidence       string `json:"evidence,omitempty"`
	// SourceSkill 记录该条目合并自哪个技能键（变体合并时使用）
	SourceSkill string `json:"source_skill,omitempty"`
}

// SkillExperienceRecord 单项技能的累计经验
type SkillExperienceRecord struct {
	SkillName   string        `json:"skill_name"`
	Jobs        []JobEvidence `json:"jobs_using_skill"`
	TotalMonths int           `json:"total_months"`
}

// TotalYears 按 12 个月折算为年，保留一位小数
func (r *SkillExperienceRecord) TotalYears() float64 {
	if r == nil {
		return 0
	}
	return Round1(float64(r.TotalMonths) / 12.0)
}

// SkillExperienceMap 规范化技能名 -> 累计经验记录
type SkillExperienceMap map[string]*SkillExperienceRecord

// JDRequirement JD 中的一条技能要求
type JDRequirement struct {
	Name       string     `json:"name"`
	MinYears   float64    `json:"min_years"` // 0 表示未声明年限要求
	Importance Importance `json:"importance,omitempty"`
	Variants   []string   `json:"variants,omitempty"`
}

// JDRequirements JD 结构化提取结果
type JDRequirements struct {
	JobTitle        string          `json:"job_title"`
	CoreSkills      []JDRequirement `json:"core_skills"`
	SecondarySkills []JDRequirement `json:"secondary_skills"`
	NiceToHave      []JDRequirement `json:"nice_to_have"`
	Keywords        []string        `json:"keywords"`
	TotalYears      int             `json:"total_years_required"`
}

// ResumeProfile 简历结构化画像，由解析流水线产出并持久化
type ResumeProfile struct {
	ResumeID        string             `json:"resume_id"`
	Name            string             `json:"name,omitempty"`
	Email           string             `json:"email,omitempty"`
	Phone           string             `json:"phone,omitempty"`
	Title           string             `json:"title,omitempty"`
	YearsExperience int                `json:"years_experience"`
	Skills          []string           `json:"skills"`
	SkillExperience SkillExperienceMap `json:"skill_experience"`
}

// EvidenceChunk 简历分块后的一段证据文本，待向量化入库
type EvidenceChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// EvidenceHit 向量索引返回的单条命中，保留引擎原始打分信息，
// 由检索器统一归一化为相似度
type EvidenceHit struct {
	VectorKey string   `json:"vector_key"`
	OwnerID   string   `json:"owner_id"` // 该向量所属简历ID
	Score     *float64 `json:"score,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	Metric    string   `json:"metric,omitempty"` // cosine / l2 / euclidean
}

// EvidenceLocation 检索到的最佳证据位置
type EvidenceLocation struct {
	Similarity float64 `json:"similarity"` // 已归一化到 [0,1]
	VectorKey  string  `json:"vector_key"`
}

// EvidenceGrade 证据评估器对单条证据的判定结果
type EvidenceGrade struct {
	HasSkill       bool             `json:"has_skill"`
	Strength       EvidenceStrength `json:"evidence_strength"`
	YearsSupported float64          `json:"years_supported"`
	MeetsYears     bool             `json:"meets_years"`
	Why            string           `json:"why"`
	Quote          string           `json:"quote"`
	Confidence     float64          `json:"confidence"`
}

// NoEvidenceGrade 构造"无证据"默认判定，用于跳过评估或评估失败降级
func NoEvidenceGrade(reason string) *EvidenceGrade {
	return &EvidenceGrade{
		HasSkill:   false,
		Strength:   StrengthNone,
		Why:        reason,
		Confidence: 0.0,
	}
}

// MatchResult 要求匹配器输出：命中的技能键及合并后的经验
type MatchResult struct {
	MatchedSkills    []string      `json:"matched_skills"`
	ContributingJobs []JobEvidence `json:"contributing_jobs"`
	TotalYears       float64       `json:"total_years"`
}

// SkillScore 单项核心技能的评分明细
type SkillScore struct {
	Skill          string           `json:"skill"`
	MinYears       float64          `json:"min_years"`
	Similarity     float64          `json:"similarity"`
	VectorKey      string           `json:"vector_key,omitempty"`
	Strength       EvidenceStrength `json:"evidence_strength"`
	TotalYears     float64          `json:"total_years"`
	MeetsYears     bool             `json:"meets_years"`
	Points         float64          `json:"points"`
	MatchedSkills  []string         `json:"matched_skills,omitempty"`
	Why            string           `json:"why,omitempty"`
	Quote          string           `json:"quote,omitempty"`
	Confidence     float64          `json:"confidence"`
}

// ScoreBreakdown 一次匹配运行的完整评分结果
type ScoreBreakdown struct {
	OverallScore      int          `json:"overall_score"`
	CoreEvidenceScore float64      `json:"core_evidence_score"`
	SemanticScore     float64      `json:"semantic_score"`
	ExperienceScore   float64      `json:"experience_score"`
	PerSkill          []SkillScore `json:"per_skill"`
}

// BatchError 单批技能经验提取失败的记录
type BatchError struct {
	BatchIndex int      `json:"batch_index"`
	Skills     []string `json:"skills"`
	Message    string   `json:"message"`
}

// BatchReport 分批提取的汇总报告
type BatchReport struct {
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// Round1 保留一位小数的四舍五入
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
