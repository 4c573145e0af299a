package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ResumeProfileRecord 简历画像表：解析流水线的最终产出
type ResumeProfileRecord struct {
	ResumeID            string         `gorm:"type:char(36);primaryKey"`
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	RawFilePathOSS      string         `gorm:"type:varchar(1024)"`
	Name                string         `gorm:"type:varchar(255)"`
	Email               string         `gorm:"type:varchar(255);index:idx_rp_email"`
	Phone               string         `gorm:"type:varchar(50)"`
	Title               string         `gorm:"type:varchar(255)"`
	YearsExperience     int            `gorm:"type:int;default:0"`
	SkillsJSON          datatypes.JSON `gorm:"type:json"`
	SkillExperienceJSON datatypes.JSON `gorm:"type:json"`
	ExtractionReport    datatypes.JSON `gorm:"type:json"` // 分批提取的成功/失败报告
	ProcessingStatus    string         `gorm:"type:varchar(50);default:'PENDING_PARSING';index:idx_rp_processing_status"`
	ParserVersion       string         `gorm:"type:varchar(50)"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ResumeProfileRecord) TableName() string {
	return "resume_profiles"
}

// ResumeChunkRecord 简历分块文本表，向量键与向量库中的点一一对应
type ResumeChunkRecord struct {
	ChunkDBID  uint64    `gorm:"primaryKey;autoIncrement"`
	ResumeID   string    `gorm:"type:char(36);not null;index:idx_rc_resume_id;uniqueIndex:idx_rc_resume_chunk,priority:1"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_rc_resume_chunk,priority:2"`
	VectorKey  string    `gorm:"type:char(36);not null;uniqueIndex:idx_rc_vector_key"`
	ChunkText  string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	ResumeProfile *ResumeProfileRecord `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ResumeChunkRecord) TableName() string {
	return "resume_chunks"
}

// MatchRunRecord 匹配运行表：每次评分追加一条，不做更新
type MatchRunRecord struct {
	RunID              string         `gorm:"type:char(36);primaryKey"`
	ResumeID           string         `gorm:"type:char(36);not null;index:idx_mr_resume_id"`
	JDHash             string         `gorm:"type:char(40);not null;index:idx_mr_jd_hash"`
	JDText             string         `gorm:"type:text"`
	JDRequirementsJSON datatypes.JSON `gorm:"type:json"`
	BreakdownJSON      datatypes.JSON `gorm:"type:json"`
	OverallScore       int            `gorm:"type:int;not null;index:idx_mr_overall_score"`
	ModelVersion       string         `gorm:"type:varchar(100)"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_mr_created_at"`

	ResumeProfile *ResumeProfileRecord `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (MatchRunRecord) TableName() string {
	return "match_runs"
}

// 简历处理状态常量
const (
	StatusPendingParsing  = "PENDING_PARSING"
	StatusParsing         = "PARSING"
	StatusParsed          = "PARSED"
	StatusParsingFailed   = "PARSING_FAILED"
)

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// ToJSON 将任意可序列化值转换为 datatypes.JSON
func ToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
