package constants

import "time"

const (
	// DefaultParserVersion 解析流水线版本，随提取Prompt结构变更而递增
	DefaultParserVersion = "1.0"

	// JDCacheDuration JD结构化要求与向量缓存的过期时间
	JDCacheDuration = 24 * time.Hour

	// ResumeIngestLockDuration 单份简历解析锁的持有上限
	ResumeIngestLockDuration = 10 * time.Minute
)
