package storage

import "time"

// ResumeUploadedMessage 简历上传事件，由上传接口发布、解析流水线消费
type ResumeUploadedMessage struct {
	ResumeID         string    `json:"resume_id"`              // 简历ID，主键
	UploadedAt       time.Time `json:"uploaded_at"`            // 上传时间戳
	OriginalFilename string    `json:"original_filename"`      // 原始文件名
	RawFilePathOSS   string    `json:"raw_file_path_oss"`      // MinIO中的对象路径
	RawFileMD5       string    `json:"raw_file_md5,omitempty"` // 原始文件MD5，解析失败时用于回滚去重记录
}
