package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"resume-match-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadResumeFileStreaming 流式上传简历原始文件并同时计算MD5
	UploadResumeFileStreaming(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)

	// GetResumeFile 按对象键下载简历原始文件
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)

	// DeleteResumeFile 删除简历原始文件
	DeleteResumeFile(ctx context.Context, objectKey string) error

	// GetPresignedURL 获取预签名URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	resumesBucket string
	logger        *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing MinIO client with endpoint: %s, bucket: %s", cfg.Endpoint, cfg.ResumesBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	resumesBucket := cfg.ResumesBucket
	if resumesBucket == "" {
		resumesBucket = "resumes"
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		resumesBucket: resumesBucket,
		logger:        logger,
	}

	if err := m.ensureBucketExists(resumesBucket, cfg.Location); err != nil {
		logger.Printf("[MinIO] Failed to ensure bucket %s exists: %v", resumesBucket, err)
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", resumesBucket, err)
	}

	// 设置生命周期规则
	if cfg.RawFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), resumesBucket, "expire-raw-resumes", cfg.RawFileExpireDays); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	m.logger.Printf("[MinIO] Ensuring bucket exists: %s (Location: %s)", bucketName, location)
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		m.logger.Printf("[MinIO] Error checking if bucket %s exists: %v", bucketName, err)
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			m.logger.Printf("[MinIO] Error creating bucket %s: %v", bucketName, err)
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	} else {
		m.logger.Printf("[MinIO] Bucket %s already exists.", bucketName)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	m.logger.Printf("[MinIO] Setting lifecycle rule for bucket %s: ID=%s, ExpiryDays=%d", bucketName, ruleID, expiryDays)
	lcConfig := lifecycle.NewConfiguration()
	lcConfig.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}

	err := m.client.SetBucketLifecycle(ctx, bucketName, lcConfig)
	if err != nil {
		m.logger.Printf("[MinIO] Error setting lifecycle for bucket %s: %v", bucketName, err)
		return err
	}
	m.logger.Printf("[MinIO] Successfully set lifecycle for bucket %s.", bucketName)
	return nil
}

// UploadResumeFileStreaming 流式上传简历文件并同时计算MD5
// 返回: objectKey, md5Hex, error
func (m *MinIO) UploadResumeFileStreaming(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	objectName := fmt.Sprintf("resume/%s/original%s", resumeID, fileExt)
	contentType := getContentType(fileExt)

	// 使用TeeReader在上传的同时计算MD5
	md5Hash := md5.New()
	teeReader := io.TeeReader(reader, md5Hash)

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-UploadResumeFileStreaming] Uploading: ResumeID='%s', FileExt='%s', ObjectName='%s', Bucket='%s'",
			resumeID, fileExt, objectName, m.resumesBucket)
	}

	info, err := m.client.PutObject(ctx, m.resumesBucket, objectName, teeReader,
		fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("流式上传文件到MinIO失败: %w", err)
	}

	md5Hex := hex.EncodeToString(md5Hash.Sum(nil))

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-UploadResumeFileStreaming] Successfully uploaded %s, ETag: %s, Size: %d, MD5: %s",
			objectName, info.ETag, info.Size, md5Hex)
	}

	return objectName, md5Hex, nil
}

// GetResumeFile 从MinIO获取简历原始文件
func (m *MinIO) GetResumeFile(ctx context.Context, objectKey string) ([]byte, error) {
	m.logger.Printf("[MinIO] Getting resume file: Bucket=%s, ObjectKey=%s", m.resumesBucket, objectKey)

	obj, err := m.client.GetObject(ctx, m.resumesBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.resumesBucket, objectKey, err)
	}
	defer obj.Close()

	// Stat可以区分对象不存在与读取失败
	stat, err := obj.Stat()
	if err != nil {
		m.logger.Printf("[MinIO] Failed to stat object %s/%s after GetObject: %v", m.resumesBucket, objectKey, err)
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", m.resumesBucket, objectKey, err)
	}
	m.logger.Printf("[MinIO] Object %s/%s stats: Size=%d, ContentType=%s", m.resumesBucket, objectKey, stat.Size, stat.ContentType)

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.resumesBucket, objectKey, err)
	}
	return data, nil
}

// DeleteResumeFile 删除简历原始文件
func (m *MinIO) DeleteResumeFile(ctx context.Context, objectKey string) error {
	m.logger.Printf("[MinIO] Deleting object: %s/%s", m.resumesBucket, objectKey)
	err := m.client.RemoveObject(ctx, m.resumesBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// GetPresignedURL 获取预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	m.logger.Printf("[MinIO] Generating presigned URL for: %s, Expiry: %s", objectKey, expiry)
	presignedURL, err := m.client.PresignedGetObject(ctx, m.resumesBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// StatObject 暴露底层的StatObject方法，用于测试或特定场景
func (m *MinIO) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucketName, objectName, opts)
}

// 获取内容类型
func getContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
