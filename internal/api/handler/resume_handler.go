package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnsupportedFileType 上传了不支持的文件类型
var ErrUnsupportedFileType = errors.New("仅支持PDF格式的简历文件")

// ResumeHandler 简历上传处理器，负责去重、落盘原始文件并投递解析事件
type ResumeHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewResumeHandler 创建简历上传处理器
func NewResumeHandler(cfg *config.Config, storage *storage.Storage) *ResumeHandler {
	return &ResumeHandler{
		cfg:     cfg,
		storage: storage,
	}
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	ResumeID string `json:"resume_id"`
	Status   string `json:"status"`
}

// 上传状态
const (
	StatusSubmittedForParsing = "SUBMITTED_FOR_PARSING"
	StatusDuplicateFile       = "DUPLICATE_FILE"
)

// HandleResumeUpload 处理简历上传。
// 同一文件（按字节MD5判断）重复上传时直接返回已有简历ID，不触发二次解析。
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, reader io.Reader, fileSize int64, filename string) (*ResumeUploadResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	if ext != ".pdf" {
		return nil, ErrUnsupportedFileType
	}

	// 去重需要在上传前算MD5，reader只能读一次
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	if len(fileBytes) == 0 {
		return nil, fmt.Errorf("上传文件内容为空")
	}
	sum := md5.Sum(fileBytes)
	fileMD5Hex := hex.EncodeToString(sum[:])

	// SISMEMBER+SADD原子执行，并发上传同一文件只有一个请求能通过
	exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, fileMD5Hex)
	if err != nil {
		logger.Error().Err(err).Str("md5", fileMD5Hex).Msg("文件MD5去重检查失败")
		return nil, fmt.Errorf("文件去重检查失败: %w", err)
	}
	if exists {
		existingID, err := h.storage.Redis.GetResumeIDByMD5(ctx, fileMD5Hex)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("md5", fileMD5Hex).Msg("查询重复文件对应的简历ID失败")
		}
		logger.Info().
			Str("md5", fileMD5Hex).
			Str("filename", filename).
			Str("existing_resume_id", existingID).
			Msg("检测到重复上传的文件")
		return &ResumeUploadResponse{
			ResumeID: existingID,
			Status:   StatusDuplicateFile,
		}, nil
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成简历ID失败: %w", err)
	}
	resumeID := uuidV7.String()

	objectKey, _, err := h.storage.MinIO.UploadResumeFileStreaming(ctx, resumeID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		// 上传失败回滚去重记录，允许重试
		if rmErr := h.storage.Redis.RemoveRawFileMD5(ctx, fileMD5Hex); rmErr != nil {
			logger.Warn().Err(rmErr).Str("md5", fileMD5Hex).Msg("回滚文件MD5去重记录失败")
		}
		return nil, fmt.Errorf("上传简历到对象存储失败: %w", err)
	}

	if err := h.storage.Redis.MapMD5ToResumeID(ctx, fileMD5Hex, resumeID); err != nil {
		logger.Warn().Err(err).Str("md5", fileMD5Hex).Str("resume_id", resumeID).Msg("记录MD5到简历ID映射失败")
	}

	// 先写状态占位记录，解析完成后由流水线覆盖为完整画像
	if err := h.storage.MySQL.EnsureResumeProfileStub(ctx, resumeID, filename, objectKey); err != nil {
		return nil, fmt.Errorf("创建简历记录失败: %w", err)
	}

	message := storage.ResumeUploadedMessage{
		ResumeID:         resumeID,
		UploadedAt:       time.Now(),
		OriginalFilename: filename,
		RawFilePathOSS:   objectKey,
		RawFileMD5:       fileMD5Hex,
	}
	if err := h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
		message,
		true, // 持久化
	); err != nil {
		tracing.RecordError(trace.SpanFromContext(ctx), err, tracing.ErrorTypeRabbitMQ)
		return nil, fmt.Errorf("投递解析事件失败: %w", err)
	}

	logger.Info().
		Str("resume_id", resumeID).
		Str("object_key", objectKey).
		Int64("size", fileSize).
		Msg("简历上传完成，已投递解析事件")
	return &ResumeUploadResponse{
		ResumeID: resumeID,
		Status:   StatusSubmittedForParsing,
	}, nil
}
