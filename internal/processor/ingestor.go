package processor

import (
	"context"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ingestTracer = otel.Tracer("resume-match-go/processor/ingest")

// TextExtractor 从原始文件字节中提取纯文本
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error)
}

// ProfileExtractor 从简历文本中提取结构化画像
type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, resumeText string) (*types.ResumeProfile, error)
}

// SkillExperienceExtractor 分批提取各技能的使用经历
type SkillExperienceExtractor interface {
	Extract(ctx context.Context, resumeText string, skills []string) (types.SkillExperienceMap, *types.BatchReport, error)
}

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
}

// RawFileFetcher 按对象键下载简历原始文件
type RawFileFetcher interface {
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)
}

// ProfileStore 画像与分块文本的持久化接口
type ProfileStore interface {
	UpdateResumeProcessingStatus(ctx context.Context, resumeID string, status string) error
	ReplaceResumeChunks(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, vectorKeys []string) error
	UpsertResumeProfile(ctx context.Context, profile *types.ResumeProfile, fileName, ossPath, parserVersion string, report *types.BatchReport) error
}

// IngestLocker 解析锁与上传去重记录的管理接口
type IngestLocker interface {
	AcquireIngestLock(ctx context.Context, resumeID string) (string, error)
	ReleaseIngestLock(ctx context.Context, resumeID string, lockValue string) (bool, error)
	RemoveRawFileMD5(ctx context.Context, md5 string) error
}

// IngestComponents 聚合解析流水线的全部依赖，便于集中管理和测试替换
type IngestComponents struct {
	PDFExtractor   TextExtractor
	Profile        ProfileExtractor
	SkillExtractor SkillExperienceExtractor
	Embedder       TextEmbedder
	Files          RawFileFetcher
	Vectors        storage.VectorDatabase
	Profiles       ProfileStore
	Locks          IngestLocker
}

// ResumeIngestor 简历解析流水线：
// 原始文件 -> 文本提取 -> 画像提取 -> 技能经验提取 -> 分块向量化入库
type ResumeIngestor struct {
	comp    IngestComponents
	chunker *WordChunker

	parserVersion string
	timeout       time.Duration

	logger zerolog.Logger
}

// IngestorOption 配置 ResumeIngestor
type IngestorOption func(*ResumeIngestor)

// WithIngestorLogger 设置日志记录器
func WithIngestorLogger(logger zerolog.Logger) IngestorOption {
	return func(ri *ResumeIngestor) {
		ri.logger = logger
	}
}

// NewResumeIngestor 创建简历解析流水线，校验必要依赖
func NewResumeIngestor(comp IngestComponents, cfg *config.Config, opts ...IngestorOption) (*ResumeIngestor, error) {
	if comp.PDFExtractor == nil {
		return nil, fmt.Errorf("PDF提取器不能为空")
	}
	if comp.Profile == nil {
		return nil, fmt.Errorf("画像提取器不能为空")
	}
	if comp.Embedder == nil {
		return nil, fmt.Errorf("向量化组件不能为空")
	}
	if comp.Files == nil || comp.Vectors == nil || comp.Profiles == nil {
		return nil, fmt.Errorf("存储依赖不完整")
	}

	parserVersion := cfg.ActiveParserVersion
	if parserVersion == "" {
		parserVersion = constants.DefaultParserVersion
	}

	timeout := 120 * time.Second
	if cfg.Ingest.ExtractionTimeout != "" {
		if d, err := time.ParseDuration(cfg.Ingest.ExtractionTimeout); err == nil && d > 0 {
			timeout = d
		}
	}

	ingestor := &ResumeIngestor{
		comp:          comp,
		chunker:       NewWordChunker(cfg.Ingest.ChunkWords, cfg.Ingest.ChunkOverlapWords),
		parserVersion: parserVersion,
		timeout:       timeout,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ingestor)
	}

	return ingestor, nil
}

// IngestResume 执行一份简历的完整解析。
// 同一简历同一时刻只允许一个工作协程解析，拿不到锁时直接返回。
func (ri *ResumeIngestor) IngestResume(ctx context.Context, msg *storage.ResumeUploadedMessage) error {
	ctx, cancel := context.WithTimeout(ctx, ri.timeout)
	defer cancel()

	ctx, span := ingestTracer.Start(ctx, "ResumeIngestor.IngestResume")
	defer span.End()
	// 文件名常含候选人姓名，入span前做掩码
	span.SetAttributes(
		attribute.String("resume.id", msg.ResumeID),
		attribute.String("resume.object_key", msg.RawFilePathOSS),
		attribute.String("resume.original_filename",
			tracing.SafeAttributeValue("original_filename", msg.OriginalFilename, tracing.DefaultMaxLength)),
	)

	if ri.comp.Locks != nil {
		lockValue, err := ri.comp.Locks.AcquireIngestLock(ctx, msg.ResumeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("获取解析锁失败: %w", err)
		}
		if lockValue == "" {
			span.AddEvent("ingest_lock_held_elsewhere")
			span.SetStatus(codes.Ok, "skipped")
			ri.logger.Info().Str("resume_id", msg.ResumeID).Msg("简历正在被其他工作协程解析，跳过")
			return nil
		}
		defer func() {
			// 用独立上下文释放锁，避免解析超时导致锁残留到TTL过期
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if _, err := ri.comp.Locks.ReleaseIngestLock(releaseCtx, msg.ResumeID, lockValue); err != nil {
				ri.logger.Warn().Err(err).Str("resume_id", msg.ResumeID).Msg("释放解析锁失败")
			}
		}()
	}

	if err := ri.comp.Profiles.UpdateResumeProcessingStatus(ctx, msg.ResumeID, models.StatusParsing); err != nil {
		ri.logger.Warn().Err(err).Str("resume_id", msg.ResumeID).Msg("更新解析状态失败，继续解析")
	}

	if err := ri.ingest(ctx, msg); err != nil {
		ri.markFailed(ctx, msg, err)
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return err
	}

	span.SetStatus(codes.Ok, "")
	ri.logger.Info().Str("resume_id", msg.ResumeID).Msg("简历解析完成")
	return nil
}

// ingest 解析主流程，任一步失败整体失败
func (ri *ResumeIngestor) ingest(ctx context.Context, msg *storage.ResumeUploadedMessage) error {
	startTime := time.Now()

	data, err := ri.comp.Files.GetResumeFile(ctx, msg.RawFilePathOSS)
	if err != nil {
		return fmt.Errorf("下载简历原始文件失败: %w", err)
	}

	text, _, err := ri.comp.PDFExtractor.ExtractTextFromBytes(ctx, data, msg.OriginalFilename, map[string]interface{}{
		"resume_id": msg.ResumeID,
	})
	if err != nil {
		return fmt.Errorf("提取简历文本失败: %w", err)
	}
	if text == "" {
		return fmt.Errorf("简历 %s 提取出的文本为空", msg.ResumeID)
	}
	trace.SpanFromContext(ctx).AddEvent("text_extracted", trace.WithAttributes(
		attribute.Int("resume.text_chars", len(text)),
		attribute.String("resume.text_preview", tracing.SafeResumeContent(text)),
	))

	profile, err := ri.comp.Profile.ExtractProfile(ctx, text)
	if err != nil {
		return fmt.Errorf("提取简历画像失败: %w", err)
	}
	profile.ResumeID = msg.ResumeID

	var report *types.BatchReport
	if ri.comp.SkillExtractor != nil && len(profile.Skills) > 0 {
		experience, batchReport, err := ri.comp.SkillExtractor.Extract(ctx, text, profile.Skills)
		if err != nil {
			return fmt.Errorf("提取技能经验失败: %w", err)
		}
		profile.SkillExperience = experience
		report = batchReport
	}

	// 清理上一版解析遗留的向量点：分块数变少时确定性ID覆盖不到的旧点会残留
	if err := ri.comp.Vectors.DeleteResumeVectors(ctx, msg.ResumeID); err != nil {
		ri.logger.Warn().Err(err).Str("resume_id", msg.ResumeID).Msg("清理历史向量失败，继续入库")
	}

	chunks := ri.chunker.Chunk(text)
	if len(chunks) > 0 {
		chunkTexts := make([]string, len(chunks))
		for i, chunk := range chunks {
			chunkTexts[i] = chunk.Text
		}

		embeddings, err := ri.comp.Embedder.EmbedStrings(ctx, chunkTexts)
		if err != nil {
			return fmt.Errorf("分块向量化失败: %w", err)
		}

		vectorKeys, err := ri.comp.Vectors.StoreEvidenceVectors(ctx, msg.ResumeID, chunks, embeddings)
		if err != nil {
			return fmt.Errorf("写入向量库失败: %w", err)
		}

		if err := ri.comp.Profiles.ReplaceResumeChunks(ctx, msg.ResumeID, chunks, vectorKeys); err != nil {
			return fmt.Errorf("写入分块文本失败: %w", err)
		}
	}

	if err := ri.comp.Profiles.UpsertResumeProfile(ctx, profile, msg.OriginalFilename, msg.RawFilePathOSS, ri.parserVersion, report); err != nil {
		return fmt.Errorf("持久化简历画像失败: %w", err)
	}

	ri.logger.Debug().
		Str("resume_id", msg.ResumeID).
		Int("skills", len(profile.Skills)).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(startTime)).
		Msg("解析流水线各阶段完成")
	return nil
}

// markFailed 记录解析失败状态，并移除上传去重记录以允许重新上传同一文件
func (ri *ResumeIngestor) markFailed(ctx context.Context, msg *storage.ResumeUploadedMessage, cause error) {
	ri.logger.Error().Err(cause).Str("resume_id", msg.ResumeID).Msg("简历解析失败")

	// 主流程可能因超时失败，状态回写使用独立上下文
	failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ri.comp.Profiles.UpdateResumeProcessingStatus(failCtx, msg.ResumeID, models.StatusParsingFailed); err != nil {
		ri.logger.Error().Err(err).Str("resume_id", msg.ResumeID).Msg("标记解析失败状态失败")
	}

	if ri.comp.Locks != nil && msg.RawFileMD5 != "" {
		if err := ri.comp.Locks.RemoveRawFileMD5(failCtx, msg.RawFileMD5); err != nil {
			ri.logger.Warn().Err(err).Str("resume_id", msg.ResumeID).Msg("移除文件MD5去重记录失败")
		}
	}
}
