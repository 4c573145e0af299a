package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"resume-match-go/internal/config"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
)

var mysqlTracer = otel.Tracer("resume-match-go/storage/mysql")

// ErrProfileNotFound 简历画像不存在
var ErrProfileNotFound = errors.New("resume profile not found")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{db: db, cfg: cfg}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.ResumeProfileRecord{},
		&models.ResumeChunkRecord{},
		&models.MatchRunRecord{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// UpsertResumeProfile 写入/覆盖简历画像
func (m *MySQL) UpsertResumeProfile(ctx context.Context, profile *types.ResumeProfile, fileName, ossPath, parserVersion string, report *types.BatchReport) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertResumeProfile",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "resume_profiles"),
		attribute.String("resume.id", profile.ResumeID),
	)

	skillsJSON, err := models.ToJSON(profile.Skills)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("序列化技能列表失败: %w", err)
	}
	experienceJSON, err := models.ToJSON(profile.SkillExperience)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("序列化技能经验失败: %w", err)
	}

	record := models.ResumeProfileRecord{
		ResumeID:            profile.ResumeID,
		OriginalFilename:    fileName,
		RawFilePathOSS:      ossPath,
		Name:                profile.Name,
		Email:               profile.Email,
		Phone:               profile.Phone,
		Title:               profile.Title,
		YearsExperience:     profile.YearsExperience,
		SkillsJSON:          skillsJSON,
		SkillExperienceJSON: experienceJSON,
		ProcessingStatus:    models.StatusParsed,
		ParserVersion:       parserVersion,
	}
	if report != nil {
		if reportJSON, err := models.ToJSON(report); err == nil {
			record.ExtractionReport = reportJSON
		}
	}

	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetResumeProfile 读取简历画像，不存在返回 ErrProfileNotFound
func (m *MySQL) GetResumeProfile(ctx context.Context, resumeID string) (*types.ResumeProfile, error) {
	var record models.ResumeProfileRecord
	err := m.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("查询简历画像失败: %w", err)
	}

	profile := &types.ResumeProfile{
		ResumeID:        record.ResumeID,
		Name:            record.Name,
		Email:           record.Email,
		Phone:           record.Phone,
		Title:           record.Title,
		YearsExperience: record.YearsExperience,
	}
	if len(record.SkillsJSON) > 0 {
		if err := json.Unmarshal(record.SkillsJSON, &profile.Skills); err != nil {
			return nil, fmt.Errorf("解析技能列表JSON失败: %w", err)
		}
	}
	if len(record.SkillExperienceJSON) > 0 {
		if err := json.Unmarshal(record.SkillExperienceJSON, &profile.SkillExperience); err != nil {
			return nil, fmt.Errorf("解析技能经验JSON失败: %w", err)
		}
	}
	return profile, nil
}

// UpdateResumeProcessingStatus 更新简历处理状态
func (m *MySQL) UpdateResumeProcessingStatus(ctx context.Context, resumeID string, status string) error {
	return m.db.WithContext(ctx).Model(&models.ResumeProfileRecord{}).
		Where("resume_id = ?", resumeID).Update("processing_status", status).Error
}

// EnsureResumeProfileStub 入库前占位：只写主键与文件信息，状态为待解析。
// 已存在时不覆盖已有画像。
func (m *MySQL) EnsureResumeProfileStub(ctx context.Context, resumeID, fileName, ossPath string) error {
	record := models.ResumeProfileRecord{
		ResumeID:         resumeID,
		OriginalFilename: fileName,
		RawFilePathOSS:   ossPath,
		ProcessingStatus: models.StatusPendingParsing,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"original_filename", "raw_file_path_oss"}),
	}).Create(&record).Error
}

// ReplaceResumeChunks 替换一份简历的全部分块记录（事务内先删后插）
func (m *MySQL) ReplaceResumeChunks(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, vectorKeys []string) error {
	if len(chunks) != len(vectorKeys) {
		return fmt.Errorf("chunks 和 vectorKeys 长度不匹配: %d != %d", len(chunks), len(vectorKeys))
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resume_id = ?", resumeID).Delete(&models.ResumeChunkRecord{}).Error; err != nil {
			return fmt.Errorf("删除旧分块失败: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		records := make([]models.ResumeChunkRecord, len(chunks))
		for i, chunk := range chunks {
			records[i] = models.ResumeChunkRecord{
				ResumeID:   resumeID,
				ChunkIndex: chunk.ChunkIndex,
				VectorKey:  vectorKeys[i],
				ChunkText:  chunk.Text,
			}
		}
		return tx.Create(&records).Error
	})
}

// GetChunkText 按向量键取回分块原文
func (m *MySQL) GetChunkText(ctx context.Context, vectorKey string) (string, error) {
	var record models.ResumeChunkRecord
	err := m.db.WithContext(ctx).Select("chunk_text").
		Where("vector_key = ?", vectorKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("分块不存在: vector_key=%s", vectorKey)
		}
		return "", fmt.Errorf("查询分块原文失败: %w", err)
	}
	return record.ChunkText, nil
}

// CreateMatchRun 追加一条匹配运行记录
func (m *MySQL) CreateMatchRun(ctx context.Context, run *models.MatchRunRecord) error {
	return m.db.WithContext(ctx).Create(run).Error
}

// GetMatchRun 按运行ID读取匹配记录
func (m *MySQL) GetMatchRun(ctx context.Context, runID string) (*models.MatchRunRecord, error) {
	var record models.MatchRunRecord
	err := m.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("查询匹配记录失败: %w", err)
	}
	return &record, nil
}
