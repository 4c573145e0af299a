package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/api/router"
	"resume-match-go/internal/config"
	"resume-match-go/internal/llm"
	appLogger "resume-match-go/internal/logger"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/scorer"
	"resume-match-go/internal/skill"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.SetLogger(hertzzerolog.From(appLogger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.SetupTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			glog.Fatalf("初始化链路追踪失败: %v", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				glog.Warnf("关闭链路追踪失败: %v", err)
			}
		}()
		glog.Info("链路追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")
	if storageManager.Qdrant != nil {
		if count, err := storageManager.Qdrant.CountPoints(ctx); err == nil {
			glog.Infof("向量集合当前点数: %d", count)
		} else {
			glog.Warnf("查询向量集合点数失败: %v", err)
		}
	}

	// Embedding
	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding,
		parser.WithEmbedderLogger(appLogger.Component("embedding")))
	if err != nil {
		glog.Fatalf("初始化Embedder失败: %v", err)
	}

	// 按任务分配LLM模型，统一套用限流
	retryWait := time.Duration(cfg.Ingest.RetryWaitSeconds) * time.Second
	if retryWait <= 0 {
		retryWait = time.Second
	}
	newTaskModel := func(task string) model.ToolCallingChatModel {
		modelName := cfg.GetModelForTask(task)
		base, err := llm.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, modelName, cfg.Aliyun.APIURL,
			llm.WithQwenLogger(appLogger.Component("llm")))
		if err != nil {
			glog.Fatalf("初始化LLM模型(%s)失败: %v", task, err)
		}
		return llm.NewChatModelWithRateLimit(base, modelName, cfg.ModelQPMLimits, 0, cfg.Ingest.MaxRetries, retryWait)
	}
	profileModel := newTaskModel("profile_extraction")
	skillModel := newTaskModel("skill_experience")
	jdModel := newTaskModel("jd_extraction")
	gradingModel := newTaskModel("evidence_grading")
	classifierModel := newTaskModel("variant_classification")

	// 解析流水线组件
	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(appLogger.Logger))
	if err != nil {
		glog.Fatalf("创建PDF提取器失败: %v", err)
	}
	normalizer := skill.NewNormalizer()
	aggregator := skill.NewAggregator(normalizer)
	profileExtractor := parser.NewLLMProfileExtractor(profileModel, appLogger.Logger)
	skillExtractor := parser.NewLLMSkillExperienceExtractor(skillModel, aggregator,
		parser.WithSkillBatchSize(cfg.Ingest.SkillBatchSize),
		parser.WithSkillExtractorLogger(appLogger.Logger))

	ingestor, err := processor.NewResumeIngestor(processor.IngestComponents{
		PDFExtractor:   pdfExtractor,
		Profile:        profileExtractor,
		SkillExtractor: skillExtractor,
		Embedder:       embedder,
		Files:          storageManager.MinIO,
		Vectors:        storageManager.Qdrant,
		Profiles:       storageManager.MySQL,
		Locks:          storageManager.Redis,
	}, cfg, processor.WithIngestorLogger(appLogger.Component("ingest")))
	if err != nil {
		glog.Fatalf("初始化解析流水线失败: %v", err)
	}

	consumer, err := processor.NewIngestConsumer(storageManager.RabbitMQ, ingestor, &cfg.RabbitMQ, appLogger.Component("ingest"))
	if err != nil {
		glog.Fatalf("初始化解析消费者失败: %v", err)
	}
	if _, err := consumer.Start(ctx); err != nil {
		glog.Fatalf("启动解析消费者失败: %v", err)
	}

	// 评分引擎
	retriever := matcher.NewEvidenceRetriever(plainEmbedder{embedder}, storageManager.Qdrant, normalizer,
		matcher.WithRetrieverTopK(cfg.Scoring.EvidenceTopK),
		matcher.WithRetrieverLogger(appLogger.Component("matcher")))
	grader := parser.NewLLMEvidenceGrader(gradingModel, parser.WithGraderLogger(appLogger.Logger))
	classifier := parser.NewLLMVariantClassifier(classifierModel, appLogger.Logger)
	requirementMatcher := matcher.NewRequirementMatcher(normalizer, classifier, appLogger.Logger)

	runTimeout := config.GetDuration(cfg.Scoring.RunTimeout, 90*time.Second)
	engine := scorer.NewEngine(retriever, grader, requirementMatcher, storageManager.MySQL, plainEmbedder{embedder},
		scorer.WithWeights(cfg.Scoring.CoreWeight, cfg.Scoring.SemanticWeight, cfg.Scoring.ExperienceWeight),
		scorer.WithRunTimeout(runTimeout),
		scorer.WithEngineLogger(appLogger.Component("scorer")))

	// HTTP处理器
	jdExtractor := parser.NewLLMJDExtractor(jdModel, appLogger.Logger)
	resumeHandler := handler.NewResumeHandler(cfg, storageManager)
	matchHandler := handler.NewMatchHandler(cfg, storageManager, jdExtractor, engine, embedder.ModelVersion())

	serverTracer, serverTracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		serverTracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(serverTracerCfg))

	router.RegisterRoutes(h, resumeHandler, matchHandler)
	glog.Infof("HTTP服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	cancel() // 通知消费者停止处理新消息

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("HTTP服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// plainEmbedder 适配eino风格的变参EmbedStrings到检索与评分侧的简单接口
type plainEmbedder struct {
	inner *parser.AliyunEmbedder
}

func (p plainEmbedder) EmbedStrings(ctx context.Context, texts []string) ([][]float64, error) {
	return p.inner.EmbedStrings(ctx, texts)
}
