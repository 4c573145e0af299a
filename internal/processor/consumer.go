package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"resume-match-go/internal/config"
	"resume-match-go/internal/storage"

	"github.com/rs/zerolog"
)

// IngestConsumer 消费简历上传事件，驱动解析流水线
type IngestConsumer struct {
	mq       storage.MessageQueue
	ingestor *ResumeIngestor
	cfg      *config.RabbitMQConfig
	logger   zerolog.Logger
}

// NewIngestConsumer 创建上传事件消费者
func NewIngestConsumer(mq storage.MessageQueue, ingestor *ResumeIngestor, cfg *config.RabbitMQConfig, logger zerolog.Logger) (*IngestConsumer, error) {
	if mq == nil {
		return nil, fmt.Errorf("消息队列不能为空")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("解析流水线不能为空")
	}
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	return &IngestConsumer{
		mq:       mq,
		ingestor: ingestor,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// declareTopology 声明交换机、队列和绑定关系
func (c *IngestConsumer) declareTopology() error {
	if err := c.mq.EnsureExchange(c.cfg.ResumeEventsExchange, "topic", true); err != nil {
		return fmt.Errorf("声明交换机失败: %w", err)
	}
	if err := c.mq.EnsureQueue(c.cfg.ResumeIngestQueue, true); err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}
	if err := c.mq.BindQueue(c.cfg.ResumeIngestQueue, c.cfg.ResumeEventsExchange, c.cfg.UploadedRoutingKey); err != nil {
		return fmt.Errorf("绑定队列失败: %w", err)
	}
	return nil
}

// Start 声明拓扑并启动消费工作协程，返回各消费者的停止通道
func (c *IngestConsumer) Start(ctx context.Context) ([]<-chan struct{}, error) {
	if err := c.declareTopology(); err != nil {
		return nil, err
	}

	workers := c.cfg.IngestWorkers
	if workers <= 0 {
		workers = 1
	}
	prefetch := c.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}

	stopChannels := make([]<-chan struct{}, 0, workers)
	for i := 0; i < workers; i++ {
		stopCh, err := c.mq.StartConsumer(c.cfg.ResumeIngestQueue, prefetch, c.handleMessage(ctx))
		if err != nil {
			return stopChannels, fmt.Errorf("启动第%d个消费者失败: %w", i+1, err)
		}
		stopChannels = append(stopChannels, stopCh)
	}

	c.logger.Info().
		Int("workers", workers).
		Str("queue", c.cfg.ResumeIngestQueue).
		Msg("简历解析消费者已启动")
	return stopChannels, nil
}

// handleMessage 返回消息处理函数。返回true表示确认消息，false表示重回队列。
func (c *IngestConsumer) handleMessage(ctx context.Context) func([]byte) bool {
	return func(payload []byte) bool {
		var msg storage.ResumeUploadedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// 无法解析的消息重回队列只会无限重投，直接确认丢弃
			c.logger.Error().Err(err).Str("payload", string(payload)).Msg("上传事件反序列化失败，丢弃消息")
			return true
		}
		if msg.ResumeID == "" || msg.RawFilePathOSS == "" {
			c.logger.Error().Interface("message", msg).Msg("上传事件缺少必要字段，丢弃消息")
			return true
		}

		if err := c.ingestor.IngestResume(ctx, &msg); err != nil {
			// 失败状态已落库且去重记录已清除，允许重新上传触发重试，
			// 不再重回队列避免对持续失败的文件反复消耗LLM配额
			c.logger.Error().Err(err).Str("resume_id", msg.ResumeID).Msg("简历解析失败，消息已确认")
			return true
		}
		return true
	}
}
