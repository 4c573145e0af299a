package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-match-go/internal/tracing"
)

var llmTracer = otel.Tracer("resume-match-go/llm")

// RateLimitedChatModel 对LLM模型的调用进行限流的代理。
// 所有提取/评估/分类调用都经过这里，span与错误分类在此统一记录。
type RateLimitedChatModel struct {
	original    model.ToolCallingChatModel
	modelName   string
	rateLimiter *TokenBucket
}

// NewRateLimitedChatModel 创建一个新的限流LLM模型代理。
// 容量设为QPM的一半，允许一定的突发流量。
func NewRateLimitedChatModel(original model.ToolCallingChatModel, qpm int) *RateLimitedChatModel {
	return &RateLimitedChatModel{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2),
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedChatModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedChatModel {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	ctx, span := llmTracer.Start(ctx, "llm.generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", rl.modelName),
		attribute.Int("llm.messages.count", len(messages)),
	)

	var response *schema.Message
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return response, nil
}

// Stream 代理Stream方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	ctx, span := llmTracer.Start(ctx, "llm.stream", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", rl.modelName),
		attribute.Int("llm.messages.count", len(messages)),
	)

	var stream *schema.StreamReader[*schema.Message]
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return stream, nil
}

// WithTools 代理WithTools方法
func (rl *RateLimitedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := rl.original.WithTools(tools)
	if err != nil {
		return nil, err
	}

	// 新代理沿用原有的限流器
	return &RateLimitedChatModel{
		original:    newModel,
		modelName:   rl.modelName,
		rateLimiter: rl.rateLimiter,
	}, nil
}

var _ model.ToolCallingChatModel = (*RateLimitedChatModel)(nil)

// NewChatModelWithRateLimit 根据模型QPM限制表创建带限流的LLM模型。
// 找到模型对应的QPM限制时，使用该限制值的90%作为安全值。
func NewChatModelWithRateLimit(original model.ToolCallingChatModel, modelName string, qpmLimits map[string]int, customQPM int, maxRetries int, retryWaitTime time.Duration) model.ToolCallingChatModel {
	qpm := customQPM

	if qpmLimits != nil && modelName != "" {
		if modelQPM, ok := qpmLimits[modelName]; ok && modelQPM > 0 {
			qpm = int(float64(modelQPM) * 0.9)
		}
	}

	if qpm <= 0 {
		qpm = 30 // 默认QPM
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}

	limitedModel := NewRateLimitedChatModel(original, qpm)
	limitedModel.modelName = modelName
	limitedModel.WithRetryPolicy(retryWaitTime, maxRetries)

	return limitedModel
}
