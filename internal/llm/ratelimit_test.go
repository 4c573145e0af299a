package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	// 容量2，速率60QPM=1令牌/秒
	tb := NewTokenBucket(60, 2)

	assert.True(t, tb.Allow(), "初始桶应有令牌")
	assert.True(t, tb.Allow(), "容量为2应允许第二个请求")
	assert.False(t, tb.Allow(), "令牌耗尽后应拒绝")
}

func TestTokenBucketWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1) // 速率极低，耗尽后需等待约60秒
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "上下文超时应中断等待")
}

type flakyModel struct {
	failures int
	calls    int
}

func (f *flakyModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("429 Too Many Requests")
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (f *flakyModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (f *flakyModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func TestRateLimitedModelRetriesRetryableErrors(t *testing.T) {
	inner := &flakyModel{failures: 2}
	limited := NewRateLimitedChatModel(inner, 6000)
	limited.WithRetryPolicy(time.Millisecond, 3)

	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err, "可重试错误应在重试后成功")
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 3, inner.calls, "前两次失败加一次成功共3次调用")
}

func TestRateLimitedModelGivesUpOnNonRetryable(t *testing.T) {
	inner := &brokenModel{}
	limited := NewRateLimitedChatModel(inner, 6000)
	limited.WithRetryPolicy(time.Millisecond, 3)

	_, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "不可重试错误不应触发重试")
}

type brokenModel struct {
	calls int
}

func (b *brokenModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	b.calls++
	return nil, errors.New("invalid api key")
}

func (b *brokenModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (b *brokenModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return b, nil
}
