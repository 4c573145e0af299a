package parser

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// mockChatModel 测试用LLM模拟器，按调用顺序返回预设响应
type mockChatModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

// Generate 实现model.ToolCallingChatModel接口
func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &schema.Message{
		Role:    schema.RoleType("assistant"),
		Content: m.responses[idx],
	}, nil
}

// Stream 实现model.ToolCallingChatModel接口
func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

// WithTools 实现model.ToolCallingChatModel接口
func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func (m *mockChatModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
