package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	// DashScope 的 OpenAI 兼容端点
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// AliyunQwenChatModel 通过 OpenAI 兼容协议访问阿里云通义千问，
// 实现 model.ToolCallingChatModel 接口供提取器与评估器使用。
// 提取任务只依赖纯文本补全，不绑定任何工具。
type AliyunQwenChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// QwenOption 配置 AliyunQwenChatModel
type QwenOption func(*AliyunQwenChatModel)

// WithQwenHTTPTimeout 设置HTTP请求超时
func WithQwenHTTPTimeout(timeout time.Duration) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.httpClient.Timeout = timeout
	}
}

// WithQwenLogger 设置日志记录器
func WithQwenLogger(logger zerolog.Logger) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.logger = logger
	}
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string, opts ...QwenOption) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	m := &AliyunQwenChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info().Str("api_url", url).Str("model", mn).Msg("使用阿里云通义千问 LLM 客户端")
	return m, nil
}

// ModelName 返回当前使用的模型名
func (aq *AliyunQwenChatModel) ModelName() string {
	return aq.modelName
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type chatChoice struct {
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
	Message      struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
}

type chatCompletionResponse struct {
	Id      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := chatCompletionRequest{
		Model:    aq.modelName,
		Messages: messages,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	aq.logger.Debug().Str("model", aq.modelName).Int("request_bytes", len(jsonData)).Msg("发送LLM请求")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	choice := apiResp.Choices[0]
	responseContent := ""
	if choice.Message.Content != nil {
		responseContent = *choice.Message.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(choice.Message.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口。提取流水线只使用同步补全，未实现流式。
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel 的 Stream 方法未实现")
}

// WithTools 满足 model.ToolCallingChatModel 接口。
// 提取与评估任务通过提示词约束JSON输出，不使用工具调用。
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return aq, nil
}

var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
