package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-match-go/internal/config"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// AliyunEmbedder 通过DashScope的OpenAI兼容端点生成文本向量，
// 实现 cloudwego/eino 的 embedding.Embedder 接口。
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// AliyunEmbedderOption 配置 AliyunEmbedder
type AliyunEmbedderOption func(*AliyunEmbedder)

// WithEmbedderLogger 设置日志记录器
func WithEmbedderLogger(logger zerolog.Logger) AliyunEmbedderOption {
	return func(e *AliyunEmbedder) {
		e.logger = logger
	}
}

// NewAliyunEmbedder 创建新的阿里云Embedder
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig, opts ...AliyunEmbedderOption) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	embedder := &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(embedder)
	}

	return embedder, nil
}

// GetDimensions 返回嵌入器配置的维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// ModelVersion 返回向量模型标识，随画像与缓存记录持久化
func (a *AliyunEmbedder) ModelVersion() string {
	return a.model
}

type embeddingRequest struct {
	Input      interface{} `json:"input"` // string 或 []string
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"` // text-embedding-v3 支持
}

type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *embeddingAPIError `json:"error,omitempty"`
}

type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本转换为向量, 实现 embedding.Embedder 接口
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := embeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	a.logger.Debug().Int("texts", len(texts)).Str("model", effectiveModel).Msg("发送Embedding请求")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError embeddingAPIError
		detailedError := fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			detailedError = fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s", resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		a.logger.Error().Err(detailedError).Msg("Embedding API调用失败")
		return nil, detailedError
	}

	var parsedResp embeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w. Body: %s", err, string(body))
	}

	// 部分API错误会在200响应体里返回
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s", parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
	}

	outputEmbeddings := make([][]float64, len(parsedResp.Data))
	for _, dataEntry := range parsedResp.Data {
		// 按Index归位，响应顺序不保证与输入一致
		if dataEntry.Index >= 0 && dataEntry.Index < len(outputEmbeddings) {
			outputEmbeddings[dataEntry.Index] = dataEntry.Embedding
		}
	}

	a.logger.Debug().
		Int("texts", len(texts)).
		Int("prompt_tokens", parsedResp.Usage.PromptTokens).
		Int("total_tokens", parsedResp.Usage.TotalTokens).
		Msg("Embedding请求完成")

	return outputEmbeddings, nil
}
