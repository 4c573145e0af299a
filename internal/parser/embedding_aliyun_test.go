package parser_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingTestServer 返回一个模拟DashScope兼容端点的测试服务器，
// 对每条输入文本返回固定维度的向量。
func newEmbeddingTestServer(t *testing.T, dimensions int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.Header.Get("Authorization"), "Bearer ")

		var req struct {
			Input interface{} `json:"input"`
			Model string      `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var count int
		switch input := req.Input.(type) {
		case string:
			count = 1
		case []interface{}:
			count = len(input)
		}

		type dataEntry struct {
			Object    string    `json:"object"`
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string      `json:"object"`
			Data   []dataEntry `json:"data"`
			Model  string      `json:"model"`
		}{Object: "list", Model: req.Model}

		for i := 0; i < count; i++ {
			vec := make([]float64, dimensions)
			vec[0] = float64(i + 1)
			// 乱序返回，验证按Index归位
			resp.Data = append([]dataEntry{{Object: "embedding", Embedding: vec, Index: i}}, resp.Data...)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestAliyunEmbedderEmbedStrings(t *testing.T) {
	server := newEmbeddingTestServer(t, 8)
	defer server.Close()

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{
		Model:      "text-embedding-v3",
		Dimensions: 8,
		BaseURL:    server.URL,
	})
	require.NoError(t, err)

	texts := []string{"候选人精通Go语言", "负责Kafka消息管道建设"}
	embeddings, err := embedder.EmbedStrings(context.Background(), texts)

	require.NoError(t, err, "EmbedStrings不应返回错误")
	require.Len(t, embeddings, len(texts), "向量数应与输入文本数一致")
	for i, emb := range embeddings {
		assert.Len(t, emb, 8, "第%d个向量维度不符", i)
	}
	// 响应乱序时仍按输入顺序归位
	assert.Equal(t, 1.0, embeddings[0][0])
	assert.Equal(t, 2.0, embeddings[1][0])
}

func TestAliyunEmbedderEmptyInput(t *testing.T) {
	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{})
	require.NoError(t, err)

	embeddings, err := embedder.EmbedStrings(context.Background(), nil)

	require.NoError(t, err, "空输入应返回空切片而非错误")
	require.NotNil(t, embeddings)
	require.Empty(t, embeddings)
}

func TestAliyunEmbedderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid input","type":"invalid_request_error","code":"400"}`))
	}))
	defer server.Close()

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"text"})
	require.Error(t, err, "非200响应应返回错误")
	assert.Contains(t, err.Error(), "API调用失败")
}

func TestNewAliyunEmbedderNoAPIKey(t *testing.T) {
	_, err := parser.NewAliyunEmbedder("", config.EmbeddingConfig{})
	require.Error(t, err, "缺少API密钥应返回错误")
	assert.Contains(t, err.Error(), "API密钥不能为空")
}
