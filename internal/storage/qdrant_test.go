package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQdrantTestServer 模拟Qdrant HTTP接口，记录收到的点并返回固定检索结果
func newQdrantTestServer(t *testing.T, receivedPoints *[]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			// 集合已存在
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]interface{}{
					"config": map[string]interface{}{
						"params": map[string]interface{}{
							"vectors": map[string]interface{}{"size": 4, "distance": "Cosine"},
						},
					},
				},
			})
		case r.Method == http.MethodPut:
			var body struct {
				Points []map[string]interface{} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*receivedPoints = append(*receivedPoints, body.Points...)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "time": 0.01})
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{
					{"id": "point-a", "score": 0.92, "payload": map[string]interface{}{"resume_id": "r-1"}},
					{"id": "point-b", "score": 0.55, "payload": map[string]interface{}{"resume_id": "r-2"}},
				},
				"status": "ok",
				"time":   0.01,
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func newTestQdrant(t *testing.T, endpoint string) *Qdrant {
	t.Helper()
	q, err := NewQdrant(&config.QdrantConfig{
		Endpoint:   endpoint,
		Collection: "test_evidence",
		Dimension:  4,
	})
	require.NoError(t, err)
	return q
}

func TestStoreEvidenceVectorsDeterministicIDs(t *testing.T) {
	var received []map[string]interface{}
	server := newQdrantTestServer(t, &received)
	defer server.Close()

	q := newTestQdrant(t, server.URL)
	chunks := []types.EvidenceChunk{
		{ChunkIndex: 0, Text: "负责订单系统开发"},
		{ChunkIndex: 1, Text: "主导Kafka消息管道建设"},
	}
	embeddings := [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}

	ids, err := q.StoreEvidenceVectors(context.Background(), "r-1", chunks, embeddings)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Len(t, received, 2)

	// 同一简历同一分块重复写入应得到相同点ID
	idsAgain, err := q.StoreEvidenceVectors(context.Background(), "r-1", chunks, embeddings)
	require.NoError(t, err)
	assert.Equal(t, ids, idsAgain)

	// 不同简历的点ID不同
	idsOther, err := q.StoreEvidenceVectors(context.Background(), "r-2", chunks, embeddings)
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], idsOther[0])
}

func TestStoreEvidenceVectorsValidation(t *testing.T) {
	var received []map[string]interface{}
	server := newQdrantTestServer(t, &received)
	defer server.Close()

	q := newTestQdrant(t, server.URL)

	// 数量不匹配
	_, err := q.StoreEvidenceVectors(context.Background(), "r-1",
		[]types.EvidenceChunk{{ChunkIndex: 0, Text: "a"}}, nil)
	require.Error(t, err)

	// 维度不匹配
	_, err = q.StoreEvidenceVectors(context.Background(), "r-1",
		[]types.EvidenceChunk{{ChunkIndex: 0, Text: "a"}}, [][]float64{{0.1, 0.2}})
	require.Error(t, err)

	// 空输入不报错
	ids, err := q.StoreEvidenceVectors(context.Background(), "r-1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearchEvidenceReturnsOwnerAndScore(t *testing.T) {
	var received []map[string]interface{}
	server := newQdrantTestServer(t, &received)
	defer server.Close()

	q := newTestQdrant(t, server.URL)
	hits, err := q.SearchEvidence(context.Background(), []float64{0.1, 0.2, 0.3, 0.4}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "point-a", hits[0].VectorKey)
	assert.Equal(t, "r-1", hits[0].OwnerID)
	require.NotNil(t, hits[0].Score, "Cosine度量应返回相似度分数")
	assert.InDelta(t, 0.92, *hits[0].Score, 1e-9)
	assert.Equal(t, "cosine", hits[0].Metric)
	assert.Nil(t, hits[0].Distance)
}

func TestSearchEvidenceRejectsWrongDimension(t *testing.T) {
	var received []map[string]interface{}
	server := newQdrantTestServer(t, &received)
	defer server.Close()

	q := newTestQdrant(t, server.URL)
	_, err := q.SearchEvidence(context.Background(), []float64{0.1}, 5)
	require.Error(t, err)
}
