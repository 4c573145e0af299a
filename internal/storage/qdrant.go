package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-match-go/internal/config"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("resume-match-go/storage/qdrant")

// QdrantPointIDNamespace 用于生成确定性向量点ID的命名空间。
// 同一份简历的同一分块总是得到相同的点ID，保证重复入库幂等。
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("9b1f60ad-24c1-4f0e-b6a3-52d1c07e93d4"))

// VectorDatabase 向量数据库接口
type VectorDatabase interface {
	// StoreEvidenceVectors 写入一份简历的分块向量，返回各分块的向量键
	StoreEvidenceVectors(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, embeddings [][]float64) ([]string, error)

	// SearchEvidence 按查询向量检索证据分块
	SearchEvidence(ctx context.Context, queryVector []float64, topK int) ([]types.EvidenceHit, error)

	// DeleteResumeVectors 删除某份简历的全部向量点
	DeleteResumeVectors(ctx context.Context, resumeID string) error
}

// 确保Qdrant实现了VectorDatabase接口
var _ VectorDatabase = (*Qdrant)(nil)

// Qdrant 提供向量数据库功能
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	httpClient     *http.Client
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端并确保集合存在
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "resume_evidence"
	}

	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024 // 与阿里云Embedding默认维度一致
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}
	return q, nil
}

// ensureCollectionExists 确保向量集合存在，不存在时创建
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	url := fmt.Sprintf("%s/collections/%s", q.endpoint, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("创建检查集合请求失败: %w", err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("发送检查集合请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		span.AddEvent("collection_not_found", trace.WithAttributes(
			attribute.String("action", "create_collection"),
		))
		return q.createCollection(ctx)
	} else if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("检查集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("读取集合信息响应失败: %w", err)
	}
	if err := json.Unmarshal(body, &collectionInfo); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("解析集合信息失败: %w", err)
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance
	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		span.AddEvent("collection_config_mismatch", trace.WithAttributes(
			attribute.Int("expected_vector_size", q.vectorSize),
			attribute.String("expected_distance", q.distanceMetric),
			attribute.Int("existing_vector_size", existingSize),
			attribute.String("existing_distance", existingDistance),
		))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	createReqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}

	var result struct {
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collectionName), createReqBody, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建集合失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// StoreEvidenceVectors 写入一份简历的分块向量。
// 向量键按 resumeID+分块下标确定性生成，重复写入同一分块会覆盖旧点。
func (q *Qdrant) StoreEvidenceVectors(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, embeddings [][]float64) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.StoreEvidenceVectors",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "store_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("resume.id", resumeID),
		attribute.Int("vectors.count", len(embeddings)),
	)

	if len(chunks) != len(embeddings) {
		err := fmt.Errorf("chunks数量(%d)与embeddings数量(%d)不匹配", len(chunks), len(embeddings))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(embeddings) == 0 {
		span.SetStatus(codes.Ok, "no vectors to store")
		return []string{}, nil
	}

	points := make([]interface{}, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, embedding := range embeddings {
		if len(embedding) != q.vectorSize {
			err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(embedding), q.vectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		chunk := chunks[i]
		idSource := fmt.Sprintf("resume_id:%s_chunk:%d", resumeID, chunk.ChunkIndex)
		pointID := uuid.NewV5(QdrantPointIDNamespace, idSource).String()
		ids = append(ids, pointID)

		points = append(points, map[string]interface{}{
			"id":     pointID,
			"vector": embedding,
			"payload": map[string]interface{}{
				"resume_id":    resumeID,
				"chunk_index":  chunk.ChunkIndex,
				"content_text": tracing.TruncateString(chunk.Text, tracing.MaxChunkPayloadLength),
				"source":       "resume",
			},
		})
	}

	var result struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName),
		map[string]interface{}{"points": points}, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SearchEvidence 按查询向量检索证据分块。
// Cosine/Dot 度量下引擎返回相似度分数，其余度量返回距离，
// 两种情况都原样带回，由检索层统一归一化。
func (q *Qdrant) SearchEvidence(ctx context.Context, queryVector []float64, topK int) ([]types.EvidenceHit, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchEvidence",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", topK),
		attribute.Int("query_vector.size", len(queryVector)),
	)

	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(queryVector), q.vectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	searchReq := map[string]interface{}{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]types.EvidenceHit, 0, len(result.Result))
	for _, point := range result.Result {
		hit := types.EvidenceHit{VectorKey: point.ID}
		if owner, ok := point.Payload["resume_id"].(string); ok {
			hit.OwnerID = owner
		}
		score := point.Score
		switch strings.ToLower(q.distanceMetric) {
		case "cosine", "dot":
			hit.Score = &score
			hit.Metric = "cosine"
		default:
			hit.Distance = &score
			hit.Metric = "l2"
		}
		hits = append(hits, hit)
	}

	span.SetAttributes(
		attribute.Int("search.results.count", len(hits)),
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// DeleteResumeVectors 删除某份简历的全部向量点，用于重新入库前清场
func (q *Qdrant) DeleteResumeVectors(ctx context.Context, resumeID string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeleteResumeVectors",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("resume.id", resumeID),
	)

	reqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key":   "resume_id",
					"match": map[string]interface{}{"value": resumeID},
				},
			},
		},
	}

	var result struct {
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), reqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collectionName),
	)

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", q.collectionName),
		map[string]interface{}{"exact": true}, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("qdrant.points.count", result.Result.Count))
	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

// doRequest 发送HTTP请求并解析JSON响应，统一记录span与错误分类
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var req *http.Request
	var err error
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, nil)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
