package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error) {
	return f.text, nil, f.err
}

type fakeProfileExtractor struct {
	profile *types.ResumeProfile
	err     error
}

func (f *fakeProfileExtractor) ExtractProfile(ctx context.Context, resumeText string) (*types.ResumeProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

type fakeSkillExtractor struct {
	experience types.SkillExperienceMap
	report     *types.BatchReport
	called     bool
}

func (f *fakeSkillExtractor) Extract(ctx context.Context, resumeText string, skills []string) (types.SkillExperienceMap, *types.BatchReport, error) {
	f.called = true
	return f.experience, f.report, nil
}

type fakeEmbedder struct {
	dims int
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = make([]float64, f.dims)
	}
	return out, nil
}

type fakeFiles struct {
	data map[string][]byte
}

func (f *fakeFiles) GetResumeFile(ctx context.Context, objectKey string) ([]byte, error) {
	data, ok := f.data[objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeVectors struct {
	stored  map[string]int
	deleted []string
}

func (f *fakeVectors) StoreEvidenceVectors(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, embeddings [][]float64) ([]string, error) {
	if f.stored == nil {
		f.stored = make(map[string]int)
	}
	f.stored[resumeID] = len(chunks)
	keys := make([]string, len(chunks))
	for i := range chunks {
		keys[i] = fmt.Sprintf("vec-%s-%d", resumeID, i)
	}
	return keys, nil
}

func (f *fakeVectors) SearchEvidence(ctx context.Context, queryVector []float64, topK int) ([]types.EvidenceHit, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteResumeVectors(ctx context.Context, resumeID string) error {
	f.deleted = append(f.deleted, resumeID)
	return nil
}

type fakeProfileStore struct {
	statuses   []string
	chunkKeys  []string
	upserted   *types.ResumeProfile
	upsertErr  error
	lastReport *types.BatchReport
}

func (f *fakeProfileStore) UpdateResumeProcessingStatus(ctx context.Context, resumeID string, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeProfileStore) ReplaceResumeChunks(ctx context.Context, resumeID string, chunks []types.EvidenceChunk, vectorKeys []string) error {
	f.chunkKeys = vectorKeys
	return nil
}

func (f *fakeProfileStore) UpsertResumeProfile(ctx context.Context, profile *types.ResumeProfile, fileName, ossPath, parserVersion string, report *types.BatchReport) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = profile
	f.lastReport = report
	return nil
}

type fakeLocker struct {
	denyLock    bool
	acquired    int
	released    int
	removedMD5s []string
}

func (f *fakeLocker) AcquireIngestLock(ctx context.Context, resumeID string) (string, error) {
	f.acquired++
	if f.denyLock {
		return "", nil
	}
	return "lock-value", nil
}

func (f *fakeLocker) ReleaseIngestLock(ctx context.Context, resumeID string, lockValue string) (bool, error) {
	f.released++
	return true, nil
}

func (f *fakeLocker) RemoveRawFileMD5(ctx context.Context, md5 string) error {
	f.removedMD5s = append(f.removedMD5s, md5)
	return nil
}

func testIngestConfig() *config.Config {
	return &config.Config{
		ActiveParserVersion: "1.0",
		Ingest: config.IngestConfig{
			ChunkWords:        10,
			ChunkOverlapWords: 2,
			ExtractionTimeout: "30s",
		},
	}
}

func newTestComponents() (IngestComponents, *fakeProfileStore, *fakeLocker, *fakeVectors, *fakeSkillExtractor) {
	store := &fakeProfileStore{}
	locker := &fakeLocker{}
	vectors := &fakeVectors{}
	skillExtractor := &fakeSkillExtractor{
		experience: types.SkillExperienceMap{
			"go": {SkillName: "Go", TotalMonths: 24},
		},
		report: &types.BatchReport{Succeeded: 1},
	}

	comp := IngestComponents{
		PDFExtractor: &fakeExtractor{text: "负责 订单 系统 的 Go 服务 开发 与 性能 优化 主导 Kafka 消息 管道 建设"},
		Profile: &fakeProfileExtractor{profile: &types.ResumeProfile{
			Name:   "张三",
			Skills: []string{"Go", "Kafka"},
		}},
		SkillExtractor: skillExtractor,
		Embedder:       &fakeEmbedder{dims: 4},
		Files: &fakeFiles{data: map[string][]byte{
			"resume/r-1/original.pdf": []byte("%PDF-fake"),
		}},
		Vectors:  vectors,
		Profiles: store,
		Locks:    locker,
	}
	return comp, store, locker, vectors, skillExtractor
}

func uploadedMsg() *storage.ResumeUploadedMessage {
	return &storage.ResumeUploadedMessage{
		ResumeID:         "r-1",
		OriginalFilename: "candidate.pdf",
		RawFilePathOSS:   "resume/r-1/original.pdf",
		RawFileMD5:       "abc123",
	}
}

func TestIngestResumeHappyPath(t *testing.T) {
	comp, store, locker, vectors, skillExtractor := newTestComponents()
	ingestor, err := NewResumeIngestor(comp, testIngestConfig())
	require.NoError(t, err)

	err = ingestor.IngestResume(context.Background(), uploadedMsg())
	require.NoError(t, err)

	assert.True(t, skillExtractor.called, "画像含技能时应触发技能经验提取")
	require.NotNil(t, store.upserted)
	assert.Equal(t, "r-1", store.upserted.ResumeID, "画像上的ResumeID应来自消息")
	assert.Equal(t, 24, store.upserted.SkillExperience["go"].TotalMonths)
	require.NotNil(t, store.lastReport)
	assert.Equal(t, 1, store.lastReport.Succeeded)

	assert.Greater(t, vectors.stored["r-1"], 0, "分块向量应写入向量库")
	assert.Len(t, store.chunkKeys, vectors.stored["r-1"], "分块文本与向量键应一一对应")
	assert.Equal(t, []string{"r-1"}, vectors.deleted, "入库前应清理该简历的历史向量点")

	assert.Contains(t, store.statuses, models.StatusParsing)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released, "成功路径也应释放解析锁")
	assert.Empty(t, locker.removedMD5s, "成功时不应清除去重记录")
}

func TestIngestResumeSkipsWhenLockHeld(t *testing.T) {
	comp, store, locker, _, _ := newTestComponents()
	locker.denyLock = true

	ingestor, err := NewResumeIngestor(comp, testIngestConfig())
	require.NoError(t, err)

	err = ingestor.IngestResume(context.Background(), uploadedMsg())
	require.NoError(t, err, "拿不到锁应静默跳过而非报错")
	assert.Nil(t, store.upserted)
	assert.Empty(t, store.statuses, "跳过时不应改动解析状态")
}

func TestIngestResumeFailureMarksStatusAndClearsDedup(t *testing.T) {
	comp, store, locker, _, _ := newTestComponents()
	comp.PDFExtractor = &fakeExtractor{err: errors.New("corrupt pdf")}

	ingestor, err := NewResumeIngestor(comp, testIngestConfig())
	require.NoError(t, err)

	err = ingestor.IngestResume(context.Background(), uploadedMsg())
	require.Error(t, err)

	assert.Contains(t, store.statuses, models.StatusParsingFailed, "失败应落库PARSING_FAILED状态")
	assert.Equal(t, []string{"abc123"}, locker.removedMD5s, "失败应清除MD5去重记录以允许重传")
	assert.Equal(t, 1, locker.released, "失败路径也应释放解析锁")
}

func TestIngestResumeEmptyTextFails(t *testing.T) {
	comp, store, _, _, _ := newTestComponents()
	comp.PDFExtractor = &fakeExtractor{text: ""}

	ingestor, err := NewResumeIngestor(comp, testIngestConfig())
	require.NoError(t, err)

	err = ingestor.IngestResume(context.Background(), uploadedMsg())
	require.Error(t, err)
	assert.Contains(t, store.statuses, models.StatusParsingFailed)
}

func TestNewResumeIngestorValidatesDeps(t *testing.T) {
	comp, _, _, _, _ := newTestComponents()
	comp.Profile = nil

	_, err := NewResumeIngestor(comp, testIngestConfig())
	require.Error(t, err, "缺少画像提取器应拒绝创建")
}
