package processor

import (
	"strings"

	"resume-match-go/internal/types"
)

// WordChunker 按词数切分简历文本，相邻分块保留重叠，
// 避免一段证据被切分边界截断后检索不到。
type WordChunker struct {
	chunkWords   int
	overlapWords int
}

// NewWordChunker 创建分块器。词数或重叠配置非法时回退到默认值。
func NewWordChunker(chunkWords, overlapWords int) *WordChunker {
	if chunkWords <= 0 {
		chunkWords = 250
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	// 重叠不能吞掉整个分块，否则窗口无法前进
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 5
	}
	return &WordChunker{
		chunkWords:   chunkWords,
		overlapWords: overlapWords,
	}
}

// Chunk 将文本切分为带顺序编号的证据分块。
// 空文本或纯空白返回空切片。
func (c *WordChunker) Chunk(text string) []types.EvidenceChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []types.EvidenceChunk{}
	}

	step := c.chunkWords - c.overlapWords
	chunks := make([]types.EvidenceChunk, 0, (len(words)+step-1)/step)

	for start := 0; start < len(words); start += step {
		end := start + c.chunkWords
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, types.EvidenceChunk{
			ChunkIndex: len(chunks),
			Text:       strings.Join(words[start:end], " "),
		})

		// 末尾分块已覆盖剩余全部词，继续滑动只会产生前一块的子集
		if end == len(words) {
			break
		}
	}

	return chunks
}
