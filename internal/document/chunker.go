package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrTooManyChunks 分段数超过 MaxChunks，文档整体拒绝而不是截断
var ErrTooManyChunks = errors.New("document exceeds the maximum number of segments")

// Span 一段文本在源文本中的位置（按字符计）
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunk 把文本切成定长、带重叠的片段
// 下一段起点为 max(end-overlap, start+1)，保证 overlap >= size 时也能结束
func Chunk(text string, size, overlap int) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var spans []Span
	start := 0
	for {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end, Text: string(runes[start:end])})
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}

// Segment 写入知识库前的文本分段
type Segment struct {
	Text     string
	Start    int // 在所属单元中的起始偏移
	End      int
	Index    int // 文档内全局序号
	Page     int
	Source   string
	Category models.Category
}

// SegmentMeta 附加到每个分段的文档级元数据
type SegmentMeta struct {
	Source   string
	Category models.Category
}

// ChunkerConfig 分段配置
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MaxChunks    int // 单个文档的分段上限，0 表示不限制
}

// DefaultChunkerConfig 默认分段配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Chunker 按逻辑单元分段
type Chunker struct {
	config ChunkerConfig
}

// NewChunker 创建分段器
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	return &Chunker{config: cfg}
}

// Config 返回当前配置
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Split 对每个单元独立分段，并给每个分段附上来源和分类
// 超过 MaxChunks 时返回 ErrTooManyChunks
func (c *Chunker) Split(units []Unit, meta SegmentMeta) ([]Segment, error) {
	var segments []Segment
	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		for _, sp := range Chunk(u.Text, c.config.ChunkSize, c.config.ChunkOverlap) {
			if c.config.MaxChunks > 0 && len(segments) >= c.config.MaxChunks {
				return nil, fmt.Errorf("%w: limit %d", ErrTooManyChunks, c.config.MaxChunks)
			}
			segments = append(segments, Segment{
				Text:     sp.Text,
				Start:    sp.Start,
				End:      sp.End,
				Index:    len(segments),
				Page:     u.Page,
				Source:   meta.Source,
				Category: meta.Category,
			})
		}
	}
	return segments, nil
}
