package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

// Unit 文档的一个逻辑单元
// PDF 每页一个单元，其他格式整篇一个单元
type Unit struct {
	Page int    // 页码，从1开始；非分页格式为0
	Text string // 单元文本
}

// Parser 文档解析器接口
// 负责把不同格式的原始字节解析为逻辑单元
type Parser interface {
	// Parse 从Reader解析文档，filename 仅用于日志和临时文件命名
	Parse(r io.Reader, filename string) ([]Unit, error)
}

// ContentType 文档内容类型
type ContentType string

const (
	PDF       ContentType = "pdf"
	Markdown  ContentType = "markdown"
	PlainText ContentType = "plaintext"
	DOCX      ContentType = "docx"
	Unknown   ContentType = "unknown"
)

// ParserFactory 根据文件扩展名创建解析器
func ParserFactory(filename string) (Parser, error) {
	switch DetectContentType(filename) {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	case DOCX:
		return NewDOCXParser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// DetectContentType 根据扩展名判断内容类型
func DetectContentType(filename string) ContentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt", ".text":
		return PlainText
	case ".docx":
		return DOCX
	default:
		return Unknown
	}
}

// ParseFile 解析本地文件
func ParseFile(path string) ([]Unit, error) {
	p, err := ParserFactory(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return p.Parse(f, filepath.Base(path))
}

// TotalLength 所有单元文本的字符数之和
func TotalLength(units []Unit) int {
	n := 0
	for _, u := range units {
		n += len([]rune(u.Text))
	}
	return n
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\v]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// normalizeText 压缩行内空白，保留段落换行
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
