package document

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// PlainTextParser 纯文本解析器
type PlainTextParser struct{}

// NewPlainTextParser 创建纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

func (p *PlainTextParser) Parse(r io.Reader, filename string) ([]Unit, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("text file %s is not valid UTF-8", filename)
	}

	text := normalizeText(string(content))
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}
