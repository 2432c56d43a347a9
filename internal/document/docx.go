package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXParser Word文档解析器，整篇作为一个单元
type DOCXParser struct{}

// NewDOCXParser 创建DOCX解析器
func NewDOCXParser() Parser {
	return &DOCXParser{}
}

func (p *DOCXParser) Parse(r io.Reader, filename string) ([]Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx content: %w", err)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx %s: %w", filename, err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			if t := paragraphText(v); t != "" {
				paragraphs = append(paragraphs, t)
			}
		case *docx.Table:
			if t := tableText(v); t != "" {
				paragraphs = append(paragraphs, t)
			}
		}
	}

	text := normalizeText(strings.Join(paragraphs, "\n\n"))
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// tableText 每行单元格用 " | " 连接
func tableText(tbl *docx.Table) string {
	var rows []string
	for _, row := range tbl.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, para := range cell.Paragraphs {
				if t := paragraphText(para); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if line := strings.TrimSpace(strings.Join(cells, " | ")); line != "" {
			rows = append(rows, line)
		}
	}
	return strings.Join(rows, "\n")
}
