package document

import (
	"fmt"
	stdhtml "html"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
// 先渲染为HTML再去掉标签，代码块内容保留
type MarkdownParser struct{}

// NewMarkdownParser 创建Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

func (p *MarkdownParser) Parse(r io.Reader, filename string) ([]Unit, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}

	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := mdParser.Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	text := normalizeText(extractTextFromHTML(string(rendered)))
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

var blockReplacer = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"</p>", "\n\n",
	"<li>", "- ",
	"</li>", "\n",
	"</pre>", "\n\n",
	"</h1>", "\n\n",
	"</h2>", "\n\n",
	"</h3>", "\n\n",
	"</h4>", "\n\n",
	"</h5>", "\n\n",
	"</h6>", "\n\n",
)

// extractTextFromHTML 去掉HTML标签并还原实体
func extractTextFromHTML(src string) string {
	result := blockReplacer.Replace(src)

	var b strings.Builder
	inTag := false
	for _, r := range result {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return stdhtml.UnescapeString(b.String())
}
