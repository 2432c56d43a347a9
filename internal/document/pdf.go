package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF解析器，每页一个单元
// 优先使用 ledongthuc/pdf 按页提取文本，失败时退回 pdfcpu 提取内容流
type PDFParser struct {
	DisableFallback bool
}

// NewPDFParser 创建PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

func (p *PDFParser) Parse(r io.Reader, filename string) ([]Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf content: %w", err)
	}

	units, err := extractPages(data)
	if (err != nil || len(units) == 0) && !p.DisableFallback {
		fallback, ferr := extractWithPdfcpu(data, filename)
		if ferr == nil && len(fallback) > 0 {
			return fallback, nil
		}
		if err == nil {
			err = ferr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %w", err)
	}
	return units, nil
}

// extractPages 使用 ledongthuc/pdf 逐页提取
// 该库遇到截断或损坏的文件会 panic，这里转换为错误
func extractPages(data []byte) (units []Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("corrupted pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = normalizeText(text); text != "" {
			units = append(units, Unit{Page: i, Text: text})
		}
	}
	return units, nil
}

var (
	pageFileSuffix = regexp.MustCompile(`_(\d+)\.txt$`)
	showTextOp     = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)
)

// extractWithPdfcpu 把每页内容流导出到临时目录，再取出 Tj 文本
func extractWithPdfcpu(data []byte, filename string) (units []Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("pdfcpu extract %s: %v", filename, r)
		}
	}()

	tmpDir, err := os.MkdirTemp("", "quiz-pdf-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inFile, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	if err := api.ExtractContentFile(inFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("pdfcpu extract %s: %w", filename, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		m := pageFileSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		raw, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		if err != nil {
			continue
		}
		if text := contentStreamText(string(raw)); text != "" {
			units = append(units, Unit{Page: page, Text: text})
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Page < units[j].Page })
	return units, nil
}

// contentStreamText 从内容流中取出 Tj 操作的字符串
func contentStreamText(stream string) string {
	var parts []string
	for _, m := range showTextOp.FindAllStringSubmatch(stream, -1) {
		s := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`).Replace(m[1])
		parts = append(parts, s)
	}
	return normalizeText(strings.Join(parts, "\n"))
}
