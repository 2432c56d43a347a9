package question

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/fyerfyer/doc-quiz-system/internal/retrieval"
)

const (
	// DefaultLanguage 未指定语言时使用
	DefaultLanguage = "Python"

	// minContextLength 上下文短于该长度时改为依赖模型自身知识
	minContextLength = 100
)

// Prompt 组装好的出题请求
type Prompt struct {
	Text   string
	Schema map[string]any
	Topic  string
	Focus  Focus
}

const promptTemplate = `Generate one data structures and algorithms multiple choice question about "{{.Topic}}" using the {{.Language}} programming language.
{{if .HasContext}}
CONTEXT INFORMATION:
The following material from the knowledge base may be helpful:

{{.Context}}

Use this context ONLY where it is directly relevant to "{{.Topic}}". If it is not relevant, write the question from your own knowledge.
{{else}}
No specific context is available for this topic. Write the question from your own knowledge of {{.Topic}}.
{{end}}
FORMATTING REQUIREMENTS:
- The "question" field must contain only the question text, with no code snippets.
- If the question refers to code, put ALL of the code in the "code" field and refer to it as "the code below".
- Never put code fences (` + "```" + `) inside the "question" field.

CONTENT REQUIREMENTS:
- Focus on {{.Focus}} aspects of "{{.Topic}}".
- If the context uses a different programming language, express the question in {{.Language}}.
- Provide EXACTLY 4 answer choices. EXACTLY ONE of them is correct.
- Answer choices must be distinct and must not overlap.
- Give every choice its own explanation of why it is correct or incorrect.
- Include a valid reference to {{.Language}} documentation or a learning resource in "resources".

ANSWER FORMAT REQUIREMENTS:
- The "answer" field must repeat the correct choice text exactly as it appears in "choices".
- Check that the answer appears in the choices and that the explanations agree with it.

Respond with a single JSON object matching this schema:
{{.Schema}}
`

var tmpl = template.Must(template.New("question").Parse(promptTemplate))

// Composer 组装出题提示词
type Composer struct{}

// NewComposer 创建提示词组装器
func NewComposer() *Composer {
	return &Composer{}
}

// Compose 将检索片段按顺序以空行拼接为上下文，与主题、语言、出题角度和输出结构组成提示词
func (c *Composer) Compose(topic, language string, r retrieval.Result, focus Focus) (Prompt, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Prompt{}, fmt.Errorf("topic cannot be empty")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	if focus == "" {
		focus = FocusImplementation
	}

	schema, err := SchemaMap()
	if err != nil {
		return Prompt{}, fmt.Errorf("load question schema: %w", err)
	}
	schemaText, err := SchemaJSON()
	if err != nil {
		return Prompt{}, fmt.Errorf("load question schema: %w", err)
	}

	joined := strings.Join(r.Texts(), "\n\n")

	var sb strings.Builder
	err = tmpl.Execute(&sb, struct {
		Topic      string
		Language   string
		Context    string
		HasContext bool
		Focus      Focus
		Schema     string
	}{
		Topic:      topic,
		Language:   language,
		Context:    joined,
		HasContext: len([]rune(joined)) >= minContextLength,
		Focus:      focus,
		Schema:     string(schemaText),
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("render prompt: %w", err)
	}

	return Prompt{Text: sb.String(), Schema: schema, Topic: topic, Focus: focus}, nil
}
