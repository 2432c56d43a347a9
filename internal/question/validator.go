package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const codeFence = "```"

// ValidationError 生成结果可解析但不满足题目约束
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("generation output invalid: field %q: %s", e.Field, e.Reason)
}

// Is 匹配 models.ErrGenerationInvalid
func (e *ValidationError) Is(target error) bool {
	return target == models.ErrGenerationInvalid
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StripCodeFence 去掉包裹整个输出的 ```json ... ``` 代码块
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, codeFence) {
		return s
	}
	s = strings.TrimPrefix(s, codeFence)
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// 去掉语言标记，如 json
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, codeFence)
	return strings.TrimSpace(s)
}

// Parse 把模型原始输出解析为题目
// 先解码为松散结构并按 Schema 校验，再做结构校验，任一步失败都不会返回题目
func Parse(raw string) (*Spec, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", models.ErrGenerationMalformed)
	}

	var loose any
	if err := json.Unmarshal([]byte(body), &loose); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationMalformed, err)
	}
	obj, ok := loose.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %T", models.ErrGenerationMalformed, loose)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile question schema: %w", err)
	}
	if err := schema.Validate(obj); err != nil {
		return nil, schemaViolation(err)
	}

	var spec Spec
	if err := json.Unmarshal([]byte(body), &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationMalformed, err)
	}
	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate 结构校验：4 个互不相同的选项，answer 恰好等于其中一个，
// code 非空时 question 中不得出现代码块
func Validate(s *Spec) error {
	if strings.TrimSpace(s.Question) == "" {
		return invalid("question", "must not be empty")
	}
	if len(s.Choices) != ChoiceCount {
		return invalid("choices", "expected %d choices, got %d", ChoiceCount, len(s.Choices))
	}

	seen := make(map[string]struct{}, len(s.Choices))
	for i, c := range s.Choices {
		text := strings.TrimSpace(c.Choice)
		if text == "" {
			return invalid(fmt.Sprintf("choices[%d].choice", i), "must not be empty")
		}
		if _, dup := seen[text]; dup {
			return invalid(fmt.Sprintf("choices[%d].choice", i), "duplicate choice %q", text)
		}
		seen[text] = struct{}{}
	}

	answer := strings.TrimSpace(s.Answer)
	matches := 0
	for _, c := range s.Choices {
		if strings.TrimSpace(c.Choice) == answer {
			matches++
		}
	}
	if matches != 1 {
		return invalid("answer", "must equal exactly one choice, matched %d", matches)
	}

	if strings.TrimSpace(s.Code) != "" && strings.Contains(s.Question, codeFence) {
		return invalid("question", "contains a code fence while code is set")
	}
	return nil
}

// schemaViolation 取最深层的错误位置作为字段名
func schemaViolation(err error) error {
	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Field: "$", Reason: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if field == "" {
		field = "$"
	}
	return &ValidationError{Field: strings.ReplaceAll(field, "/", "."), Reason: leaf.Message}
}
