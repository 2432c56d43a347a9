// Package question 负责出题提示词的组装、生成结果的解析与校验
package question

import "strings"

// ChoiceCount 每道题固定的选项数
const ChoiceCount = 4

// Choice 单个选项及其解析
type Choice struct {
	Choice      string `json:"choice" jsonschema:"minLength=1"`
	Explanation string `json:"explanation"`
}

// Spec 通过校验的选择题
// question 不含代码块，代码放在 code 字段；answer 与某一个选项文本完全一致
type Spec struct {
	Question    string   `json:"question" jsonschema:"minLength=1"`
	Code        string   `json:"code,omitempty"`
	Choices     []Choice `json:"choices" jsonschema:"minItems=4,maxItems=4"`
	Answer      string   `json:"answer" jsonschema:"minLength=1"`
	Explanation string   `json:"explanation"`
	Resources   string   `json:"resources"`
}

// CorrectChoice 返回正确选项
func (s *Spec) CorrectChoice() (Choice, bool) {
	answer := strings.TrimSpace(s.Answer)
	for _, c := range s.Choices {
		if strings.TrimSpace(c.Choice) == answer {
			return c, true
		}
	}
	return Choice{}, false
}
