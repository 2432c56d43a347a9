package question

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "question.schema.json"

var (
	schemaOnce     sync.Once
	schemaJSON     []byte
	schemaCompiled *validator.Schema
	schemaErr      error
)

func loadSchema() {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		// 模型偶尔附带额外字段，不视为错误
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&Spec{})
	schemaJSON, schemaErr = json.Marshal(s)
	if schemaErr != nil {
		return
	}
	schemaCompiled, schemaErr = validator.CompileString(schemaURL, string(schemaJSON))
}

// SchemaJSON 题目结构的 JSON Schema（由 Spec 反射生成）
func SchemaJSON() ([]byte, error) {
	schemaOnce.Do(loadSchema)
	return schemaJSON, schemaErr
}

// SchemaMap 以 map 形式返回 Schema，用于模型的结构化输出参数
// 去掉 $schema/$id 等模型接口不识别的元字段
func SchemaMap() (map[string]any, error) {
	raw, err := SchemaJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode question schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

func compiledSchema() (*validator.Schema, error) {
	schemaOnce.Do(loadSchema)
	return schemaCompiled, schemaErr
}
