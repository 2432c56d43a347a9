package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Response 统一的响应结构
type Response struct {
	Text         string    // 生成的文本
	TokenCount   int       // 使用的token数
	ModelName    string    // 使用的模型名称
	FinishReason string    // 结束原因
	FinishTime   time.Time // 完成时间
}

// 常用模型名称
const (
	ModelGeminiFlash = "gemini-2.0-flash"
	ModelQwenTurbo   = "qwen-turbo"
	ModelQwenPlus    = "qwen-plus"
	ModelQwenMax     = "qwen-max"
)
