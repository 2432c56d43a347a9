package models

import "errors"

// 流水线错误分类，调用方通过 errors.Is 判断
var (
	// ErrEmbeddingUnavailable 向量化服务不可用，或返回空向量/维度不符
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreUnavailable 知识库存储不可用（连接失败、超时等）
	ErrStoreUnavailable = errors.New("knowledge store unavailable")

	// ErrTimeout 外部调用超时，与"服务不可用"区分
	ErrTimeout = errors.New("external call timed out")

	// ErrGenerationMalformed 生成结果无法解析为结构化数据
	ErrGenerationMalformed = errors.New("generation output malformed")

	// ErrGenerationInvalid 生成结果可解析，但不满足题目约束
	ErrGenerationInvalid = errors.New("generation output invalid")

	// ErrGenerationUnavailable 生成模型调用失败
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

var (
	// ErrDocumentNotFound 入库记录不存在
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")

	// ErrInvalidCategory 分类不在固定分类表中
	ErrInvalidCategory = errors.New("invalid category")

	// ErrUnsupportedFormat 不支持的文件格式
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument 文档没有可提取的文本
	ErrEmptyDocument = errors.New("document has no extractable text")
)
