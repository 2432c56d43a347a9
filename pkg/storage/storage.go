// Package storage 暂存异步入库的上传文件，入库完成后删除
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound 文件不存在
var ErrNotFound = errors.New("stored file not found")

// FileInfo 暂存文件信息
type FileInfo struct {
	ID       string // 存储键，形如 <uuid>.<ext>，保留扩展名以便选择解析器
	Name     string // 原始文件名
	Size     int64
	MimeType string
}

// Storage 文件暂存接口
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(ctx context.Context, r io.Reader, filename string) (FileInfo, error)

	// Open 读取文件，不存在时返回 ErrNotFound
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Delete 删除文件，文件不存在不视为错误
	Delete(ctx context.Context, id string) error

	// Exists 检查文件是否存在
	Exists(ctx context.Context, id string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string // local | minio
	Local LocalConfig
	Minio MinioConfig
}

// New 按配置创建存储
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// newID 生成存储键
func newID(filename string) string {
	return uuid.New().String() + strings.ToLower(filepath.Ext(filename))
}

// validID 拒绝带路径分隔符的键
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid file id %q", id)
	}
	return nil
}

// MimeType 根据扩展名判断MIME类型
func MimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
