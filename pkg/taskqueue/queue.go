// Package taskqueue 基于 asynq 的异步任务队列，任务状态另存于 redis 以便查询
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue 任务队列
type Queue interface {
	// Enqueue 创建任务记录并投递
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)

	// GetTask 获取任务，不存在时返回 ErrTaskNotFound
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByDocument 获取入库记录关联的全部任务
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)

	// WaitForTask 等待任务进入终态，timeout 为0表示只受 ctx 约束
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// UpdateTaskStatus 更新状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error

	// DeleteTask 删除任务记录，尚未执行的任务同时从队列移除
	DeleteTask(ctx context.Context, taskID string) error

	// Close 关闭连接
	Close() error
}

// Handler 任务处理器
type Handler interface {
	// ProcessTask 处理任务，返回的结果写入任务记录
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)
}

// HandlerFunc 函数形式的处理器
type HandlerFunc func(ctx context.Context, task *Task) (interface{}, error)

// ProcessTask 实现 Handler
func (f HandlerFunc) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	return f(ctx, task)
}

// Worker 消费队列
type Worker interface {
	RegisterHandler(taskType TaskType, handler Handler)
	Start() error
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	RetryLimit    int
	RetryDelay    time.Duration
	TaskTimeout   time.Duration // 单个任务的执行上限
	Queue         string        // asynq 队列名
	Logger        *logrus.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 4,
		RetryLimit:  0,
		RetryDelay:  30 * time.Second,
		TaskTimeout: 10 * time.Minute,
		Queue:       "default",
	}
}

// TaskError 任务错误
type TaskError string

func (e TaskError) Error() string {
	return string(e)
}

const (
	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = TaskError("task not found")
	// ErrTaskTimeout 等待任务超时
	ErrTaskTimeout = TaskError("task timed out")
	// ErrInvalidPayload 任务载荷无效
	ErrInvalidPayload = TaskError("invalid task payload")
)

// MarshalPayload 序列化载荷
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 反序列化载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Factory 队列工厂函数
type Factory func(cfg *Config) (Queue, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterQueueFactory 注册队列实现
func RegisterQueueFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// NewQueue 根据名称创建队列
func NewQueue(name string, cfg *Config) (Queue, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
