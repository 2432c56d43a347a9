package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	taskKeyPrefix          = "quiz:task:"
	documentTasksKeyPrefix = "quiz:document_tasks:"
	statusChannelPrefix    = "quiz:task_status:"
	defaultTaskExpiry      = 7 * 24 * time.Hour
	pollInterval           = time.Second
)

// RedisQueue asynq 负责投递，任务记录用 go-redis 单独保存
type RedisQueue struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	redisClient *redis.Client
	cfg         *Config
	logger      *logrus.Logger
}

func (cfg *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewRedisQueue 创建队列并检查 redis 连接
func NewRedisQueue(cfg *Config) (*RedisQueue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{
		client:      asynq.NewClient(cfg.redisOpt()),
		inspector:   asynq.NewInspector(cfg.redisOpt()),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Enqueue 先写任务记录再投递，asynq 任务ID与记录ID相同
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}
	if err := q.save(ctx, task); err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(q.cfg.Queue),
		asynq.MaxRetry(q.cfg.RetryLimit),
	}
	if q.cfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.TaskTimeout))
	}
	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		q.remove(ctx, task)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued")
	return task.ID, nil
}

// GetTask 获取任务记录
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return &task, nil
}

// GetTasksByDocument 按创建时间先后返回
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	ids, err := q.redisClient.SMembers(ctx, documentTasksKeyPrefix+documentID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := q.GetTask(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			// 记录已过期
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks, nil
}

func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// WaitForTask 订阅状态通知，同时定期轮询以防漏掉通知
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pubsub := q.redisClient.Subscribe(ctx, statusChannelPrefix+taskID)
	defer pubsub.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTaskTimeout
			}
			return nil, err
		}
		if task.Status.Done() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-pubsub.Channel():
		case <-ticker.C:
		}
	}
}

// UpdateTaskStatus 更新状态并发布通知
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now
	switch {
	case status == StatusProcessing:
		task.Attempts++
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case status.Done():
		task.CompletedAt = &now
	}
	if result != nil {
		data, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = data
	}
	task.Error = errMsg

	if err := q.save(ctx, task); err != nil {
		return err
	}
	return q.redisClient.Publish(ctx, statusChannelPrefix+taskID, string(status)).Err()
}

// DeleteTask 删除任务记录
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := q.remove(ctx, task); err != nil {
		return err
	}
	// 正在执行的任务无法删除
	if err := q.inspector.DeleteTask(q.cfg.Queue, taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Debug("Task not removed from asynq queue")
	}
	return nil
}

// Close 关闭连接
func (q *RedisQueue) Close() error {
	errs := []error{q.client.Close(), q.inspector.Close(), q.redisClient.Close()}
	return errors.Join(errs...)
}

func (q *RedisQueue) save(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := q.redisClient.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, defaultTaskExpiry)
	if task.DocumentID != "" {
		docKey := documentTasksKeyPrefix + task.DocumentID
		pipe.SAdd(ctx, docKey, task.ID)
		pipe.Expire(ctx, docKey, defaultTaskExpiry)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (q *RedisQueue) remove(ctx context.Context, task *Task) error {
	pipe := q.redisClient.TxPipeline()
	pipe.Del(ctx, taskKeyPrefix+task.ID)
	if task.DocumentID != "" {
		pipe.SRem(ctx, documentTasksKeyPrefix+task.DocumentID, task.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// RedisWorker asynq 服务端
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建工作者
func NewRedisWorker(queue *RedisQueue) *RedisWorker {
	cfg := queue.cfg
	server := asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return cfg.RetryDelay
		},
		Logger: queue.logger,
	})

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 非阻塞启动
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, handler := range w.handlers {
		h := handler
		mux.HandleFunc(string(taskType), func(ctx context.Context, t *asynq.Task) error {
			return w.process(ctx, string(t.Payload()), h)
		})
		w.logger.WithField("task_type", taskType).Info("Registered task handler")
	}
	return w.server.Start(mux)
}

// Stop 等待进行中的任务结束后停止
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// process 执行一个任务并回写状态
func (w *RedisWorker) process(ctx context.Context, taskID string, h Handler) error {
	task, err := w.queue.GetTask(ctx, taskID)
	if err != nil {
		w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load task")
		if errors.Is(err, ErrTaskNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		w.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to mark task as processing")
	}

	result, err := h.ProcessTask(ctx, task)
	if err != nil {
		if uerr := w.queue.UpdateTaskStatus(context.WithoutCancel(ctx), taskID, StatusFailed, result, err.Error()); uerr != nil {
			w.logger.WithError(uerr).WithField("task_id", taskID).Error("Failed to mark task as failed")
		}
		if errors.Is(err, ErrInvalidPayload) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to mark task as completed")
	}
	return nil
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}
