package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestQueue(t *testing.T) *RedisQueue {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Logger = quietLogger()

	q, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func enqueueIngest(t *testing.T, q *RedisQueue, docID string) string {
	id, err := q.Enqueue(context.Background(), TaskIngestDocument, docID, IngestPayload{
		DocumentID: docID,
		FileID:     "f.md",
		FileName:   "notes.md",
		Category:   "TREES",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func TestNewRedisQueueUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := NewRedisQueue(cfg)
	assert.Error(t, err)
}

func TestRedisQueueEnqueueAndGet(t *testing.T) {
	q := newTestQueue(t)
	id := enqueueIngest(t, q, "doc-1")

	task, err := q.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, TaskIngestDocument, task.Type)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "doc-1", task.DocumentID)

	var p IngestPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &p))
	assert.Equal(t, "notes.md", p.FileName)
	assert.Equal(t, "TREES", p.Category)

	_, err = q.GetTask(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRedisQueueTasksByDocument(t *testing.T) {
	q := newTestQueue(t)
	first := enqueueIngest(t, q, "doc-1")
	time.Sleep(5 * time.Millisecond)
	second := enqueueIngest(t, q, "doc-1")
	enqueueIngest(t, q, "doc-2")

	tasks, err := q.GetTasksByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)

	tasks, err = q.GetTasksByDocument(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRedisQueueUpdateStatus(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id := enqueueIngest(t, q, "doc-1")

	require.NoError(t, q.UpdateTaskStatus(ctx, id, StatusProcessing, nil, ""))
	task, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Equal(t, 1, task.Attempts)
	assert.Nil(t, task.CompletedAt)

	require.NoError(t, q.UpdateTaskStatus(ctx, id, StatusCompleted, IngestResult{SegmentCount: 3}, ""))
	task, err = q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var res IngestResult
	require.NoError(t, json.Unmarshal(task.Result, &res))
	assert.Equal(t, 3, res.SegmentCount)

	assert.True(t, errors.Is(q.UpdateTaskStatus(ctx, "missing", StatusFailed, nil, "x"), ErrTaskNotFound))
}

func TestRedisQueueWaitForTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id := enqueueIngest(t, q, "doc-1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.UpdateTaskStatus(ctx, id, StatusFailed, nil, "embedding unavailable")
	}()

	task, err := q.WaitForTask(ctx, id, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "embedding unavailable", task.Error)
}

func TestRedisQueueWaitForTaskTimeout(t *testing.T) {
	q := newTestQueue(t)
	id := enqueueIngest(t, q, "doc-1")

	_, err := q.WaitForTask(context.Background(), id, 100*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTaskTimeout))
}

func TestRedisQueueDeleteTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id := enqueueIngest(t, q, "doc-1")

	require.NoError(t, q.DeleteTask(ctx, id))
	_, err := q.GetTask(ctx, id)
	assert.True(t, errors.Is(err, ErrTaskNotFound))

	tasks, err := q.GetTasksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.True(t, errors.Is(q.DeleteTask(ctx, id), ErrTaskNotFound))
}

func TestWorkerProcess(t *testing.T) {
	q := newTestQueue(t)
	w := &RedisWorker{queue: q, handlers: map[TaskType]Handler{}, logger: quietLogger()}
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		id := enqueueIngest(t, q, "doc-ok")
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			var p IngestPayload
			if err := UnmarshalPayload(task.Payload, &p); err != nil {
				return nil, err
			}
			return IngestResult{SegmentCount: 2}, nil
		})

		require.NoError(t, w.process(ctx, id, h))
		task, err := q.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, 1, task.Attempts)
	})

	t.Run("failure is recorded", func(t *testing.T) {
		id := enqueueIngest(t, q, "doc-bad")
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return IngestResult{Error: "store unavailable"}, errors.New("store unavailable")
		})

		err := w.process(ctx, id, h)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))

		task, err := q.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "store unavailable", task.Error)
	})

	t.Run("invalid payload skips retry", func(t *testing.T) {
		id := enqueueIngest(t, q, "doc-invalid")
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, ErrInvalidPayload
		})
		assert.True(t, errors.Is(w.process(ctx, id, h), asynq.SkipRetry))
	})

	t.Run("missing task skips retry", func(t *testing.T) {
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})
		assert.True(t, errors.Is(w.process(ctx, "missing", h), asynq.SkipRetry))
	})
}

func TestNewQueueFactory(t *testing.T) {
	_, err := NewQueue("kafka", DefaultConfig())
	assert.Error(t, err)
}
