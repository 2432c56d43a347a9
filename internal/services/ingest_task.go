package services

import (
	"context"

	"github.com/fyerfyer/doc-quiz-system/pkg/taskqueue"
)

// IngestTaskHandler 返回处理异步入库任务的 Handler
func IngestTaskHandler(svc *IngestService) taskqueue.Handler {
	return taskqueue.HandlerFunc(func(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
		var payload taskqueue.IngestPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return nil, err
		}
		res, err := svc.ProcessStored(ctx, payload.DocumentID)
		if err != nil {
			return taskqueue.IngestResult{Error: err.Error()}, err
		}
		return taskqueue.IngestResult{SegmentCount: res.SegmentCount}, nil
	})
}
