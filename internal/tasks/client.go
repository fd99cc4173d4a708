package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client 包装 asynq.Client，实现 service.Enqueuer。
type Client struct {
	inner *asynq.Client
}

// NewClient 创建任务队列客户端。
func NewClient(inner *asynq.Client) *Client {
	if inner == nil {
		panic("asynq client cannot be nil for tasks.Client")
	}
	return &Client{inner: inner}
}

// Enqueue 将任务投递到指定队列。
func (c *Client) Enqueue(ctx context.Context, taskType string, payload []byte, queue string) error {
	if queue == "" {
		queue = "default"
	}
	task := asynq.NewTask(taskType, payload)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.Queue(queue)); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
