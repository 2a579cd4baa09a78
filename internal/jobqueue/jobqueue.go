// Package jobqueue is a single-purpose Redis-backed work queue: background
// frame extraction, which Upload enqueues for every new job so the upload
// response does not wait for it. Everything else
// in the pipeline runs synchronously inside the request/operation call that
// triggered it — only this one step is deferred.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const queueName = "queue:extract_frames"

// Task is the unit of work dequeued by the frame-extraction worker loop.
type Task struct {
	JobID     string    `json:"jobId"`
	VideoPath string    `json:"videoPath"`
	FramesDir string    `json:"framesDir"`
	CreatedAt time.Time `json:"createdAt"`
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue schedules a background frame-extraction task.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	task.CreatedAt = time.Now()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout waiting for a task, returning nil if none
// arrived in that window.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response shape")
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Length reports how many tasks are currently queued, for health/metrics.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}
