package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix        = "regdoc:"
	defaultQueueName = "default"
)

func taskKey(id string) string { return keyPrefix + "task:" + id }
func fileTasksKey(fileID string) string { return keyPrefix + "file_tasks:" + fileID }
func statusChannel(id string) string { return keyPrefix + "task_status:" + id }

// RedisQueue 基于asynq的任务队列
// asynq 任务只携带任务ID，任务记录以JSON保存在单独的键中，供API查询
type RedisQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	rdb       *redis.Client
	cfg       *Config
	logger    *logrus.Logger
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewRedisQueue 连接Redis并创建队列
func NewRedisQueue(cfg *Config) (Queue, error) {
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{
		client:    asynq.NewClient(cfg.redisOpt()),
		inspector: asynq.NewInspector(cfg.redisOpt()),
		rdb:       rdb,
		cfg:       cfg,
		logger:    cfg.Logger,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, fileID string, payload interface{}) (string, error) {
	return q.enqueue(ctx, taskType, fileID, payload)
}

func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, fileID string, payload interface{}, delay time.Duration) (string, error) {
	return q.enqueue(ctx, taskType, fileID, payload, asynq.ProcessIn(delay))
}

func (q *RedisQueue) enqueue(ctx context.Context, taskType TaskType, fileID string, payload interface{}, opts ...asynq.Option) (string, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		FileID:     fileID,
		Status:     StatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}
	if err := q.save(ctx, task); err != nil {
		return "", err
	}

	opts = append(opts,
		asynq.TaskID(task.ID),
		asynq.Queue(defaultQueueName),
		asynq.MaxRetry(q.cfg.RetryLimit),
	)
	if q.cfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.TaskTimeout))
	}
	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		_ = q.forget(ctx, task)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": taskType,
		"file_id":   fileID,
	}).Info("Task enqueued")
	return task.ID, nil
}

func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

func (q *RedisQueue) GetTasksByFile(ctx context.Context, fileID string) ([]*Task, error) {
	ids, err := q.rdb.SMembers(ctx, fileTasksKey(fileID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of file %s: %w", fileID, err)
	}
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := q.GetTask(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// WaitForTask 订阅状态通知，同时每秒轮询一次以防错过通知
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sub := q.rdb.Subscribe(ctx, statusChannel(taskID))
	defer sub.Close()
	updates := sub.Channel()

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ErrTaskTimeout
		case err != nil:
			return nil, err
		case task.IsFinished():
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-updates:
		case <-poll.C:
		}
	}
}

// DeleteTask 删除任务记录，尚未开始执行的任务同时从asynq移除
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := q.forget(ctx, task); err != nil {
		return err
	}
	if !task.IsFinished() {
		if err := q.inspector.DeleteTask(defaultQueueName, taskID); err != nil {
			q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to delete task from asynq queue")
		}
	}
	return nil
}

// UpdateTaskStatus 更新状态，首次进入处理中时记录开始时间，结束时记录完成时间
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now
	task.Error = errMsg
	if status == StatusProcessing && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if task.IsFinished() {
		task.CompletedAt = &now
	}
	if result != nil {
		if task.Result, err = MarshalPayload(result); err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	return q.save(ctx, task)
}

func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.rdb.Publish(ctx, statusChannel(taskID), "updated").Err()
}

func (q *RedisQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.rdb.Close())
}

// save 写入任务记录并登记到文件的任务集合
func (q *RedisQueue) save(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, taskKey(task.ID), data, q.cfg.TaskExpiry)
		if task.FileID != "" {
			p.SAdd(ctx, fileTasksKey(task.FileID), task.ID)
			p.Expire(ctx, fileTasksKey(task.FileID), q.cfg.TaskExpiry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// forget 删除任务记录及其在文件集合中的登记
func (q *RedisQueue) forget(ctx context.Context, task *Task) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, taskKey(task.ID))
		if task.FileID != "" {
			p.SRem(ctx, fileTasksKey(task.FileID), task.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", task.ID, err)
	}
	return nil
}

func init() {
	RegisterQueueFactory("redis", NewRedisQueue)
}
