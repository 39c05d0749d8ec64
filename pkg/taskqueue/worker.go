package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RedisWorker 运行asynq服务端，按任务类型分发给处理器
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建工作者，cfg 为nil时沿用队列的配置
func NewRedisWorker(queue *RedisQueue, cfg *Config) Worker {
	if cfg == nil {
		cfg = queue.cfg
	}
	cfg = cfg.withDefaults()
	delay := cfg.RetryDelay

	server := asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(int, error, *asynq.Task) time.Duration {
			return delay
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

func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 非阻塞启动，Stop 等待进行中的任务结束
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, h := range w.handlers {
		mux.HandleFunc(string(taskType), w.wrap(h))
		w.logger.WithField("task_type", taskType).Info("Task handler registered")
	}
	return w.server.Start(mux)
}

func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// wrap 在处理前后维护任务记录
// 还有重试机会的失败保持 pending，载荷错误直接失败且不重试
func (w *RedisWorker) wrap(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		taskID := string(t.Payload())
		log := w.logger.WithField("task_id", taskID)

		task, err := w.queue.GetTask(ctx, taskID)
		if errors.Is(err, ErrTaskNotFound) {
			log.Warn("Task record missing, dropping")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}

		w.transition(ctx, log, taskID, StatusProcessing, nil, "")

		start := time.Now()
		result, err := h.ProcessTask(ctx, task)
		if err == nil {
			w.transition(ctx, log, taskID, StatusCompleted, result, "")
			log.WithField("latency", time.Since(start).String()).Info("Task completed")
			return nil
		}

		invalid := errors.Is(err, ErrInvalidPayload)
		status := StatusFailed
		if !invalid && willRetry(ctx) {
			status = StatusPending
		}
		w.transition(ctx, log, taskID, status, nil, err.Error())
		log.WithError(err).WithField("status", status).Warn("Task failed")

		if invalid {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

func (w *RedisWorker) transition(ctx context.Context, log *logrus.Entry, taskID string, status TaskStatus, result interface{}, errMsg string) {
	if err := w.queue.UpdateTaskStatus(ctx, taskID, status, result, errMsg); err != nil {
		log.WithError(err).WithField("status", status).Error("Failed to update task status")
	}
	if err := w.queue.NotifyTaskUpdate(ctx, taskID); err != nil {
		log.WithError(err).Debug("Failed to publish task update")
	}
}

func willRetry(ctx context.Context) bool {
	retried, ok1 := asynq.GetRetryCount(ctx)
	limit, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried < limit
}
