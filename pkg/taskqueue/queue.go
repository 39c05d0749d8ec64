package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue 异步任务队列
// 任务记录与执行调度分开保存，调用方通过任务ID查询进度和结果
type Queue interface {
	Enqueue(ctx context.Context, taskType TaskType, fileID string, payload interface{}) (string, error)
	// EnqueueIn 延迟 delay 后才允许被处理
	EnqueueIn(ctx context.Context, taskType TaskType, fileID string, payload interface{}, delay time.Duration) (string, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)
	// GetTasksByFile 返回某个文件的全部任务，已过期的任务会被跳过
	GetTasksByFile(ctx context.Context, fileID string) ([]*Task, error)
	// WaitForTask 阻塞到任务完成或失败，timeout 为0时只受 ctx 约束
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error
	NotifyTaskUpdate(ctx context.Context, taskID string) error
	Close() error
}

// Handler 任务处理器，返回值作为任务结果保存
type Handler interface {
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)
	GetTaskTypes() []TaskType
}

// Worker 从队列取任务并交给已注册的处理器
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
	RetryLimit    int           // 失败后的最大重试次数，载荷错误不重试
	RetryDelay    time.Duration // 两次重试的间隔
	TaskTimeout   time.Duration // 单个任务的执行上限，0表示不限制
	TaskExpiry    time.Duration // 任务记录在Redis中的保留时间
	Queues        map[string]int
	Logger        *logrus.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 2,
		RetryLimit:  1,
		RetryDelay:  30 * time.Second,
		TaskTimeout: 30 * time.Minute,
		TaskExpiry:  7 * 24 * time.Hour,
		Queues:      map[string]int{defaultQueueName: 1},
	}
}

// withDefaults 补齐未设置的字段
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Concurrency <= 0 {
		out.Concurrency = def.Concurrency
	}
	if out.RetryLimit < 0 {
		out.RetryLimit = 0
	}
	if out.TaskExpiry <= 0 {
		out.TaskExpiry = def.TaskExpiry
	}
	if len(out.Queues) == 0 {
		out.Queues = def.Queues
	}
	if out.Logger == nil {
		out.Logger = logrus.New()
		out.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &out
}

// IsFinished 任务是否已结束
func (t *Task) IsFinished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// TaskError 队列层面的错误
type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskNotFound   = TaskError("task not found")
	ErrTaskTimeout    = TaskError("task timed out")
	ErrInvalidPayload = TaskError("invalid task payload")
)

// MarshalPayload 序列化任务载荷，nil 序列化为空对象
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 解析任务载荷，空载荷视为无效
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}

// Factory 队列工厂函数
type Factory func(cfg *Config) (Queue, error)

var queueFactories = make(map[string]Factory)

// RegisterQueueFactory 注册队列实现
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// NewQueue 按名称创建队列
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, ok := queueFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
