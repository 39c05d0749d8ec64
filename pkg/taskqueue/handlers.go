package taskqueue

import (
	"context"
	"fmt"
)

// HandlerFunc 以函数实现的任务处理器
type HandlerFunc struct {
	Types []TaskType
	Fn    func(ctx context.Context, task *Task) (interface{}, error)
}

// ProcessTask 调用处理函数
func (h HandlerFunc) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	if h.Fn == nil {
		return nil, fmt.Errorf("no handler function for task type %s", task.Type)
	}
	return h.Fn(ctx, task)
}

// GetTaskTypes 返回支持的任务类型
func (h HandlerFunc) GetTaskTypes() []TaskType {
	return h.Types
}

// DecodePayload 解析任务载荷，并将错误标记为 ErrInvalidPayload
func DecodePayload(task *Task, v interface{}) error {
	if err := UnmarshalPayload(task.Payload, v); err != nil {
		return fmt.Errorf("%w: task %s: %v", ErrInvalidPayload, task.ID, err)
	}
	return nil
}

// RegisterHandlers 将处理器注册到它声明的全部任务类型
func RegisterHandlers(w Worker, handlers ...Handler) {
	for _, h := range handlers {
		for _, t := range h.GetTaskTypes() {
			w.RegisterHandler(t, h)
		}
	}
}
