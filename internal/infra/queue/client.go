package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/config"
	"github.com/dpxrk/Pactwise-sub001/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueExecuteAgentTask(payload tasks.ExecuteAgentTaskPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueExecuteAgentTask(payload tasks.ExecuteAgentTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	t := asynq.NewTask(tasks.TypeExecuteAgentTask, data)

	// Agent 执行超时由轮询器的预算兜底，这里给单次执行较宽的时限
	// 不做队列级重试：失败语义要原样落到任务记录上，由流水线层决定如何继续
	info, err := c.client.Enqueue(t,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("agents"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	_ = info
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
