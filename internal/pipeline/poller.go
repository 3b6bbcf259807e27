package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/metrics"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// RemovalScheduler 活动视图的延迟移除入口
type RemovalScheduler interface {
	ScheduleRemoval(taskID string)
}

// RecordReader 任务记录只读访问
type RecordReader interface {
	Get(ctx context.Context, tenantID, taskID string) (*task.Task, error)
}

// CompletionPoller 任务完成轮询器
// 以固定间隔采样任务状态，直到观察到终态或尝试预算耗尽。
// 超时是轮询器自己的判定：预算耗尽不会把任务记录强制迁移到 timeout。
type CompletionPoller struct {
	store       RecordReader
	sink        notification.Sink
	tracker     RemovalScheduler
	interval    time.Duration
	maxAttempts int
}

// PollerOption 配置轮询器
type PollerOption func(*CompletionPoller)

// WithPollInterval 设置轮询间隔
func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *CompletionPoller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithMaxAttempts 设置轮询次数预算
func WithMaxAttempts(n int) PollerOption {
	return func(p *CompletionPoller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRemovalScheduler 终态后调度活动视图的延迟移除
func WithRemovalScheduler(tracker RemovalScheduler) PollerOption {
	return func(p *CompletionPoller) {
		p.tracker = tracker
	}
}

// NewCompletionPoller 创建轮询器，默认 60 次 × 2 秒
func NewCompletionPoller(store RecordReader, sink notification.Sink, opts ...PollerOption) *CompletionPoller {
	p := &CompletionPoller{
		store:       store,
		sink:        sink,
		interval:    2 * time.Second,
		maxAttempts: 60,
	}
	if p.sink == nil {
		p.sink = notification.NopSink{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Await 等待任务到达终态
// 恰好观察 maxAttempts 次；之后以 TaskTimedOut 结束。
// 每一种终态结局（成功或失败）都触发一次通知，并调度活动视图的延迟移除。
func (p *CompletionPoller) Await(ctx context.Context, handle *TaskHandle) (map[string]any, error) {
	tc, err := tenant.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	notice := notification.Notice{
		TenantID:  tc.TenantID,
		TaskID:    handle.TaskID,
		AgentType: handle.AgentType,
		AgentName: handle.AgentName,
		Operation: handle.Operation,
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		record, err := p.store.Get(ctx, tc.TenantID, handle.TaskID)
		if err != nil {
			return nil, err
		}

		if record.Status.IsTerminal() {
			metrics.TaskPollAttempts.WithLabelValues(string(handle.AgentType)).Observe(float64(attempt))
			metrics.TaskWaitDuration.WithLabelValues(string(handle.AgentType)).Observe(time.Since(start).Seconds())
			metrics.TasksTerminalTotal.WithLabelValues(string(handle.AgentType), string(record.Status)).Inc()
			p.scheduleRemoval(handle.TaskID)
			return p.settle(ctx, record, notice)
		}

		// 最后一次观察后不再休眠
		if attempt < p.maxAttempts {
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// 预算耗尽：轮询器层面的超时判定，不回写任务记录
	metrics.TasksTerminalTotal.WithLabelValues(string(handle.AgentType), string(task.StatusTimeout)).Inc()
	notice.Detail = fmt.Sprintf("在 %d 次轮询内未观察到终态", p.maxAttempts)
	p.sink.NotifyFailed(ctx, notice)
	p.scheduleRemoval(handle.TaskID)
	return nil, common.NewBusinessError(common.CodeTaskTimedOut,
		fmt.Sprintf("任务 %s 执行超时", handle.TaskID))
}

// settle 把终态记录转换为结果或类型化错误
func (p *CompletionPoller) settle(ctx context.Context, record *task.Task, notice notification.Notice) (map[string]any, error) {
	switch record.Status {
	case task.StatusCompleted:
		p.sink.NotifyCompleted(ctx, notice)
		return record.Result, nil
	case task.StatusTimeout:
		notice.Detail = record.ErrorMessage
		p.sink.NotifyFailed(ctx, notice)
		return nil, common.NewBusinessError(common.CodeTaskTimedOut, record.ErrorMessage)
	default:
		// failed 与外部发起的 cancelled 都按执行失败上抛
		errMsg := record.ErrorMessage
		if errMsg == "" {
			errMsg = fmt.Sprintf("任务以 %s 状态结束", record.Status)
		}
		notice.Detail = errMsg
		p.sink.NotifyFailed(ctx, notice)
		return nil, common.NewBusinessError(common.CodeTaskFailed, errMsg)
	}
}

func (p *CompletionPoller) scheduleRemoval(taskID string) {
	if p.tracker != nil {
		p.tracker.ScheduleRemoval(taskID)
	}
}
