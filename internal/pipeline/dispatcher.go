package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/metrics"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
	"github.com/dpxrk/Pactwise-sub001/internal/worker/tasks"

	"go.uber.org/zap"
)

// AgentResolver Agent 目录抽象
type AgentResolver interface {
	Resolve(ctx context.Context, tenantID string, agentType agents.AgentType) (*agents.AgentDefinition, error)
}

// Enqueuer 队列客户端抽象
type Enqueuer interface {
	EnqueueExecuteAgentTask(payload tasks.ExecuteAgentTaskPayload) error
}

// Dispatcher 任务派发器
// 先解析 Agent，再建任务记录，最后入队；解析失败时不产生任何记录。
type Dispatcher struct {
	directory AgentResolver
	store     *task.Store
	queue     Enqueuer
}

// NewDispatcher 创建派发器
func NewDispatcher(directory AgentResolver, store *task.Store, queue Enqueuer) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		store:     store,
		queue:     queue,
	}
}

// Dispatch 派发一个 Agent 任务，返回任务句柄
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*TaskHandle, error) {
	tc, err := tenant.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}

	// 1. 解析启用状态的 Agent；失败发生在任何记录创建之前
	def, err := d.directory.Resolve(ctx, tc.TenantID, req.AgentType)
	if err != nil {
		var be *common.BusinessError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, common.NewBusinessError(common.CodeWorkerUnavailable,
			fmt.Sprintf("解析 Agent 失败: %v", err))
	}

	// 2. 创建任务记录（status = pending），insert 事件经变更总线通知活动视图
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}
	record := &task.Task{
		TenantID:   tc.TenantID,
		AgentID:    def.ID,
		AgentType:  req.AgentType,
		Operation:  req.Operation,
		Priority:   priority,
		Payload:    req.Payload,
		ContractID: req.ContractID,
		VendorID:   req.VendorID,
		DocumentID: req.DocumentID,
	}
	if err := d.store.Create(ctx, record); err != nil {
		return nil, err
	}

	// 3. 入队；入队失败时把记录置为失败并报 DispatchFailed
	payload := tasks.ExecuteAgentTaskPayload{
		TaskID:    record.ID,
		TenantID:  tc.TenantID,
		AgentID:   def.ID,
		AgentType: string(req.AgentType),
		Operation: req.Operation,
	}
	if err := d.queue.EnqueueExecuteAgentTask(payload); err != nil {
		if _, failErr := d.store.Fail(ctx, tc.TenantID, record.ID,
			fmt.Sprintf("任务入队失败: %v", err)); failErr != nil {
			logger.WithContext(ctx).Error("入队失败后标记任务失败也失败",
				zap.String("task_id", record.ID),
				zap.Error(failErr),
			)
		}
		return nil, common.NewBusinessError(common.CodeDispatchFailed,
			fmt.Sprintf("任务入队失败: %v", err))
	}

	metrics.TasksDispatchedTotal.WithLabelValues(string(req.AgentType), tc.TenantID).Inc()
	logger.WithContext(ctx).Info("Agent 任务已派发",
		zap.String("task_id", record.ID),
		zap.String("agent_type", string(req.AgentType)),
		zap.String("operation", req.Operation),
	)

	return &TaskHandle{
		TaskID:    record.ID,
		AgentType: req.AgentType,
		AgentName: def.Name,
		Operation: req.Operation,
	}, nil
}
