package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
	"github.com/dpxrk/Pactwise-sub001/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AgentRunner Agent 执行器抽象，便于注入 mock
type AgentRunner interface {
	Execute(ctx context.Context, def *agents.AgentDefinition, t *task.Task) (map[string]any, error)
}

// AgentResolver Agent 目录抽象
type AgentResolver interface {
	GetByID(ctx context.Context, tenantID, agentID string) (*agents.AgentDefinition, error)
}

// AgentHandler 消费 agent:execute_task 队列消息
// 执行过程对任务记录的写入是终态的唯一来源：pending → in_progress → completed/failed。
type AgentHandler struct {
	store    *task.Store
	resolver AgentResolver
	runner   AgentRunner
	logger   *zap.Logger
}

func NewAgentHandler(store *task.Store, resolver AgentResolver, runner AgentRunner, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		store:    store,
		resolver: resolver,
		runner:   runner,
		logger:   logger,
	}
}

func (h *AgentHandler) HandleExecuteAgentTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.ExecuteAgentTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行 Agent 任务",
		zap.String("task_id", p.TaskID),
		zap.String("agent_type", p.AgentType),
		zap.String("operation", p.Operation),
	)

	// 1. 读取任务记录，终态任务直接跳过（可能已被外部取消）
	record, err := h.store.Get(ctx, p.TenantID, p.TaskID)
	if err != nil {
		return fmt.Errorf("查询任务记录失败: %w", err)
	}
	if record.Status.IsTerminal() {
		h.logger.Warn("任务已处于终态，跳过执行",
			zap.String("task_id", p.TaskID),
			zap.String("status", string(record.Status)),
		)
		return nil
	}

	// 2. 标记执行中
	record, err = h.store.MarkRunning(ctx, p.TenantID, p.TaskID)
	if err != nil {
		return fmt.Errorf("标记任务执行中失败: %w", err)
	}

	// 3. 解析 Agent 定义并执行
	def, err := h.resolver.GetByID(ctx, p.TenantID, p.AgentID)
	if err != nil {
		h.failTask(ctx, p.TenantID, p.TaskID, fmt.Sprintf("Agent 定义不可用: %v", err))
		return nil
	}

	result, err := h.runner.Execute(ctx, def, record)
	if err != nil {
		h.failTask(ctx, p.TenantID, p.TaskID, err.Error())
		return nil
	}

	// 4. 写入成功终态
	if _, err := h.store.Complete(ctx, p.TenantID, p.TaskID, result); err != nil {
		return fmt.Errorf("写入任务结果失败: %w", err)
	}

	h.logger.Info("Agent 任务执行完成", zap.String("task_id", p.TaskID))
	return nil
}

// failTask 执行失败落库；落库本身失败只记日志，不触发队列重试
func (h *AgentHandler) failTask(ctx context.Context, tenantID, taskID, errMsg string) {
	if _, err := h.store.Fail(ctx, tenantID, taskID, errMsg); err != nil {
		h.logger.Error("写入任务失败状态失败",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
}
