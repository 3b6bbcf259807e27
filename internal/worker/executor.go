package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/ai"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

// AgentExecutor Agent 执行器抽象
// 对编排子系统而言 Agent 是不透明的：给定定义和任务记录，产出结构化结果或错误。
type AgentExecutor interface {
	Execute(ctx context.Context, def *agents.AgentDefinition, t *task.Task) (map[string]any, error)
}

// ModelExecutor 基于模型调用的默认执行器
type ModelExecutor struct {
	client *ai.Client
}

// NewModelExecutor 创建模型执行器
func NewModelExecutor(client *ai.Client) *ModelExecutor {
	return &ModelExecutor{client: client}
}

// Execute 把任务载荷交给模型，要求返回 JSON 结果
func (e *ModelExecutor) Execute(ctx context.Context, def *agents.AgentDefinition, t *task.Task) (map[string]any, error) {
	payloadJSON, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("序列化任务载荷失败: %w", err)
	}

	systemPrompt := def.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf("你是 %s 类型的合同分析 Agent，只输出 JSON 对象。", def.AgentType)
	}
	userPrompt := fmt.Sprintf("操作: %s\n输入:\n%s", t.Operation, string(payloadJSON))

	raw, err := e.client.Complete(ctx, systemPrompt, userPrompt, def.Temperature, def.MaxTokens)
	if err != nil {
		return nil, err
	}

	result, err := parseResultJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("解析模型输出失败: %w", err)
	}
	return result, nil
}

// parseResultJSON 宽松解析模型输出：容忍 markdown 代码块包裹
func parseResultJSON(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result map[string]any
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, err
	}
	return result, nil
}
