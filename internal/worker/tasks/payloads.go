package tasks

// Task Types
const (
	TypeExecuteAgentTask = "agent:execute_task"
)

// ExecuteAgentTaskPayload Agent 任务执行载荷
// 只携带定位信息；任务输入以库中记录为准
type ExecuteAgentTaskPayload struct {
	TaskID    string `json:"task_id"`
	TenantID  string `json:"tenant_id"`
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	Operation string `json:"operation"`
}
