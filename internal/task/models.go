package task

import (
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
)

// Status 任务状态枚举
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

// IsTerminal 判断是否为终态
// 终态之后禁止任何进一步迁移
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// CanTransition 判断状态迁移是否合法
// pending → in_progress → {completed, failed, cancelled, timeout}
// pending 也可以直接进入终态（例如派发后立即被取消）
func (s Status) CanTransition(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return to == StatusInProgress || to.IsTerminal()
	case StatusInProgress:
		return to.IsTerminal()
	}
	return false
}

// Task 一次已派发的 Agent 工作单元
// 记录只由执行它的 Worker（经由 Store）写入终态；轮询方只读。
type Task struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	// 派发信息
	AgentID   string           `json:"agentId" gorm:"type:uuid;index"`
	AgentType agents.AgentType `json:"agentType" gorm:"size:100;not null;index"`
	Operation string           `json:"operation" gorm:"size:100;not null"`
	Priority  int              `json:"priority" gorm:"default:5"`

	// 状态
	Status Status `json:"status" gorm:"size:50;not null;default:pending;index"`

	// 输入输出
	// Result 仅在 completed 时非空；ErrorMessage 仅在 failed/timeout 时非空
	Payload      map[string]any `json:"payload" gorm:"type:jsonb;serializer:json"`
	Result       map[string]any `json:"result" gorm:"type:jsonb;serializer:json"`
	ErrorMessage string         `json:"errorMessage" gorm:"type:text"`

	// 业务关联
	ContractID string `json:"contractId,omitempty" gorm:"type:uuid;index"`
	VendorID   string `json:"vendorId,omitempty" gorm:"type:uuid;index"`
	DocumentID string `json:"documentId,omitempty" gorm:"type:uuid;index"`

	// 时间
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;autoCreateTime;index"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// TableName 指定表名
func (Task) TableName() string {
	return "agent_tasks"
}
