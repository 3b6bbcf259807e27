package agents

import (
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
)

// AgentType Agent 类型枚举
type AgentType string

const (
	AgentTypeExtraction      AgentType = "extraction"       // 文档提取/分类
	AgentTypeLegalReview     AgentType = "legal_review"     // 法务审查
	AgentTypeCompliance      AgentType = "compliance_check" // 合规检查
	AgentTypeFinancialReview AgentType = "financial_review" // 财务审查
	AgentTypeVendorEval      AgentType = "vendor_evaluation" // 供应商评估
	AgentTypeRiskAssessment  AgentType = "risk_assessment"  // 风险评估
	AgentTypeAnalytics       AgentType = "analytics"        // 数据分析
)

// Valid 检查是否为已知的 Agent 类型
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeExtraction, AgentTypeLegalReview, AgentTypeCompliance,
		AgentTypeFinancialReview, AgentTypeVendorEval, AgentTypeRiskAssessment,
		AgentTypeAnalytics:
		return true
	}
	return false
}

// AgentDefinition 租户内某类 Agent 的注册信息
// 派发任务前必须先在目录中解析到一个启用状态的定义
type AgentDefinition struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index:idx_agent_tenant_type"`

	// Agent 信息
	AgentType   AgentType `json:"agentType" gorm:"size:100;not null;index:idx_agent_tenant_type"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`

	// 执行配置
	Model        string  `json:"model" gorm:"size:100"` // 绑定的模型名
	SystemPrompt string  `json:"systemPrompt" gorm:"type:text"`
	Temperature  float64 `json:"temperature" gorm:"type:decimal(3,2);default:0.2"`
	MaxTokens    int     `json:"maxTokens" gorm:"default:4096"`

	// 状态
	// 不带 default 标签: 带默认值的零值字段在插入时会被 GORM 省略，停用注册会被写成启用
	Enabled bool `json:"enabled" gorm:"not null"`

	// 时间戳
	common.TimestampModel
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

// TableName 指定表名
func (AgentDefinition) TableName() string {
	return "agent_definitions"
}
