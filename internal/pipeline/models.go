package pipeline

import (
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
)

// Kind 流水线类型
type Kind string

const (
	// KindDefault 全量分析: extraction → legal → compliance → financial
	KindDefault Kind = "default"
	// KindDocumentOnly 仅文档处理: extraction → compliance
	KindDocumentOnly Kind = "document_only"
)

// StageStatus 阶段状态
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// OverallStatus 流水线聚合结果
type OverallStatus string

const (
	OverallProcessing OverallStatus = "processing"
	OverallCompleted  OverallStatus = "completed"
	OverallPartial    OverallStatus = "partial"
	OverallFailed     OverallStatus = "failed"
)

// StageSpec 阶段声明
// DependsOn 声明载荷依赖：被依赖阶段若已完成，其结果并入本阶段载荷。
// RunIf 为可选的 govaluate 表达式，对已有结果求值为 false 时跳过本阶段。
type StageSpec struct {
	AgentType agents.AgentType   `yaml:"agent_type" json:"agentType"`
	Operation string             `yaml:"operation" json:"operation"`
	DependsOn []agents.AgentType `yaml:"depends_on" json:"dependsOn,omitempty"`
	RunIf     string             `yaml:"run_if" json:"runIf,omitempty"`
}

// PipelineStage 一次执行中的阶段实况
type PipelineStage struct {
	Spec   StageSpec      `json:"spec"`
	Status StageStatus    `json:"status"`
	TaskID string         `json:"taskId,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// PipelineResult 一次编排调用的聚合结果
// 终态（completed/partial/failed）之后不再修改。
type PipelineResult struct {
	DocumentID     string          `json:"documentId"`
	DocumentResult map[string]any  `json:"documentResult,omitempty"`
	Stages         []PipelineStage `json:"stages"`
	OverallStatus  OverallStatus   `json:"overallStatus"`
}

// RunOptions 流水线选择
// Stages 非空时为显式自定义阶段列表，优先于 Kind。
type RunOptions struct {
	Kind   Kind        `json:"kind"`
	Stages []StageSpec `json:"stages,omitempty"`
}

// TaskHandle 派发返回的任务句柄（含回显的展示元数据）
type TaskHandle struct {
	TaskID    string           `json:"taskId"`
	AgentType agents.AgentType `json:"agentType"`
	AgentName string           `json:"agentName"`
	Operation string           `json:"operation"`
}

// DispatchRequest 派发请求
type DispatchRequest struct {
	AgentType  agents.AgentType
	Operation  string
	Payload    map[string]any
	Priority   int
	ContractID string
	VendorID   string
	DocumentID string
}

// DefaultOperation 各 Agent 类型的默认操作标签
func DefaultOperation(t agents.AgentType) string {
	switch t {
	case agents.AgentTypeExtraction:
		return "document_extraction"
	case agents.AgentTypeLegalReview:
		return "contract_analysis"
	case agents.AgentTypeCompliance:
		return "compliance_review"
	case agents.AgentTypeFinancialReview:
		return "financial_analysis"
	case agents.AgentTypeVendorEval:
		return "vendor_assessment"
	case agents.AgentTypeRiskAssessment:
		return "risk_analysis"
	case agents.AgentTypeAnalytics:
		return "analytics_report"
	}
	return string(t)
}
