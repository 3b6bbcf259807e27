package pipeline

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
)

// buildPayload 组装阶段载荷
// 基础字段为实体标识，随后并入文档提取产物，最后把 DependsOn 中
// 已完成阶段的结果以 "<agent_type>_result" 键注入。
func buildPayload(spec StageSpec, req RunRequest, docResult *extraction.Result, done map[agents.AgentType]*PipelineStage) map[string]any {
	payload := map[string]any{}
	if req.ContractID != "" {
		payload["contract_id"] = req.ContractID
	}
	if req.VendorID != "" {
		payload["vendor_id"] = req.VendorID
	}
	if docResult != nil {
		payload["document_id"] = docResult.DocumentID
		payload["document_text"] = docResult.Text
		payload["document_classification"] = docResult.Classification
	}

	for _, dep := range spec.DependsOn {
		prior, ok := done[dep]
		if !ok || prior.Status != StageCompleted || prior.Result == nil {
			continue
		}
		payload[fmt.Sprintf("%s_result", dep)] = prior.Result
	}
	return payload
}

// evalRunIf 求值阶段的 run_if 表达式
// 可引用的参数: 各前序阶段状态（如 legal_review_status）、文档分类
// （document_classification）与置信度（document_confidence）。
// 表达式缺省或求值出错时保守放行，由阶段自身的失败隔离兜底。
func evalRunIf(spec StageSpec, docResult *extraction.Result, done map[agents.AgentType]*PipelineStage) bool {
	if spec.RunIf == "" {
		return true
	}

	expr, err := govaluate.NewEvaluableExpression(spec.RunIf)
	if err != nil {
		return true
	}

	params := map[string]any{
		"document_classification": "",
		"document_confidence":     0.0,
	}
	if docResult != nil {
		params["document_classification"] = docResult.Classification
		params["document_confidence"] = docResult.Confidence
	}
	for agentType, stage := range done {
		params[fmt.Sprintf("%s_status", agentType)] = string(stage.Status)
	}

	out, err := expr.Evaluate(params)
	if err != nil {
		return true
	}
	pass, ok := out.(bool)
	if !ok {
		return true
	}
	return pass
}
