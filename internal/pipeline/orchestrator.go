package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/metrics"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// DocumentUploader 文档上传与异步提取入口
type DocumentUploader interface {
	Upload(ctx context.Context, file extraction.FileInput, uploadCtx extraction.UploadContext) (*extraction.Document, *extraction.ResultPromise, error)
}

// RunRequest 一次流水线执行的输入
// File 为空时提取阶段按 skipped 处理，后续阶段照常执行。
type RunRequest struct {
	ContractID string
	VendorID   string
	File       *extraction.FileInput
	Options    RunOptions
}

// Orchestrator 流水线编排器
// 顺序执行各阶段，单阶段失败只影响自身与依赖它的载荷，不中断流水线。
// 唯一的整体中止条件是租户上下文缺失。
type Orchestrator struct {
	dispatcher *Dispatcher
	poller     *CompletionPoller
	uploader   DocumentUploader
	catalog    *Catalog
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(dispatcher *Dispatcher, poller *CompletionPoller, uploader DocumentUploader, catalog *Catalog) *Orchestrator {
	return &Orchestrator{
		dispatcher: dispatcher,
		poller:     poller,
		uploader:   uploader,
		catalog:    catalog,
		tracer:     otel.Tracer("pipeline"),
		logger:     logger.Get(),
	}
}

// RunPipeline 执行一条流水线
// 聚合规则：无失败为 completed；有失败且有成功为 partial；
// 全部失败为 failed。skipped 阶段不计入成功。
func (o *Orchestrator) RunPipeline(ctx context.Context, req RunRequest) (*PipelineResult, error) {
	tc, err := tenant.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}

	specs, err := o.catalog.StagesFor(req.Options)
	if err != nil {
		return nil, err
	}

	kind := req.Options.Kind
	switch {
	case len(req.Options.Stages) > 0:
		kind = "custom"
	case kind == "":
		kind = KindDefault
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("tenant_id", tc.TenantID),
			attribute.String("pipeline.kind", string(kind)),
			attribute.Int("stage_count", len(specs)),
		))
	defer span.End()

	result := &PipelineResult{
		OverallStatus: OverallProcessing,
		Stages:        make([]PipelineStage, 0, len(specs)),
	}
	done := map[agents.AgentType]*PipelineStage{}

	var docResult *extraction.Result
	for _, spec := range specs {
		stage := PipelineStage{Spec: spec, Status: StagePending}

		switch {
		case spec.AgentType == agents.AgentTypeExtraction:
			docResult = o.runExtraction(ctx, req, &stage)
			if docResult != nil {
				result.DocumentID = docResult.DocumentID
				result.DocumentResult = docResult.AsMap()
			}
		case !evalRunIf(spec, docResult, done):
			stage.Status = StageSkipped
		default:
			o.runStage(ctx, spec, req, docResult, done, &stage)
		}

		if stage.Status == StageFailed {
			metrics.PipelineStageFailuresTotal.WithLabelValues(string(spec.AgentType)).Inc()
		}
		result.Stages = append(result.Stages, stage)
		done[spec.AgentType] = &result.Stages[len(result.Stages)-1]
	}

	result.OverallStatus = aggregate(result.Stages)
	metrics.PipelineRunsTotal.WithLabelValues(string(kind), string(result.OverallStatus)).Inc()
	o.logger.Info("流水线执行结束",
		zap.String("tenant_id", tc.TenantID),
		zap.String("document_id", result.DocumentID),
		zap.String("overall_status", string(result.OverallStatus)))
	return result, nil
}

// AnalyzeExisting 对已有实体补跑分析阶段
// 不涉及文档上传，extraction 类型在此入口被忽略。
func (o *Orchestrator) AnalyzeExisting(ctx context.Context, entityType, entityID string, agentTypes []agents.AgentType) ([]PipelineStage, error) {
	if _, err := tenant.RequireTenant(ctx); err != nil {
		return nil, err
	}

	req := RunRequest{}
	switch entityType {
	case "vendor":
		req.VendorID = entityID
	default:
		req.ContractID = entityID
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.analyze_existing",
		trace.WithAttributes(attribute.String("entity_id", entityID)))
	defer span.End()

	stages := make([]PipelineStage, 0, len(agentTypes))
	done := map[agents.AgentType]*PipelineStage{}
	for _, agentType := range agentTypes {
		if agentType == agents.AgentTypeExtraction {
			continue
		}
		spec := StageSpec{AgentType: agentType, Operation: DefaultOperation(agentType)}
		stage := PipelineStage{Spec: spec, Status: StagePending}
		o.runStage(ctx, spec, req, nil, done, &stage)
		if stage.Status == StageFailed {
			metrics.PipelineStageFailuresTotal.WithLabelValues(string(agentType)).Inc()
		}
		stages = append(stages, stage)
		done[agentType] = &stages[len(stages)-1]
	}
	return stages, nil
}

// runExtraction 执行文档提取阶段
// 失败只标记本阶段，后续阶段在缺少文档载荷的情况下继续。
func (o *Orchestrator) runExtraction(ctx context.Context, req RunRequest, stage *PipelineStage) *extraction.Result {
	if req.File == nil {
		stage.Status = StageSkipped
		return nil
	}

	stage.Status = StageProcessing
	doc, promise, err := o.uploader.Upload(ctx, *req.File, extraction.UploadContext{
		ContractID: req.ContractID,
		VendorID:   req.VendorID,
	})
	if err != nil {
		stage.Status = StageFailed
		stage.Error = err.Error()
		return nil
	}

	docResult, err := promise.Await(ctx)
	if err != nil {
		stage.Status = StageFailed
		stage.Error = fmt.Sprintf("文档提取失败: %v", err)
		o.logger.Warn("文档提取失败",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return nil
	}

	stage.Status = StageCompleted
	stage.Result = docResult.AsMap()
	return docResult
}

// runStage 派发并等待单个分析阶段
func (o *Orchestrator) runStage(ctx context.Context, spec StageSpec, req RunRequest, docResult *extraction.Result, done map[agents.AgentType]*PipelineStage, stage *PipelineStage) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage.agent_type", string(spec.AgentType))))
	defer span.End()

	stage.Status = StageProcessing

	operation := spec.Operation
	if operation == "" {
		operation = DefaultOperation(spec.AgentType)
	}

	var documentID string
	if docResult != nil {
		documentID = docResult.DocumentID
	}
	handle, err := o.dispatcher.Dispatch(ctx, DispatchRequest{
		AgentType:  spec.AgentType,
		Operation:  operation,
		Payload:    buildPayload(spec, req, docResult, done),
		ContractID: req.ContractID,
		VendorID:   req.VendorID,
		DocumentID: documentID,
	})
	if err != nil {
		stage.Status = StageFailed
		stage.Error = err.Error()
		return
	}
	stage.TaskID = handle.TaskID

	out, err := o.poller.Await(ctx, handle)
	if err != nil {
		stage.Status = StageFailed
		stage.Error = err.Error()
		return
	}
	stage.Status = StageCompleted
	stage.Result = out
}

// aggregate 计算流水线聚合状态
func aggregate(stages []PipelineStage) OverallStatus {
	var completed, failed int
	for _, s := range stages {
		switch s.Status {
		case StageCompleted:
			completed++
		case StageFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return OverallCompleted
	case completed > 0:
		return OverallPartial
	default:
		return OverallFailed
	}
}
