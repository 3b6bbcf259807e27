package pipeline

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	response "github.com/dpxrk/Pactwise-sub001/api/handlers/common"
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
	"github.com/dpxrk/Pactwise-sub001/internal/pipeline"
)

// Handler 流水线 Handler
type Handler struct {
	orchestrator *pipeline.Orchestrator
}

// NewHandler 创建流水线 Handler
func NewHandler(orchestrator *pipeline.Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// RunRequest 流水线执行请求（multipart 之外的元数据部分）
type RunRequest struct {
	Kind       string               `json:"kind"`
	ContractID string               `json:"contract_id"`
	VendorID   string               `json:"vendor_id"`
	Stages     []pipeline.StageSpec `json:"stages,omitempty"`
}

// Run 上传文档并执行分析流水线
// 请求为 multipart/form-data：file 为文档，options 为 JSON 元数据。
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, "options 解析失败: "+err.Error()))
			return
		}
	}

	var file *extraction.FileInput
	if fh, err := c.FormFile("file"); err == nil {
		src, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, "读取上传文件失败"))
			return
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, "读取上传文件失败"))
			return
		}
		file = &extraction.FileInput{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}
	}

	result, err := h.orchestrator.RunPipeline(c.Request.Context(), pipeline.RunRequest{
		ContractID: req.ContractID,
		VendorID:   req.VendorID,
		File:       file,
		Options: pipeline.RunOptions{
			Kind:   pipeline.Kind(req.Kind),
			Stages: req.Stages,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, common.SuccessResponse(result))
}

// AnalyzeRequest 既有实体补跑分析的请求
type AnalyzeRequest struct {
	EntityType string             `json:"entity_type" binding:"required"` // contract 或 vendor
	EntityID   string             `json:"entity_id" binding:"required"`
	AgentTypes []agents.AgentType `json:"agent_types" binding:"required"`
}

// Analyze 对已有合同或供应商执行指定的分析阶段
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, "请求参数错误: "+err.Error()))
		return
	}
	for _, t := range req.AgentTypes {
		if !t.Valid() {
			c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, "未知的 Agent 类型: "+string(t)))
			return
		}
	}

	stages, err := h.orchestrator.AnalyzeExisting(c.Request.Context(), req.EntityType, req.EntityID, req.AgentTypes)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, common.SuccessResponse(gin.H{"stages": stages}))
}
