package agents

import (
	"github.com/gin-gonic/gin"

	response "github.com/dpxrk/Pactwise-sub001/api/handlers/common"
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// Handler Agent 目录管理 Handler
type Handler struct {
	directory *agents.Directory
}

// NewHandler 创建 Agent 目录 Handler
func NewHandler(directory *agents.Directory) *Handler {
	return &Handler{directory: directory}
}

// RegisterRequest 注册 Agent 请求
type RegisterRequest struct {
	Name         string           `json:"name" binding:"required"`
	AgentType    agents.AgentType `json:"agent_type" binding:"required"`
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system_prompt"`
	Temperature  float64          `json:"temperature"`
	MaxTokens    int              `json:"max_tokens"`
}

// Register 注册一个可派发的 Agent
func (h *Handler) Register(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if !req.AgentType.Valid() {
		response.BadRequest(c, "未知的 Agent 类型: "+string(req.AgentType))
		return
	}

	def := &agents.AgentDefinition{
		TenantID:     tc.TenantID,
		Name:         req.Name,
		AgentType:    req.AgentType,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Enabled:      true,
	}
	if err := h.directory.Register(c.Request.Context(), def); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, def)
}

// Get 按 ID 查询 Agent 定义
func (h *Handler) Get(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	def, err := h.directory.GetByID(c.Request.Context(), tc.TenantID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, def)
}

// SetEnabledRequest 启用状态变更请求
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled 启用或停用 Agent
// 停用后 Resolve 不再返回该 Agent，新的派发会以 WorkerUnavailable 失败。
func (h *Handler) SetEnabled(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.directory.SetEnabled(c.Request.Context(), tc.TenantID, c.Param("id"), *req.Enabled); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"enabled": *req.Enabled})
}
