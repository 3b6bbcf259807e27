package tasks

import (
	"github.com/gin-gonic/gin"

	response "github.com/dpxrk/Pactwise-sub001/api/handlers/common"
	"github.com/dpxrk/Pactwise-sub001/internal/activity"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// Handler 任务进度 Handler
type Handler struct {
	watcher *activity.Watcher
}

// NewHandler 创建任务进度 Handler
func NewHandler(watcher *activity.Watcher) *Handler {
	return &Handler{watcher: watcher}
}

// GetProgress 单任务进度快照
func (h *Handler) GetProgress(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	progress, err := h.watcher.SnapshotOne(c.Request.Context(), tc.TenantID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, progress)
}

// ProgressManyRequest 多任务进度查询请求
type ProgressManyRequest struct {
	TaskIDs []string `json:"task_ids" binding:"required,min=1"`
}

// GetProgressMany 多任务聚合进度快照
func (h *Handler) GetProgressMany(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	var req ProgressManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	view, err := h.watcher.SnapshotMany(c.Request.Context(), tc.TenantID, req.TaskIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}
