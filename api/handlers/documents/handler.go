package documents

import (
	"github.com/gin-gonic/gin"

	response "github.com/dpxrk/Pactwise-sub001/api/handlers/common"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// Handler 文档查询 Handler
type Handler struct {
	service *extraction.Service
}

// NewHandler 创建文档 Handler
func NewHandler(service *extraction.Service) *Handler {
	return &Handler{service: service}
}

// Get 查询文档及其提取状态
func (h *Handler) Get(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	doc, err := h.service.Get(c.Request.Context(), tc.TenantID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, doc)
}
