package activity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	response "github.com/dpxrk/Pactwise-sub001/api/handlers/common"
	"github.com/dpxrk/Pactwise-sub001/internal/activity"
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由网关层控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler 活动视图 Handler
type Handler struct {
	tracker *activity.Tracker
	hub     *notification.Hub
}

// NewHandler 创建活动视图 Handler
func NewHandler(tracker *activity.Tracker, hub *notification.Hub) *Handler {
	return &Handler{tracker: tracker, hub: hub}
}

// parseFilters 从查询参数解析过滤条件
// agent_types 为逗号分隔列表，contract_id / vendor_id 为精确匹配。
func parseFilters(c *gin.Context) activity.Filters {
	f := activity.Filters{
		ContractID: c.Query("contract_id"),
		VendorID:   c.Query("vendor_id"),
	}
	if raw := c.Query("agent_types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t := agents.AgentType(strings.TrimSpace(part))
			if t.Valid() {
				f.AgentTypes = append(f.AgentTypes, t)
			}
		}
	}
	return f
}

// GetActive 当前活动任务快照
func (h *Handler) GetActive(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	entries := h.tracker.Active(tc.TenantID, parseFilters(c))
	response.OK(c, gin.H{"entries": entries, "count": len(entries)})
}

// Stream WebSocket 实时活动流
// 升级连接后先推送当前活动快照，之后持续推送增量更新；
// 连接同时注册到通知 Hub，接收任务终态通知。
func (h *Handler) Stream(c *gin.Context) {
	tc, err := tenant.RequireTenant(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	filters := parseFilters(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	h.hub.Register(tc.TenantID, conn)
	defer h.hub.Unregister(tc.TenantID, conn)

	entries, cancel := h.tracker.Subscribe(tc.TenantID, filters)
	defer cancel()

	// 先推快照，订阅建立之后的增量不会丢
	snapshot := h.tracker.Active(tc.TenantID, filters)
	if err := conn.WriteJSON(gin.H{"type": "snapshot", "entries": snapshot}); err != nil {
		return
	}

	// 读循环只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "update", "entry": entry}); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
