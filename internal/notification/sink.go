package notification

import (
	"context"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"

	"go.uber.org/zap"
)

// Notice 一条任务生命周期通知
type Notice struct {
	TenantID  string           `json:"tenantId"`
	TaskID    string           `json:"taskId"`
	AgentType agents.AgentType `json:"agentType"`
	AgentName string           `json:"agentName,omitempty"`
	Operation string           `json:"operation"`
	Detail    string           `json:"detail,omitempty"`
}

// Sink 通知接收端
// 全部为尽力而为：实现内部消化错误，绝不向调用链传播。
type Sink interface {
	NotifyStarted(ctx context.Context, n Notice)
	NotifyCompleted(ctx context.Context, n Notice)
	NotifyFailed(ctx context.Context, n Notice)
}

// NopSink 空实现（测试与禁用场景）
type NopSink struct{}

func (NopSink) NotifyStarted(context.Context, Notice)   {}
func (NopSink) NotifyCompleted(context.Context, Notice) {}
func (NopSink) NotifyFailed(context.Context, Notice)    {}

// MultiSink 多通道通知器：WebSocket 推送 + 可选的 Webhook
type MultiSink struct {
	hub     *Hub
	webhook *WebhookNotifier
}

// NewMultiSink 创建多通道通知器；webhook 可为 nil
func NewMultiSink(hub *Hub, webhook *WebhookNotifier) *MultiSink {
	return &MultiSink{hub: hub, webhook: webhook}
}

func (m *MultiSink) NotifyStarted(ctx context.Context, n Notice) {
	m.deliver(ctx, "task_started", n)
}

func (m *MultiSink) NotifyCompleted(ctx context.Context, n Notice) {
	m.deliver(ctx, "task_completed", n)
}

func (m *MultiSink) NotifyFailed(ctx context.Context, n Notice) {
	m.deliver(ctx, "task_failed", n)
}

func (m *MultiSink) deliver(ctx context.Context, event string, n Notice) {
	payload := map[string]any{
		"event":     event,
		"taskId":    n.TaskID,
		"agentType": n.AgentType,
		"agentName": n.AgentName,
		"operation": n.Operation,
		"detail":    n.Detail,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if m.hub != nil {
		if err := m.hub.BroadcastToTenant(n.TenantID, payload); err != nil {
			logger.WithContext(ctx).Debug("WebSocket 通知推送失败",
				zap.String("event", event),
				zap.String("task_id", n.TaskID),
				zap.Error(err),
			)
		}
	}

	if m.webhook != nil {
		if err := m.webhook.Send(ctx, event, payload); err != nil {
			logger.WithContext(ctx).Warn("Webhook 通知发送失败",
				zap.String("event", event),
				zap.String("task_id", n.TaskID),
				zap.Error(err),
			)
		}
	}
}
