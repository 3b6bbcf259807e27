package notification

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub 负责管理租户维度的 WebSocket 连接
// 活动追踪器与通知端通过它把任务进度推给 UI。
type Hub struct {
	mu                sync.RWMutex
	clients           map[string]map[*websocket.Conn]*clientConn
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*Hub)

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *Hub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub 创建 Hub
func NewHub(opts ...HubOption) *Hub {
	hub := &Hub{
		clients:           make(map[string]map[*websocket.Conn]*clientConn),
		keepAliveInterval: 30 * time.Second,
		logger:            logger.Get(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接
func (h *Hub) Register(tenantID string, conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[tenantID]; !ok {
		h.clients[tenantID] = make(map[*websocket.Conn]*clientConn)
	}
	client := &clientConn{conn: conn}
	h.clients[tenantID][conn] = client
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.WithLabelValues(tenantID).Inc()
	h.startKeepAlive(tenantID, client)
}

// Unregister 移除连接
func (h *Hub) Unregister(tenantID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[tenantID]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			metrics.WebSocketConnectionsGauge.WithLabelValues(tenantID).Dec()
		}
		if len(conns) == 0 {
			delete(h.clients, tenantID)
		}
	}
}

// BroadcastToTenant 把消息推给租户下所有连接
func (h *Hub) BroadcastToTenant(tenantID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.clients[tenantID]))
	for _, client := range h.clients[tenantID] {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, client := range conns {
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			h.Unregister(tenantID, client.conn)
			_ = client.conn.Close()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ConnectedCount 返回指定租户的连接数（用于调试/指标）
func (h *Hub) ConnectedCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}

func (h *Hub) startKeepAlive(tenantID string, client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for range ticker.C {
			client.mu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			client.mu.Unlock()
			if err != nil {
				h.logger.Debug("WebSocket 心跳失败，移除连接", zap.String("tenantId", tenantID))
				h.Unregister(tenantID, client.conn)
				_ = client.conn.Close()
				return
			}
		}
	}()
}
