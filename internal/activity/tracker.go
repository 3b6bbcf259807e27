package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/metrics"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

// Policy 活动视图策略
// GraceDelay 是任务终态之后仍保留在活动视图中的时长，
// 让前端来得及渲染最后一次状态更新。
type Policy struct {
	GraceDelay time.Duration
}

// DefaultPolicy 默认保留 8 秒
func DefaultPolicy() Policy {
	return Policy{GraceDelay: 8 * time.Second}
}

// AgentNamer 按 ID 查询 Agent 展示元数据
type AgentNamer interface {
	GetByID(ctx context.Context, tenantID, agentID string) (*agents.AgentDefinition, error)
}

// Entry 活动视图中的一项
type Entry struct {
	TaskID     string           `json:"taskId"`
	TenantID   string           `json:"tenantId"`
	AgentID    string           `json:"agentId"`
	AgentName  string           `json:"agentName"`
	AgentType  agents.AgentType `json:"agentType"`
	Operation  string           `json:"operation"`
	Status     task.Status      `json:"status"`
	ContractID string           `json:"contractId,omitempty"`
	VendorID   string           `json:"vendorId,omitempty"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Filters 订阅与快照的过滤条件，零值不过滤
type Filters struct {
	AgentTypes []agents.AgentType
	ContractID string
	VendorID   string
}

// Match 判断条目是否命中过滤条件
func (f Filters) Match(e Entry) bool {
	if f.ContractID != "" && f.ContractID != e.ContractID {
		return false
	}
	if f.VendorID != "" && f.VendorID != e.VendorID {
		return false
	}
	if len(f.AgentTypes) == 0 {
		return true
	}
	for _, t := range f.AgentTypes {
		if t == e.AgentType {
			return true
		}
	}
	return false
}

type subscriber struct {
	tenantID string
	filters  Filters
	ch       chan Entry
}

// Tracker 活动追踪器
// 通配订阅任务变更事件，维护各租户的进行中任务视图，
// 并在每个任务首次到达终态时恰好发出一次通知。
type Tracker struct {
	feed   *task.Feed
	sink   notification.Sink
	namer  AgentNamer
	policy Policy
	logger *zap.Logger

	mu       sync.RWMutex
	active   map[string]*Entry // taskID → 条目
	notified map[string]bool   // taskID → 终态通知是否已发出
	subs     map[uint64]*subscriber
	seq      uint64

	// Agent 展示名缓存，key 为 tenantID+agentID
	nameCache sync.Map

	cancelFeed func()
	stopped    chan struct{}
}

// NewTracker 创建追踪器
func NewTracker(feed *task.Feed, sink notification.Sink, namer AgentNamer, policy Policy) *Tracker {
	if sink == nil {
		sink = notification.NopSink{}
	}
	if policy.GraceDelay <= 0 {
		policy = DefaultPolicy()
	}
	return &Tracker{
		feed:     feed,
		sink:     sink,
		namer:    namer,
		policy:   policy,
		logger:   logger.Get(),
		active:   make(map[string]*Entry),
		notified: make(map[string]bool),
		subs:     make(map[uint64]*subscriber),
		stopped:  make(chan struct{}),
	}
}

// Start 启动事件消费循环
func (t *Tracker) Start(ctx context.Context) {
	events, cancel := t.feed.Subscribe("")
	t.cancelFeed = cancel
	go func() {
		defer close(t.stopped)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				t.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止消费并等待循环退出
func (t *Tracker) Stop() {
	if t.cancelFeed != nil {
		t.cancelFeed()
	}
	<-t.stopped
}

// handle 处理单条变更事件
func (t *Tracker) handle(ctx context.Context, evt task.Event) {
	record := evt.Record
	entry := Entry{
		TaskID:     record.ID,
		TenantID:   record.TenantID,
		AgentID:    record.AgentID,
		AgentName:  t.agentName(ctx, record.TenantID, record.AgentID),
		AgentType:  record.AgentType,
		Operation:  record.Operation,
		Status:     record.Status,
		ContractID: record.ContractID,
		VendorID:   record.VendorID,
		Error:      record.ErrorMessage,
		UpdatedAt:  time.Now(),
	}

	t.mu.Lock()
	t.active[record.ID] = &entry
	firstTerminal := record.Status.IsTerminal() && !t.notified[record.ID]
	if firstTerminal {
		t.notified[record.ID] = true
	}
	t.mu.Unlock()

	if firstTerminal {
		t.notifyTerminal(ctx, entry)
		t.ScheduleRemoval(record.ID)
	} else if evt.Type == task.EventInsert {
		t.sink.NotifyStarted(ctx, t.notice(entry))
	}

	t.fanOut(entry)
}

// notifyTerminal 终态通知，每个任务只发一次
func (t *Tracker) notifyTerminal(ctx context.Context, e Entry) {
	n := t.notice(e)
	if e.Status == task.StatusCompleted {
		t.sink.NotifyCompleted(ctx, n)
		return
	}
	n.Detail = e.Error
	t.sink.NotifyFailed(ctx, n)
}

func (t *Tracker) notice(e Entry) notification.Notice {
	return notification.Notice{
		TenantID:  e.TenantID,
		TaskID:    e.TaskID,
		AgentType: e.AgentType,
		AgentName: e.AgentName,
		Operation: e.Operation,
	}
}

// fanOut 把条目推给命中过滤条件的订阅者，发送非阻塞
func (t *Tracker) fanOut(e Entry) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subs {
		if sub.tenantID != e.TenantID || !sub.filters.Match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// ScheduleRemoval 延迟把任务从活动视图中移除
// 终态后保留 GraceDelay，期间快照仍能看到最终状态。
func (t *Tracker) ScheduleRemoval(taskID string) {
	time.AfterFunc(t.policy.GraceDelay, func() {
		t.mu.Lock()
		delete(t.active, taskID)
		delete(t.notified, taskID)
		t.mu.Unlock()
	})
}

// Subscribe 订阅某租户的活动条目更新
// 返回的 cancel 必须调用，否则订阅泄漏。
func (t *Tracker) Subscribe(tenantID string, filters Filters) (<-chan Entry, func()) {
	ch := make(chan Entry, 32)
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.subs[id] = &subscriber{tenantID: tenantID, filters: filters, ch: ch}
	t.mu.Unlock()
	metrics.ActivitySubscriptionsGauge.WithLabelValues(tenantID).Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
			metrics.ActivitySubscriptionsGauge.WithLabelValues(tenantID).Dec()
		})
	}
	return ch, cancel
}

// Active 返回某租户当前活动条目的快照
func (t *Tracker) Active(tenantID string, filters Filters) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.active))
	for _, e := range t.active {
		if e.TenantID != tenantID || !filters.Match(*e) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// agentName 查询并缓存 Agent 展示名
func (t *Tracker) agentName(ctx context.Context, tenantID, agentID string) string {
	if t.namer == nil || agentID == "" {
		return ""
	}
	key := tenantID + "/" + agentID
	if v, ok := t.nameCache.Load(key); ok {
		return v.(string)
	}
	def, err := t.namer.GetByID(ctx, tenantID, agentID)
	if err != nil {
		t.logger.Debug("查询 Agent 元数据失败",
			zap.String("agent_id", agentID),
			zap.Error(err))
		return ""
	}
	t.nameCache.Store(key, def.Name)
	return def.Name
}
