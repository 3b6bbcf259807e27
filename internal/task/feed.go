package task

import "sync"

// EventType 变更事件类型
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event 任务记录的一次变更
// Record 是发布时刻的快照，消费方不得回写。
type Event struct {
	Type   EventType
	Record Task
}

// Feed 任务记录变更事件总线
// 按租户订阅；空租户键为通配订阅，收到所有租户的事件。
// 发送为非阻塞，接收方处理慢时事件被丢弃；视图是瞬态的，可随时从库里重建。
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	seq    uint64
	buffer int
}

// NewFeed 创建事件总线
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish 发布事件
func (f *Feed) Publish(evt Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	targets := make([]chan Event, 0, 4)
	for _, ch := range f.subs[evt.Record.TenantID] {
		targets = append(targets, ch)
	}
	for _, ch := range f.subs[""] {
		targets = append(targets, ch)
	}
	f.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			// 接收方处理慢则丢弃，保持非阻塞
		}
	}
}

// Subscribe 订阅指定租户的变更事件；tenantID 为空表示订阅全部
// 返回的 cancel 必须在不再消费时调用，否则通道泄漏。
func (f *Feed) Subscribe(tenantID string) (<-chan Event, func()) {
	if f == nil {
		return nil, func() {}
	}
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.seq++
	id := f.seq
	if _, ok := f.subs[tenantID]; !ok {
		f.subs[tenantID] = make(map[uint64]chan Event)
	}
	f.subs[tenantID][id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.removeListener(tenantID, id)
	}
	return ch, cancel
}

func (f *Feed) removeListener(tenantID string, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listeners, ok := f.subs[tenantID]; ok {
		if ch, exists := listeners[id]; exists {
			delete(listeners, id)
			close(ch)
		}
		if len(listeners) == 0 {
			delete(f.subs, tenantID)
		}
	}
}
