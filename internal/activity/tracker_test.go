package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

// countingSink 统计各类通知次数
type countingSink struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    int
}

func (s *countingSink) NotifyStarted(context.Context, notification.Notice) {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

func (s *countingSink) NotifyCompleted(context.Context, notification.Notice) {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *countingSink) NotifyFailed(context.Context, notification.Notice) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *countingSink) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.completed, s.failed
}

func newTestTracker(t *testing.T, feed *task.Feed, sink notification.Sink, grace time.Duration) *Tracker {
	t.Helper()
	logger.InitForTest()
	tracker := NewTracker(feed, sink, nil, Policy{GraceDelay: grace})
	ctx, cancel := context.WithCancel(context.Background())
	tracker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		tracker.Stop()
	})
	return tracker
}

func publishTask(feed *task.Feed, evtType task.EventType, record task.Task) {
	feed.Publish(task.Event{Type: evtType, Record: record})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTrackerMaintainsActiveView(t *testing.T) {
	feed := task.NewFeed(16)
	tracker := newTestTracker(t, feed, &countingSink{}, time.Hour)

	publishTask(feed, task.EventInsert, task.Task{
		ID: "task-1", TenantID: "tenant-1",
		AgentType: agents.AgentTypeLegalReview, Status: task.StatusPending,
	})

	waitFor(t, func() bool {
		return len(tracker.Active("tenant-1", Filters{})) == 1
	}, "活动视图未收录新任务")

	// 其他租户不可见
	if got := tracker.Active("tenant-2", Filters{}); len(got) != 0 {
		t.Fatalf("异租户不应看到条目: %v", got)
	}
}

func TestTrackerExactlyOnceTerminalNotification(t *testing.T) {
	feed := task.NewFeed(16)
	sink := &countingSink{}
	newTestTracker(t, feed, sink, time.Hour)

	record := task.Task{
		ID: "task-1", TenantID: "tenant-1",
		AgentType: agents.AgentTypeLegalReview, Status: task.StatusCompleted,
	}
	// 同一终态事件重复到达
	publishTask(feed, task.EventUpdate, record)
	publishTask(feed, task.EventUpdate, record)
	publishTask(feed, task.EventUpdate, record)

	waitFor(t, func() bool {
		_, completed, _ := sink.counts()
		return completed >= 1
	}, "未收到完成通知")

	time.Sleep(50 * time.Millisecond)
	_, completed, _ := sink.counts()
	if completed != 1 {
		t.Fatalf("终态通知应恰好一次，实际为 %d", completed)
	}
}

func TestTrackerFailedTaskNotifiesFailure(t *testing.T) {
	feed := task.NewFeed(16)
	sink := &countingSink{}
	newTestTracker(t, feed, sink, time.Hour)

	publishTask(feed, task.EventUpdate, task.Task{
		ID: "task-1", TenantID: "tenant-1",
		AgentType: agents.AgentTypeCompliance, Status: task.StatusFailed,
		ErrorMessage: "模型调用失败",
	})

	waitFor(t, func() bool {
		_, _, failed := sink.counts()
		return failed == 1
	}, "未收到失败通知")
}

func TestTrackerGraceDelayRemoval(t *testing.T) {
	feed := task.NewFeed(16)
	tracker := newTestTracker(t, feed, &countingSink{}, 30*time.Millisecond)

	publishTask(feed, task.EventUpdate, task.Task{
		ID: "task-1", TenantID: "tenant-1",
		AgentType: agents.AgentTypeLegalReview, Status: task.StatusCompleted,
	})

	// 宽限期内终态条目仍可见
	waitFor(t, func() bool {
		entries := tracker.Active("tenant-1", Filters{})
		return len(entries) == 1 && entries[0].Status == task.StatusCompleted
	}, "宽限期内终态条目应仍在视图中")

	// 宽限期后被移除
	waitFor(t, func() bool {
		return len(tracker.Active("tenant-1", Filters{})) == 0
	}, "宽限期后条目应被移除")
}

func TestTrackerSubscribeFilters(t *testing.T) {
	feed := task.NewFeed(16)
	tracker := newTestTracker(t, feed, &countingSink{}, time.Hour)

	entries, cancel := tracker.Subscribe("tenant-1", Filters{
		AgentTypes: []agents.AgentType{agents.AgentTypeLegalReview},
		ContractID: "c-1",
	})
	defer cancel()

	// 不命中: 类型不同
	publishTask(feed, task.EventInsert, task.Task{
		ID: "task-a", TenantID: "tenant-1",
		AgentType: agents.AgentTypeAnalytics, ContractID: "c-1", Status: task.StatusPending,
	})
	// 不命中: 合同不同
	publishTask(feed, task.EventInsert, task.Task{
		ID: "task-b", TenantID: "tenant-1",
		AgentType: agents.AgentTypeLegalReview, ContractID: "c-2", Status: task.StatusPending,
	})
	// 命中
	publishTask(feed, task.EventInsert, task.Task{
		ID: "task-c", TenantID: "tenant-1",
		AgentType: agents.AgentTypeLegalReview, ContractID: "c-1", Status: task.StatusPending,
	})

	select {
	case entry := <-entries:
		if entry.TaskID != "task-c" {
			t.Fatalf("应只收到命中过滤条件的条目，实际为 %s", entry.TaskID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("未收到订阅更新")
	}

	select {
	case entry := <-entries:
		t.Fatalf("不应再收到条目: %+v", entry)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFiltersMatch(t *testing.T) {
	entry := Entry{
		AgentType:  agents.AgentTypeLegalReview,
		ContractID: "c-1",
		VendorID:   "v-1",
	}

	if !(Filters{}).Match(entry) {
		t.Fatal("零值过滤器应放行所有条目")
	}
	if !(Filters{AgentTypes: []agents.AgentType{agents.AgentTypeLegalReview}}).Match(entry) {
		t.Fatal("类型命中应放行")
	}
	if (Filters{AgentTypes: []agents.AgentType{agents.AgentTypeAnalytics}}).Match(entry) {
		t.Fatal("类型不命中应拒绝")
	}
	if (Filters{VendorID: "v-2"}).Match(entry) {
		t.Fatal("供应商不命中应拒绝")
	}
}
