package task

import (
	"testing"
	"time"
)

func publishTestEvent(f *Feed, tenantID, taskID string) {
	f.Publish(Event{
		Type:   EventUpdate,
		Record: Task{ID: taskID, TenantID: tenantID, Status: StatusInProgress},
	})
}

func TestFeedTenantScopedDelivery(t *testing.T) {
	feed := NewFeed(4)
	ch1, cancel1 := feed.Subscribe("tenant-1")
	defer cancel1()
	ch2, cancel2 := feed.Subscribe("tenant-2")
	defer cancel2()

	publishTestEvent(feed, "tenant-1", "task-a")

	select {
	case evt := <-ch1:
		if evt.Record.ID != "task-a" {
			t.Fatalf("收到错误的事件: %s", evt.Record.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("tenant-1 订阅者未收到事件")
	}

	select {
	case evt := <-ch2:
		t.Fatalf("tenant-2 不应收到事件: %v", evt)
	default:
	}
}

func TestFeedWildcardSubscription(t *testing.T) {
	feed := NewFeed(4)
	all, cancel := feed.Subscribe("")
	defer cancel()

	publishTestEvent(feed, "tenant-1", "task-a")
	publishTestEvent(feed, "tenant-2", "task-b")

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-all:
			got[evt.Record.ID] = true
		case <-time.After(time.Second):
			t.Fatal("通配订阅者未收齐事件")
		}
	}
	if !got["task-a"] || !got["task-b"] {
		t.Fatalf("通配订阅者应收到两个租户的事件: %v", got)
	}
}

func TestFeedNonBlockingPublish(t *testing.T) {
	feed := NewFeed(1)
	_, cancel := feed.Subscribe("tenant-1")
	defer cancel()

	// 缓冲填满后继续发布不得阻塞
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			publishTestEvent(feed, "tenant-1", "task-a")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("慢消费者导致发布阻塞")
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	feed := NewFeed(4)
	ch, cancel := feed.Subscribe("tenant-1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("取消后通道应被关闭")
	}

	// 取消后发布不应 panic
	publishTestEvent(feed, "tenant-1", "task-a")
}
