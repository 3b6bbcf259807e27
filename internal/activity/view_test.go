package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

func newTestWatcher(t *testing.T) (*Watcher, *task.Store) {
	t.Helper()
	logger.InitForTest()
	dsn := fmt.Sprintf("file:activity_view_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	if err := db.AutoMigrate(&task.Task{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	store := task.NewStore(db, task.NewFeed(16))
	return NewWatcher(store), store
}

func createWatchedTask(t *testing.T, store *task.Store, tenantID string) *task.Task {
	t.Helper()
	record := &task.Task{
		TenantID:  tenantID,
		AgentType: agents.AgentTypeLegalReview,
		Operation: "contract_analysis",
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("创建任务失败: %v", err)
	}
	return record
}

func TestSnapshotOne(t *testing.T) {
	w, store := newTestWatcher(t)
	record := createWatchedTask(t, store, "tenant-1")

	p, err := w.SnapshotOne(context.Background(), "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("快照失败: %v", err)
	}
	if p.Status != task.StatusPending || p.Done {
		t.Fatalf("pending 任务的快照不正确: %+v", p)
	}

	if _, err := w.SnapshotOne(context.Background(), "tenant-1", "missing"); !common.IsBusinessCode(err, common.CodeTaskNotFound) {
		t.Fatalf("不存在的任务应返回 TaskNotFound，实际为 %v", err)
	}
}

func TestSnapshotManyAggregation(t *testing.T) {
	w, store := newTestWatcher(t)
	ctx := context.Background()

	a := createWatchedTask(t, store, "tenant-1")
	b := createWatchedTask(t, store, "tenant-1")
	c := createWatchedTask(t, store, "tenant-1")
	d := createWatchedTask(t, store, "tenant-1")

	if _, err := store.Complete(ctx, "tenant-1", a.ID, map[string]any{"ok": true}); err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}
	if _, err := store.Complete(ctx, "tenant-1", b.ID, nil); err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}
	if _, err := store.Fail(ctx, "tenant-1", c.ID, "执行失败"); err != nil {
		t.Fatalf("标记失败出错: %v", err)
	}

	view, err := w.SnapshotMany(ctx, "tenant-1", []string{a.ID, b.ID, c.ID, d.ID})
	if err != nil {
		t.Fatalf("聚合快照失败: %v", err)
	}

	if view.Total != 4 || view.Completed != 2 || view.Failed != 1 {
		t.Fatalf("聚合计数不正确: %+v", view)
	}
	if view.Percentage != 50 {
		t.Fatalf("进度应为 50%%，实际为 %v", view.Percentage)
	}
	if !view.AnyFailed {
		t.Fatal("有失败任务时 AnyFailed 应为 true")
	}
	if view.Done {
		t.Fatal("仍有 pending 任务时整体不应为 Done")
	}
}

func TestSnapshotManyIgnoresMissingIDs(t *testing.T) {
	w, store := newTestWatcher(t)
	a := createWatchedTask(t, store, "tenant-1")

	view, err := w.SnapshotMany(context.Background(), "tenant-1", []string{a.ID, "missing-1", "missing-2"})
	if err != nil {
		t.Fatalf("聚合快照失败: %v", err)
	}
	if view.Total != 1 {
		t.Fatalf("不存在的 ID 不应计入视图，实际 Total=%d", view.Total)
	}
}

func TestWatchOneStreamsUntilTerminal(t *testing.T) {
	w, store := newTestWatcher(t)
	ctx := context.Background()
	record := createWatchedTask(t, store, "tenant-1")

	updates, err := w.WatchOne(ctx, "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("建立观察失败: %v", err)
	}

	// 首个推送为快照
	first := <-updates
	if first.Status != task.StatusPending {
		t.Fatalf("首个推送应为当前快照，实际为 %s", first.Status)
	}

	if _, err := store.MarkRunning(ctx, "tenant-1", record.ID); err != nil {
		t.Fatalf("标记运行失败: %v", err)
	}
	if _, err := store.Complete(ctx, "tenant-1", record.ID, map[string]any{"done": true}); err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}

	var last TaskProgress
	for p := range updates {
		last = p
	}
	if last.Status != task.StatusCompleted || !last.Done {
		t.Fatalf("最后一次推送应为终态: %+v", last)
	}
	if last.Result["done"] != true {
		t.Fatalf("终态推送应携带结果: %v", last.Result)
	}
}

func TestWatchManyStreamsAggregates(t *testing.T) {
	w, store := newTestWatcher(t)
	ctx := context.Background()
	a := createWatchedTask(t, store, "tenant-1")
	b := createWatchedTask(t, store, "tenant-1")

	updates, err := w.WatchMany(ctx, "tenant-1", []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("建立观察失败: %v", err)
	}

	first := <-updates
	if first.Total != 2 || first.Completed != 0 {
		t.Fatalf("首个推送应为当前快照: %+v", first)
	}

	if _, err := store.Complete(ctx, "tenant-1", a.ID, nil); err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}
	if _, err := store.Fail(ctx, "tenant-1", b.ID, "执行失败"); err != nil {
		t.Fatalf("标记失败出错: %v", err)
	}

	var last MultiProgress
	for v := range updates {
		last = v
	}
	if !last.Done {
		t.Fatalf("全部终态后应结束观察: %+v", last)
	}
	if last.Completed != 1 || last.Failed != 1 || !last.AnyFailed {
		t.Fatalf("最终聚合不正确: %+v", last)
	}
	if last.Percentage != 50 {
		t.Fatalf("最终进度应为 50%%，实际为 %v", last.Percentage)
	}
}

func TestWatchOneToleratesReplayedStaleEvents(t *testing.T) {
	w, store := newTestWatcher(t)
	ctx := context.Background()
	record := createWatchedTask(t, store, "tenant-1")

	updates, err := w.WatchOne(ctx, "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("建立观察失败: %v", err)
	}
	first := <-updates
	if first.Status != task.StatusPending {
		t.Fatalf("首个推送应为当前快照，实际为 %s", first.Status)
	}

	// 订阅先于快照建立，快照之前排队的旧事件会在快照之后被重放；
	// 重放的非终态事件不应干扰后续的终态关闭
	stale := *record
	stale.Status = task.StatusPending
	store.Feed().Publish(task.Event{Type: task.EventUpdate, Record: stale})

	if _, err := store.MarkRunning(ctx, "tenant-1", record.ID); err != nil {
		t.Fatalf("标记运行失败: %v", err)
	}
	if _, err := store.Complete(ctx, "tenant-1", record.ID, map[string]any{"done": true}); err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}

	var last TaskProgress
	for p := range updates {
		last = p
	}
	if last.Status != task.StatusCompleted || !last.Done {
		t.Fatalf("重放旧事件后仍应以终态收尾: %+v", last)
	}
}
