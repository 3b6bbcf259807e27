package task

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
)

// initTestDB 创建内存数据库用于测试
func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.InitForTest()
	dsn := fmt.Sprintf("file:task_store_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	if err := db.AutoMigrate(&Task{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*Store, *Feed) {
	t.Helper()
	feed := NewFeed(16)
	return NewStore(initTestDB(t), feed), feed
}

func createTestTask(t *testing.T, store *Store, tenantID string) *Task {
	t.Helper()
	record := &Task{
		TenantID:  tenantID,
		AgentID:   "agent-1",
		AgentType: agents.AgentTypeLegalReview,
		Operation: "contract_analysis",
		Payload:   map[string]any{"contract_id": "c-1"},
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("创建任务失败: %v", err)
	}
	return record
}

func TestStatusStateMachine(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout}

	// pending 可进入 in_progress 和所有终态
	if !StatusPending.CanTransition(StatusInProgress) {
		t.Fatal("pending 应当可以进入 in_progress")
	}
	for _, to := range terminal {
		if !StatusPending.CanTransition(to) {
			t.Fatalf("pending 应当可以进入 %s", to)
		}
		if !StatusInProgress.CanTransition(to) {
			t.Fatalf("in_progress 应当可以进入 %s", to)
		}
	}

	// 终态不可再迁移
	for _, from := range terminal {
		if from.CanTransition(StatusInProgress) || from.CanTransition(StatusCompleted) {
			t.Fatalf("终态 %s 不应允许任何迁移", from)
		}
	}
}

func TestStoreCreateDefaultsPending(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")

	if record.ID == "" {
		t.Fatal("创建后应分配任务 ID")
	}
	if record.Status != StatusPending {
		t.Fatalf("新任务状态应为 pending，实际为 %s", record.Status)
	}
}

func TestStoreGetScopedByTenant(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")

	// 同租户可见
	got, err := store.Get(context.Background(), "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("查询任务失败: %v", err)
	}
	if got.ID != record.ID {
		t.Fatalf("返回了错误的任务: %s", got.ID)
	}

	// 异租户不可见
	_, err = store.Get(context.Background(), "tenant-2", record.ID)
	if !common.IsBusinessCode(err, common.CodeTaskNotFound) {
		t.Fatalf("异租户查询应返回 TaskNotFound，实际为 %v", err)
	}
}

func TestStoreCompleteSetsResult(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")

	if _, err := store.MarkRunning(context.Background(), "tenant-1", record.ID); err != nil {
		t.Fatalf("标记运行失败: %v", err)
	}
	got, err := store.Complete(context.Background(), "tenant-1", record.ID, map[string]any{"riskLevel": "low"})
	if err != nil {
		t.Fatalf("标记完成失败: %v", err)
	}

	if got.Status != StatusCompleted {
		t.Fatalf("状态应为 completed，实际为 %s", got.Status)
	}
	if got.Result["riskLevel"] != "low" {
		t.Fatalf("结果未写入: %v", got.Result)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("完成的任务不应携带错误信息: %s", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Fatal("完成时间未写入")
	}
}

func TestStoreFailSetsError(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")

	got, err := store.Fail(context.Background(), "tenant-1", record.ID, "模型调用失败")
	if err != nil {
		t.Fatalf("标记失败出错: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("状态应为 failed，实际为 %s", got.Status)
	}
	if got.ErrorMessage != "模型调用失败" {
		t.Fatalf("错误信息未写入: %s", got.ErrorMessage)
	}
}

func TestStoreTerminalStateImmutable(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")

	if _, err := store.Complete(context.Background(), "tenant-1", record.ID, nil); err != nil {
		t.Fatalf("标记完成失败: %v", err)
	}

	// 终态之后的所有迁移都应被拒绝
	if _, err := store.Fail(context.Background(), "tenant-1", record.ID, "late"); !common.IsBusinessCode(err, common.CodeTaskInvalidTransition) {
		t.Fatalf("终态后 Fail 应返回 TaskInvalidTransition，实际为 %v", err)
	}
	if _, err := store.Cancel(context.Background(), "tenant-1", record.ID, "late"); !common.IsBusinessCode(err, common.CodeTaskInvalidTransition) {
		t.Fatalf("终态后 Cancel 应返回 TaskInvalidTransition，实际为 %v", err)
	}
	if _, err := store.MarkRunning(context.Background(), "tenant-1", record.ID); !common.IsBusinessCode(err, common.CodeTaskInvalidTransition) {
		t.Fatalf("终态后 MarkRunning 应返回 TaskInvalidTransition，实际为 %v", err)
	}

	// 记录保持第一次的终态
	got, err := store.Get(context.Background(), "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("查询任务失败: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("终态被覆盖: %s", got.Status)
	}
}

func TestStorePublishesEvents(t *testing.T) {
	store, feed := newTestStore(t)
	events, cancel := feed.Subscribe("tenant-1")
	defer cancel()

	record := createTestTask(t, store, "tenant-1")
	if _, err := store.Complete(context.Background(), "tenant-1", record.ID, nil); err != nil {
		t.Fatalf("标记完成失败: %v", err)
	}

	first := <-events
	if first.Type != EventInsert || first.Record.Status != StatusPending {
		t.Fatalf("首个事件应为 pending insert，实际为 %s/%s", first.Type, first.Record.Status)
	}
	second := <-events
	if second.Type != EventUpdate || second.Record.Status != StatusCompleted {
		t.Fatalf("第二个事件应为 completed update，实际为 %s/%s", second.Type, second.Record.Status)
	}
}

func TestStoreGetMany(t *testing.T) {
	store, _ := newTestStore(t)
	a := createTestTask(t, store, "tenant-1")
	b := createTestTask(t, store, "tenant-1")
	createTestTask(t, store, "tenant-2")

	records, err := store.GetMany(context.Background(), "tenant-1", []string{a.ID, b.ID, "missing"})
	if err != nil {
		t.Fatalf("批量查询失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("应返回 2 条记录，实际为 %d", len(records))
	}
}

func TestStoreConcurrentTerminalWritersOnlyOneWins(t *testing.T) {
	store, _ := newTestStore(t)
	record := createTestTask(t, store, "tenant-1")
	ctx := context.Background()

	if _, err := store.MarkRunning(ctx, "tenant-1", record.ID); err != nil {
		t.Fatalf("标记运行失败: %v", err)
	}

	// 单连接让 sqlite 的写入串行化，读检查与更新之间的交错仍然可能发生
	sqlDB, err := store.db.DB()
	if err != nil {
		t.Fatalf("获取 SQL DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = store.Complete(ctx, "tenant-1", record.ID, map[string]any{"ok": true})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = store.Cancel(ctx, "tenant-1", record.ID, "外部取消")
	}()
	wg.Wait()

	succeeded := 0
	for _, werr := range errs {
		if werr == nil {
			succeeded++
			continue
		}
		if !common.IsBusinessCode(werr, common.CodeTaskInvalidTransition) {
			t.Fatalf("落败的写入者应报非法迁移，实际为 %v", werr)
		}
	}
	if succeeded != 1 {
		t.Fatalf("并发终态写入应恰好一个生效，实际成功 %d 个", succeeded)
	}

	fresh, err := store.Get(ctx, "tenant-1", record.ID)
	if err != nil {
		t.Fatalf("查询任务失败: %v", err)
	}
	if errs[0] == nil && fresh.Status != StatusCompleted {
		t.Fatalf("完成方生效后终态应为 completed，实际为 %s", fresh.Status)
	}
	if errs[1] == nil && fresh.Status != StatusCancelled {
		t.Fatalf("取消方生效后终态应为 cancelled，实际为 %s", fresh.Status)
	}
}
