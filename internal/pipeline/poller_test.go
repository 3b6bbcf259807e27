package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

// scriptedReader 按脚本逐次返回任务快照，最后一项之后保持不变
type scriptedReader struct {
	mu       sync.Mutex
	script   []task.Task
	reads    int
	tenantID string
}

func (r *scriptedReader) Get(_ context.Context, tenantID, taskID string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenantID != r.tenantID {
		return nil, common.NewBusinessErrorWithCode(common.CodeTaskNotFound)
	}
	idx := r.reads
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.reads++
	record := r.script[idx]
	record.ID = taskID
	return &record, nil
}

func (r *scriptedReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// recordingSink 记录收到的通知
type recordingSink struct {
	mu        sync.Mutex
	completed []notification.Notice
	failed    []notification.Notice
}

func (s *recordingSink) NotifyStarted(context.Context, notification.Notice) {}

func (s *recordingSink) NotifyCompleted(_ context.Context, n notification.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, n)
}

func (s *recordingSink) NotifyFailed(_ context.Context, n notification.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, n)
}

// recordingRemover 记录被调度移除的任务
type recordingRemover struct {
	mu      sync.Mutex
	removed []string
}

func (r *recordingRemover) ScheduleRemoval(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, taskID)
}

func testHandle() *TaskHandle {
	return &TaskHandle{
		TaskID:    "task-1",
		AgentType: agents.AgentTypeLegalReview,
		AgentName: "法务审查",
		Operation: "contract_analysis",
	}
}

func newTestPoller(reader RecordReader, sink notification.Sink, remover RemovalScheduler, maxAttempts int) *CompletionPoller {
	logger.InitForTest()
	return NewCompletionPoller(reader, sink,
		WithPollInterval(time.Millisecond),
		WithMaxAttempts(maxAttempts),
		WithRemovalScheduler(remover),
	)
}

func TestPollerReturnsResultOnCompleted(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusPending},
			{TenantID: "tenant-1", Status: task.StatusInProgress},
			{TenantID: "tenant-1", Status: task.StatusCompleted, Result: map[string]any{"riskLevel": "low"}},
		},
	}
	sink := &recordingSink{}
	remover := &recordingRemover{}
	p := newTestPoller(reader, sink, remover, 10)

	result, err := p.Await(testContext("tenant-1"), testHandle())
	if err != nil {
		t.Fatalf("等待失败: %v", err)
	}
	if result["riskLevel"] != "low" {
		t.Fatalf("结果不正确: %v", result)
	}
	if reader.readCount() != 3 {
		t.Fatalf("应观察 3 次，实际为 %d", reader.readCount())
	}
	if len(sink.completed) != 1 {
		t.Fatalf("应发出 1 次完成通知，实际为 %d", len(sink.completed))
	}
	if len(remover.removed) != 1 || remover.removed[0] != "task-1" {
		t.Fatalf("应调度 1 次活动视图移除: %v", remover.removed)
	}
}

func TestPollerFailedTaskPropagatesStoredError(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusFailed, ErrorMessage: "模型调用失败"},
		},
	}
	sink := &recordingSink{}
	p := newTestPoller(reader, sink, &recordingRemover{}, 10)

	_, err := p.Await(testContext("tenant-1"), testHandle())
	if !common.IsBusinessCode(err, common.CodeTaskFailed) {
		t.Fatalf("应返回 TaskFailed，实际为 %v", err)
	}
	if err.Error() != "模型调用失败" {
		t.Fatalf("应透传存储的错误信息，实际为 %q", err.Error())
	}
	if len(sink.failed) != 1 {
		t.Fatalf("应发出 1 次失败通知，实际为 %d", len(sink.failed))
	}
}

func TestPollerCancelledTaskTreatedAsFailed(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusCancelled, ErrorMessage: "用户取消"},
		},
	}
	p := newTestPoller(reader, &recordingSink{}, &recordingRemover{}, 10)

	_, err := p.Await(testContext("tenant-1"), testHandle())
	if !common.IsBusinessCode(err, common.CodeTaskFailed) {
		t.Fatalf("cancelled 应按 TaskFailed 上抛，实际为 %v", err)
	}
}

func TestPollerBudgetExhaustedIsTimeout(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusInProgress},
		},
	}
	sink := &recordingSink{}
	remover := &recordingRemover{}
	p := newTestPoller(reader, sink, remover, 5)

	_, err := p.Await(testContext("tenant-1"), testHandle())
	if !common.IsBusinessCode(err, common.CodeTaskTimedOut) {
		t.Fatalf("预算耗尽应返回 TaskTimedOut，实际为 %v", err)
	}

	// 恰好 maxAttempts 次观察，不多不少
	if reader.readCount() != 5 {
		t.Fatalf("应恰好观察 5 次，实际为 %d", reader.readCount())
	}
	if len(sink.failed) != 1 {
		t.Fatalf("超时也应发出失败通知，实际为 %d", len(sink.failed))
	}
	if len(remover.removed) != 1 {
		t.Fatalf("超时也应调度活动视图移除: %v", remover.removed)
	}
}

func TestPollerTimeoutStatusFromStore(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusTimeout, ErrorMessage: "执行端超时"},
		},
	}
	p := newTestPoller(reader, &recordingSink{}, &recordingRemover{}, 10)

	_, err := p.Await(testContext("tenant-1"), testHandle())
	if !common.IsBusinessCode(err, common.CodeTaskTimedOut) {
		t.Fatalf("存储中的 timeout 状态应返回 TaskTimedOut，实际为 %v", err)
	}
}

func TestPollerRequiresTenant(t *testing.T) {
	p := newTestPoller(&scriptedReader{tenantID: "tenant-1"}, &recordingSink{}, &recordingRemover{}, 3)

	_, err := p.Await(context.Background(), testHandle())
	if !common.IsBusinessCode(err, common.CodeUnauthorized) {
		t.Fatalf("缺少租户上下文应返回 Unauthorized，实际为 %v", err)
	}
}

func TestPollerContextCancellation(t *testing.T) {
	reader := &scriptedReader{
		tenantID: "tenant-1",
		script: []task.Task{
			{TenantID: "tenant-1", Status: task.StatusInProgress},
		},
	}
	p := NewCompletionPoller(reader, &recordingSink{},
		WithPollInterval(time.Hour),
		WithMaxAttempts(10),
	)

	ctx, cancel := context.WithCancel(testContext("tenant-1"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Await(ctx, testHandle())
	if err != context.Canceled {
		t.Fatalf("取消后应返回 context.Canceled，实际为 %v", err)
	}
}
