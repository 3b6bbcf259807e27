package task

import (
	"context"
	"fmt"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store 任务记录存储
// 任务库是唯一的共享可变资源：所有组件只追加和更新记录，从不删除。
// 每次成功的写入都会把最新快照发布到变更事件总线。
type Store struct {
	db   *gorm.DB
	feed *Feed
}

// NewStore 创建任务存储
func NewStore(db *gorm.DB, feed *Feed) *Store {
	return &Store{db: db, feed: feed}
}

// Feed 返回变更事件总线
func (s *Store) Feed() *Feed {
	return s.feed
}

// Create 创建任务记录（status = pending）并发布 insert 事件
func (s *Store) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.TenantID == "" {
		return common.NewBusinessError(common.CodeInvalidRequest, "任务缺少租户")
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return common.NewBusinessError(common.CodeDispatchFailed,
			fmt.Sprintf("创建任务记录失败: %v", err))
	}

	s.feed.Publish(Event{Type: EventInsert, Record: *t})
	return nil
}

// Get 按租户读取任务
func (s *Store) Get(ctx context.Context, tenantID, taskID string) (*Task, error) {
	var t Task
	err := s.db.WithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", taskID).
		First(&t).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewBusinessErrorWithCode(common.CodeTaskNotFound)
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return &t, nil
}

// GetMany 批量读取任务
func (s *Store) GetMany(ctx context.Context, tenantID string, taskIDs []string) ([]Task, error) {
	var list []Task
	err := s.db.WithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id IN ?", taskIDs).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询任务失败: %w", err)
	}
	return list, nil
}

// MarkRunning pending → in_progress，记录开始时间
func (s *Store) MarkRunning(ctx context.Context, tenantID, taskID string) (*Task, error) {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, taskID, StatusInProgress, func(t *Task) {
		t.StartedAt = &now
	})
}

// Complete 写入成功终态，result 随 completed 一起落库
func (s *Store) Complete(ctx context.Context, tenantID, taskID string, result map[string]any) (*Task, error) {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, taskID, StatusCompleted, func(t *Task) {
		t.Result = result
		t.ErrorMessage = ""
		t.CompletedAt = &now
	})
}

// Fail 写入失败终态，error 随 failed 一起落库
func (s *Store) Fail(ctx context.Context, tenantID, taskID, errMsg string) (*Task, error) {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, taskID, StatusFailed, func(t *Task) {
		t.ErrorMessage = errMsg
		t.CompletedAt = &now
	})
}

// Cancel 外部发起的取消；编排器自身从不调用
func (s *Store) Cancel(ctx context.Context, tenantID, taskID, reason string) (*Task, error) {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, taskID, StatusCancelled, func(t *Task) {
		t.ErrorMessage = reason
		t.CompletedAt = &now
	})
}

// MarkTimeout 由外部监管流程把长期无响应的任务置为 timeout
// 轮询器的超时判定不会调用这里；那是轮询器自己的预算，不强制迁移记录。
func (s *Store) MarkTimeout(ctx context.Context, tenantID, taskID, errMsg string) (*Task, error) {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, taskID, StatusTimeout, func(t *Task) {
		t.ErrorMessage = errMsg
		t.CompletedAt = &now
	})
}

// transition 带状态机校验的更新，成功后发布 update 事件
// 通过结构体写入让 serializer:json 字段正常落库；
// 以读到的状态作为 WHERE 前置条件做乐观并发控制，竞争写入者只有一个能生效。
func (s *Store) transition(ctx context.Context, tenantID, taskID string, to Status, mutate func(*Task)) (*Task, error) {
	t, err := s.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	if !t.Status.CanTransition(to) {
		return nil, common.NewBusinessError(common.CodeTaskInvalidTransition,
			fmt.Sprintf("任务 %s 不允许从 %s 迁移到 %s", taskID, t.Status, to))
	}

	from := t.Status
	t.Status = to
	mutate(t)

	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", taskID, from).
		Select("status", "result", "error_message", "started_at", "completed_at").
		Updates(t)
	if res.Error != nil {
		return nil, fmt.Errorf("更新任务状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewBusinessError(common.CodeTaskInvalidTransition,
			fmt.Sprintf("任务 %s 状态已被并发更新", taskID))
	}

	fresh, err := s.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	s.feed.Publish(Event{Type: EventUpdate, Record: *fresh})
	return fresh, nil
}
