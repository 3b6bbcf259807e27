package activity

import (
	"context"

	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
)

// TaskProgress 单任务进度视图
type TaskProgress struct {
	TaskID    string           `json:"taskId"`
	AgentType agents.AgentType `json:"agentType"`
	Operation string           `json:"operation"`
	Status    task.Status      `json:"status"`
	Result    map[string]any   `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Done      bool             `json:"done"`
}

// MultiProgress 多任务聚合进度视图
// Percentage 按已完成数计算；AnyFailed 表示存在失败或超时的任务。
type MultiProgress struct {
	Tasks      map[string]TaskProgress `json:"tasks"`
	Total      int                     `json:"total"`
	Completed  int                     `json:"completed"`
	Failed     int                     `json:"failed"`
	Percentage float64                 `json:"percentage"`
	AnyFailed  bool                    `json:"anyFailed"`
	Done       bool                    `json:"done"`
}

// Watcher 任务进度观察者
// 先建立订阅再读库取快照，订阅之后发生的变更不会丢失；
// 快照之前排队的旧事件至多造成一次重复推送，不会回退终态判定。
type Watcher struct {
	store *task.Store
	feed  *task.Feed
}

// NewWatcher 创建观察者
func NewWatcher(store *task.Store) *Watcher {
	return &Watcher{store: store, feed: store.Feed()}
}

// SnapshotOne 单任务进度快照
func (w *Watcher) SnapshotOne(ctx context.Context, tenantID, taskID string) (*TaskProgress, error) {
	record, err := w.store.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	p := toProgress(*record)
	return &p, nil
}

// SnapshotMany 多任务聚合进度快照
// 库中不存在的 ID 不计入视图。
func (w *Watcher) SnapshotMany(ctx context.Context, tenantID string, taskIDs []string) (*MultiProgress, error) {
	records, err := w.store.GetMany(ctx, tenantID, taskIDs)
	if err != nil {
		return nil, err
	}
	view := newMultiProgress()
	for _, r := range records {
		view.Tasks[r.ID] = toProgress(r)
	}
	view.recompute()
	return view, nil
}

// WatchOne 观察单个任务直到终态
// 通道先收到当前快照，之后每次变更推送一次；终态或 ctx 取消后关闭。
func (w *Watcher) WatchOne(ctx context.Context, tenantID, taskID string) (<-chan TaskProgress, error) {
	// 订阅必须先于快照，否则两者之间落库的终态永远观察不到
	events, cancel := w.feed.Subscribe(tenantID)

	snapshot, err := w.SnapshotOne(ctx, tenantID, taskID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan TaskProgress, 8)
	out <- *snapshot
	if snapshot.Done {
		cancel()
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Record.ID != taskID {
					continue
				}
				p := toProgress(evt.Record)
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
				if p.Done {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// WatchMany 观察一组任务直到全部终态
// 每次成员变更重新聚合并推送一次完整视图。
func (w *Watcher) WatchMany(ctx context.Context, tenantID string, taskIDs []string) (<-chan MultiProgress, error) {
	events, cancel := w.feed.Subscribe(tenantID)

	snapshot, err := w.SnapshotMany(ctx, tenantID, taskIDs)
	if err != nil {
		cancel()
		return nil, err
	}

	watched := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		watched[id] = true
	}

	out := make(chan MultiProgress, 8)
	out <- *snapshot
	if snapshot.Done {
		cancel()
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		defer cancel()
		view := snapshot
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				if !watched[evt.Record.ID] {
					continue
				}
				view.Tasks[evt.Record.ID] = toProgress(evt.Record)
				view.recompute()
				select {
				case out <- *view:
				case <-ctx.Done():
					return
				}
				if view.Done {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func newMultiProgress() *MultiProgress {
	return &MultiProgress{Tasks: make(map[string]TaskProgress)}
}

// recompute 重算聚合字段
func (v *MultiProgress) recompute() {
	v.Total = len(v.Tasks)
	v.Completed = 0
	v.Failed = 0
	done := 0
	for _, p := range v.Tasks {
		if p.Status == task.StatusCompleted {
			v.Completed++
		}
		if p.Status == task.StatusFailed || p.Status == task.StatusTimeout {
			v.Failed++
		}
		if p.Done {
			done++
		}
	}
	v.AnyFailed = v.Failed > 0
	v.Done = v.Total > 0 && done == v.Total
	if v.Total > 0 {
		v.Percentage = 100 * float64(v.Completed) / float64(v.Total)
	} else {
		v.Percentage = 0
	}
}

func toProgress(r task.Task) TaskProgress {
	return TaskProgress{
		TaskID:    r.ID,
		AgentType: r.AgentType,
		Operation: r.Operation,
		Status:    r.Status,
		Result:    r.Result,
		Error:     r.ErrorMessage,
		Done:      r.Status.IsTerminal(),
	}
}
