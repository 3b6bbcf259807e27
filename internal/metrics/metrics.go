package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务派发/执行指标
var (
	// TasksDispatchedTotal 派发的任务总数
	TasksDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactwise_tasks_dispatched_total",
			Help: "派发的 Agent 任务总数",
		},
		[]string{"agent_type", "tenant_id"},
	)

	// TasksTerminalTotal 任务终态总数
	TasksTerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactwise_tasks_terminal_total",
			Help: "观察到的任务终态总数",
		},
		[]string{"agent_type", "status"},
	)

	// TaskPollAttempts 单任务轮询次数分布
	TaskPollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pactwise_task_poll_attempts",
			Help:    "任务完成前的轮询次数分布",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"agent_type"},
	)

	// TaskWaitDuration 任务等待耗时（秒）
	TaskWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pactwise_task_wait_duration_seconds",
			Help:    "从派发到观察到终态的耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_type"},
	)
)

// 流水线指标
var (
	// PipelineRunsTotal 流水线执行总数
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactwise_pipeline_runs_total",
			Help: "流水线执行总数（按聚合结果）",
		},
		[]string{"kind", "overall_status"},
	)

	// PipelineStageFailuresTotal 阶段失败总数
	PipelineStageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactwise_pipeline_stage_failures_total",
			Help: "流水线阶段失败总数",
		},
		[]string{"agent_type"},
	)
)

// 活动视图指标
var (
	// ActivitySubscriptionsGauge 活动订阅数
	ActivitySubscriptionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pactwise_activity_subscriptions",
			Help: "当前活动订阅数量",
		},
		[]string{"tenant_id"},
	)

	// WebSocketConnectionsGauge WebSocket 连接数
	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pactwise_websocket_connections",
			Help: "当前 WebSocket 连接数量",
		},
		[]string{"tenant_id"},
	)
)
