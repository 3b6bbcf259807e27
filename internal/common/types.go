package common

import (
	"errors"
	"time"
)

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	// 成功状态码
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest     = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用

	// 租户相关错误码 (2000-2099)
	CodeTenantNotFound = 2000 // 租户不存在
	CodeTenantDisabled = 2001 // 租户已禁用

	// 任务相关错误码 (6000-6099)
	CodeTaskNotFound          = 6000 // 任务不存在
	CodeTaskInvalidTransition = 6001 // 非法的任务状态迁移
	CodeDocumentNotFound      = 6010 // 文档不存在

	// 流水线相关错误码 (7000-7099)
	CodeWorkerUnavailable = 7000 // 目标类型的 Agent 不可用
	CodeDispatchFailed    = 7001 // 任务派发失败
	CodeTaskFailed        = 7002 // Agent 执行失败
	CodeTaskTimedOut      = 7003 // 任务轮询超时
	CodePipelineNotFound  = 7004 // 流水线类型不存在
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",

	CodeTenantNotFound: "租户不存在",
	CodeTenantDisabled: "租户已禁用",

	CodeTaskNotFound:          "任务不存在",
	CodeTaskInvalidTransition: "任务已处于终态，禁止再次迁移",
	CodeDocumentNotFound:      "文档不存在",

	CodeWorkerUnavailable: "当前租户没有可用的此类 Agent",
	CodeDispatchFailed:    "任务派发失败",
	CodeTaskFailed:        "Agent 执行失败",
	CodeTaskTimedOut:      "任务执行超时",
	CodePipelineNotFound:  "流水线类型不存在",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 业务错误
type BusinessError struct {
	Code    int    // 错误码
	Message string // 错误信息
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &BusinessError{
		Code:    code,
		Message: message,
	}
}

// NewBusinessErrorWithCode 根据错误码创建业务错误
func NewBusinessErrorWithCode(code int) *BusinessError {
	return NewBusinessError(code, GetErrorMessage(code))
}

// IsBusinessCode 判断 err 是否为指定错误码的业务错误
func IsBusinessCode(err error, code int) bool {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// ErrorCode 提取业务错误码；非业务错误返回 CodeInternalError
func ErrorCode(err error) int {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternalError
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    CodeSuccess,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// ============================================================================
// 资源统计信息
// ============================================================================

// UsageStats 用量统计
type UsageStats struct {
	ResourceType string    `json:"resource_type"` // 资源类型
	Used         int64     `json:"used"`          // 已使用
	Limit        int64     `json:"limit"`         // 限制
	Percentage   float64   `json:"percentage"`    // 使用率
	UpdatedAt    time.Time `json:"updated_at"`    // 更新时间
}

// CalculatePercentage 计算使用率
func (s *UsageStats) CalculatePercentage() {
	if s.Limit > 0 {
		s.Percentage = float64(s.Used) / float64(s.Limit) * 100
	}
}
