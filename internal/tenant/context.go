package tenant

import (
	"context"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
)

// TenantContext 贯穿请求生命周期的租户与用户身份
// 在 HTTP 边界填充一次，向下传递给所有需要租户隔离的服务。
type TenantContext struct {
	TenantID string
	UserID   string
	Roles    []string
}

type tenantContextKey struct{}

// WithTenantContext 把租户上下文挂到 context 上
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext 从 context 中取出租户上下文，第二个返回值表示是否存在
func FromContext(ctx context.Context) (TenantContext, bool) {
	value := ctx.Value(tenantContextKey{})
	if value == nil {
		return TenantContext{}, false
	}

	tc, ok := value.(TenantContext)
	if !ok {
		return TenantContext{}, false
	}

	return tc, true
}

// RequireTenant 获取租户上下文，缺失时报未认证错误
// 流水线入口在任何阶段开始之前调用，缺少会话会使整个请求中止而不是单个阶段失败。
func RequireTenant(ctx context.Context) (TenantContext, error) {
	tc, ok := FromContext(ctx)
	if !ok || tc.TenantID == "" {
		return TenantContext{}, common.NewBusinessErrorWithCode(common.CodeUnauthorized)
	}
	return tc, nil
}
