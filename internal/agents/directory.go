package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Directory Agent 目录服务
// 负责在租户范围内按类型解析启用状态的 Agent 定义。
// 解析结果可选地缓存在 Redis 中，redisClient 为 nil 时直接查库。
type Directory struct {
	db          *gorm.DB
	redisClient redis.UniversalClient
	cacheTTL    time.Duration
}

// DirectoryOption 配置目录服务
type DirectoryOption func(*Directory)

// WithRedisCache 启用 Redis 解析缓存
func WithRedisCache(client redis.UniversalClient, ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		d.redisClient = client
		if ttl > 0 {
			d.cacheTTL = ttl
		}
	}
}

// NewDirectory 创建目录服务
func NewDirectory(db *gorm.DB, opts ...DirectoryOption) *Directory {
	d := &Directory{
		db:       db,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func cacheKey(tenantID string, agentType AgentType) string {
	return fmt.Sprintf("agents:resolve:%s:%s", tenantID, agentType)
}

// Resolve 解析租户内指定类型的启用 Agent
// 没有可用定义时返回 WorkerUnavailable 业务错误，调用方不应在该错误后创建任何任务记录。
func (d *Directory) Resolve(ctx context.Context, tenantID string, agentType AgentType) (*AgentDefinition, error) {
	if !agentType.Valid() {
		return nil, common.NewBusinessError(common.CodeWorkerUnavailable,
			fmt.Sprintf("未知的 Agent 类型: %s", agentType))
	}

	// 1. 尝试缓存
	if d.redisClient != nil {
		if data, err := d.redisClient.Get(ctx, cacheKey(tenantID, agentType)).Bytes(); err == nil {
			var def AgentDefinition
			if err := json.Unmarshal(data, &def); err == nil && def.Enabled {
				return &def, nil
			}
		}
	}

	// 2. 查库
	var def AgentDefinition
	err := d.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByTenant(tenantID), common.EnabledOnly()).
		Where("agent_type = ?", agentType).
		Order("created_at ASC").
		First(&def).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewBusinessError(common.CodeWorkerUnavailable,
				fmt.Sprintf("当前租户没有可用的 %s Agent", agentType))
		}
		return nil, fmt.Errorf("查询 Agent 目录失败: %w", err)
	}

	// 3. 回填缓存（尽力而为）
	if d.redisClient != nil {
		if data, err := json.Marshal(&def); err == nil {
			if err := d.redisClient.Set(ctx, cacheKey(tenantID, agentType), data, d.cacheTTL).Err(); err != nil {
				logger.WithContext(ctx).Debug("Agent 目录缓存写入失败", zap.Error(err))
			}
		}
	}

	return &def, nil
}

// GetByID 按 ID 查询 Agent 定义（供活动视图展示元数据用）
func (d *Directory) GetByID(ctx context.Context, tenantID, agentID string) (*AgentDefinition, error) {
	var def AgentDefinition
	err := d.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByTenant(tenantID)).
		Where("id = ?", agentID).
		First(&def).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewBusinessErrorWithCode(common.CodeNotFound)
		}
		return nil, fmt.Errorf("查询 Agent 定义失败: %w", err)
	}
	return &def, nil
}

// Register 注册一个 Agent 定义
func (d *Directory) Register(ctx context.Context, def *AgentDefinition) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if err := d.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("注册 Agent 失败: %w", err)
	}
	d.invalidate(ctx, def.TenantID, def.AgentType)
	return nil
}

// SetEnabled 启用/禁用 Agent 定义
func (d *Directory) SetEnabled(ctx context.Context, tenantID, agentID string, enabled bool) error {
	var def AgentDefinition
	err := d.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByTenant(tenantID)).
		Where("id = ?", agentID).
		First(&def).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewBusinessErrorWithCode(common.CodeNotFound)
		}
		return fmt.Errorf("查询 Agent 定义失败: %w", err)
	}

	if err := d.db.WithContext(ctx).Model(&def).Update("enabled", enabled).Error; err != nil {
		return fmt.Errorf("更新 Agent 状态失败: %w", err)
	}
	d.invalidate(ctx, tenantID, def.AgentType)
	return nil
}

func (d *Directory) invalidate(ctx context.Context, tenantID string, agentType AgentType) {
	if d.redisClient == nil {
		return
	}
	if err := d.redisClient.Del(ctx, cacheKey(tenantID, agentType)).Err(); err != nil {
		logger.WithContext(ctx).Debug("Agent 目录缓存失效失败", zap.Error(err))
	}
}
